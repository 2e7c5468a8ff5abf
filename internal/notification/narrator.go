package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"listingportal_backend/internal/email"
	"listingportal_backend/platform/config"
)

// Narrator turns a finished run's figures into a short prose summary
// for the report mail.
type Narrator interface {
	Narrate(ctx context.Context, report email.IngestionReport) (string, error)
}

// GeminiNarrator generates the narrative with the Gemini API. A single
// prompt per run, no tools, no session state.
type GeminiNarrator struct {
	cfg config.AIConfig
}

func NewGeminiNarrator(cfg config.AIConfig) *GeminiNarrator {
	return &GeminiNarrator{cfg: cfg}
}

func (n *GeminiNarrator) Narrate(ctx context.Context, report email.IngestionReport) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  n.cfg.GetGeminiAPIKey(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("report narrative: create client: %w", err)
	}

	resp, err := client.Models.GenerateContent(ctx, n.cfg.GetGeminiModel(), genai.Text(buildReportPrompt(report)), nil)
	if err != nil {
		return "", fmt.Errorf("report narrative: generate: %w", err)
	}

	return strings.TrimSpace(resp.Text()), nil
}

func buildReportPrompt(r email.IngestionReport) string {
	var b strings.Builder
	b.WriteString("You write the opening paragraph of an internal lead ingestion report email.\n")
	b.WriteString("Summarize the run below in at most three plain sentences for a non-technical reader.\n")
	b.WriteString("Mention how many leads were created and updated, and call out errors only when there are any.\n")
	b.WriteString("Do not use markdown, bullet points or greetings.\n\n")
	fmt.Fprintf(&b, "Window: %s to %s\n", r.WindowStart.Format(time.RFC3339), r.WindowEnd.Format(time.RFC3339))
	fmt.Fprintf(&b, "Events fetched: %d\n", r.EventsFetched)
	fmt.Fprintf(&b, "Leads created: %d\n", r.LeadsCreated)
	fmt.Fprintf(&b, "Leads updated: %d\n", r.LeadsUpdated)
	fmt.Fprintf(&b, "Distinct leads touched: %d\n", r.UniqueLeads)
	fmt.Fprintf(&b, "Distinct seekers: %d\n", r.UniqueSeekers)
	fmt.Fprintf(&b, "Errors: %d\n", r.ErrorsCount)
	fmt.Fprintf(&b, "Duration: %s\n", r.Duration.Round(time.Millisecond))
	return b.String()
}
