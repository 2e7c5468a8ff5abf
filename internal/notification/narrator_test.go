package notification

import (
	"strings"
	"testing"
	"time"

	"listingportal_backend/internal/email"
)

func TestBuildReportPromptListsRunFigures(t *testing.T) {
	prompt := buildReportPrompt(email.IngestionReport{
		WindowStart:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		WindowEnd:     time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
		EventsFetched: 40,
		LeadsCreated:  3,
		LeadsUpdated:  1,
		UniqueLeads:   4,
		UniqueSeekers: 2,
		ErrorsCount:   2,
		Duration:      1500 * time.Millisecond,
	})

	for _, want := range []string{
		"Window: 2026-02-01T00:00:00Z to 2026-02-02T00:00:00Z",
		"Events fetched: 40",
		"Leads created: 3",
		"Leads updated: 1",
		"Distinct seekers: 2",
		"Errors: 2",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
