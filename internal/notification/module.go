// Package notification reacts to domain events with operational mail.
package notification

import (
	"context"

	"listingportal_backend/internal/email"
	"listingportal_backend/internal/events"
	"listingportal_backend/platform/logger"
)

// ReportSender delivers the post-run report. Satisfied by email.Sender.
type ReportSender interface {
	SendIngestionReport(ctx context.Context, report email.IngestionReport) error
}

type Module struct {
	sender   ReportSender
	narrator Narrator
	log      *logger.Logger
}

// NewModule builds the notification module. narrator may be nil, in
// which case reports go out without a narrative paragraph.
func NewModule(sender ReportSender, narrator Narrator, log *logger.Logger) *Module {
	return &Module{sender: sender, narrator: narrator, log: log}
}

// RegisterHandlers subscribes the module to the events it reports on.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.EventIngestionCompleted, events.HandlerFunc(m.onIngestionCompleted))
	bus.Subscribe(events.EventLeadCaptured, events.HandlerFunc(m.onLeadCaptured))
}

func (m *Module) onLeadCaptured(_ context.Context, e events.Event) error {
	captured, ok := e.(events.LeadCaptured)
	if !ok {
		return nil
	}
	m.log.Info("new lead captured",
		"lead_id", captured.LeadID,
		"context", captured.ContextType,
		"owner_id", captured.OwnerID,
		"anonymous", captured.IsAnonymous,
		"score", captured.Score,
	)
	return nil
}

func (m *Module) onIngestionCompleted(ctx context.Context, e events.Event) error {
	completed, ok := e.(events.IngestionCompleted)
	if !ok {
		return nil
	}
	report := email.IngestionReport{
		WindowStart:   completed.WindowStart,
		WindowEnd:     completed.WindowEnd,
		EventsFetched: completed.EventsFetched,
		LeadsCreated:  completed.LeadsCreated,
		LeadsUpdated:  completed.LeadsUpdated,
		UniqueLeads:   completed.UniqueLeads,
		UniqueSeekers: completed.UniqueSeekers,
		ErrorsCount:   completed.ErrorsCount,
		Duration:      completed.Duration,
	}
	if m.narrator != nil {
		narrative, err := m.narrator.Narrate(ctx, report)
		if err != nil {
			// The report must go out even when narration fails.
			m.log.Warn("report narrative skipped", "error", err)
		} else {
			report.Narrative = narrative
		}
	}
	return m.sender.SendIngestionReport(ctx, report)
}
