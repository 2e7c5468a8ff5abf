// Package service drives the ingestion pipeline: fetch pages, normalize,
// aggregate, reconcile, summarize.
package service

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"listingportal_backend/internal/events"
	"listingportal_backend/internal/ingestion/aggregator"
	"listingportal_backend/internal/ingestion/client"
	"listingportal_backend/internal/ingestion/domain"
	"listingportal_backend/internal/ingestion/normalizer"
	"listingportal_backend/internal/ingestion/reconciler"
	"listingportal_backend/internal/ingestion/transport"
	"listingportal_backend/platform/apperr"
	"listingportal_backend/platform/logger"
)

// Pager is the page iterator the service consumes.
type Pager interface {
	HasNext() bool
	Next(ctx context.Context) ([]client.RawEvent, error)
	Truncated() bool
}

// EventSource produces pagers over the analytics store.
type EventSource interface {
	Export(start, end time.Time, eventNames []string, pageSize int) Pager
}

type Service struct {
	source EventSource
	agg    *aggregator.Aggregator
	rec    *reconciler.Reconciler
	bus    events.Bus
	log    *logger.Logger

	// Runs are exclusive; a second trigger while one is in flight gets a
	// conflict instead of racing the lead store.
	running *semaphore.Weighted
}

func New(source EventSource, agg *aggregator.Aggregator, rec *reconciler.Reconciler, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		source:  source,
		agg:     agg,
		rec:     rec,
		bus:     bus,
		log:     log,
		running: semaphore.NewWeighted(1),
	}
}

// Run ingests the lookback window ending now. Per-item failures land in the
// report; only an unreachable event store or lead store fails the run.
func (s *Service) Run(ctx context.Context, hours, limit int) (transport.RunReport, error) {
	var report transport.RunReport

	if !s.running.TryAcquire(1) {
		return report, apperr.Conflict("an ingestion run is already in progress")
	}
	defer s.running.Release(1)

	started := time.Now()
	end := started.UTC()
	start := end.Add(-time.Duration(hours) * time.Hour)

	s.log.Info("ingestion run started",
		"window_start", start,
		"window_end", end,
		"page_size", limit,
	)

	touched := make(map[string]struct{})
	seekers := make(map[string]struct{})
	errorsTotal := 0

	recordError := func(msg string) {
		errorsTotal++
		if len(report.Errors) < transport.MaxReportedErrors {
			report.Errors = append(report.Errors, msg)
		}
	}

	pager := s.source.Export(start, end, normalizer.EventNames(), limit)
	for pager.HasNext() {
		rawEvents, err := pager.Next(ctx)
		if err != nil {
			return report, apperr.Wrap(apperr.KindUpstream, "fetching events from the analytics store failed", err).WithOp("ingestion.fetch")
		}
		report.Summary.TotalEventsFetched += len(rawEvents)

		actions := normalizeBatch(rawEvents)
		if len(actions) == 0 {
			continue
		}

		result, err := s.agg.Apply(ctx, actions)
		if err != nil {
			return report, apperr.Wrap(apperr.KindUpstream, "writing leads to the store failed", err).WithOp("ingestion.aggregate")
		}

		report.Summary.TotalLeadsCreated += result.Created
		report.Summary.TotalLeadsUpdated += result.Updated
		for _, key := range result.Touched {
			touched[key.String()] = struct{}{}
			seekers[key.Seeker] = struct{}{}
		}
		for _, itemErr := range result.Errors {
			recordError(itemErr.Error())
		}
	}

	if pager.Truncated() {
		recordError("event export truncated at the page ceiling; re-run with a narrower window")
	}

	if _, err := s.rec.Reconcile(ctx); err != nil {
		return report, apperr.Wrap(apperr.KindUpstream, "reconciling lead counts failed", err).WithOp("ingestion.reconcile")
	}

	report.Summary.TotalUniqueLeads = len(touched)
	report.Summary.TotalUniqueSeekers = len(seekers)
	report.Summary.DurationSeconds = time.Since(started).Seconds()
	report.Summary.ErrorsCount = errorsTotal

	s.publishCompleted(ctx, start, end, report.Summary, time.Since(started))
	s.log.Info("ingestion run finished",
		"events", report.Summary.TotalEventsFetched,
		"created", report.Summary.TotalLeadsCreated,
		"updated", report.Summary.TotalLeadsUpdated,
		"errors", errorsTotal,
		"duration", time.Since(started),
	)
	return report, nil
}

func normalizeBatch(rawEvents []client.RawEvent) []domain.LeadAction {
	actions := make([]domain.LeadAction, 0, len(rawEvents))
	for _, ev := range rawEvents {
		la, ok := normalizer.Normalize(ev)
		if !ok {
			continue
		}
		actions = append(actions, la)
	}
	return actions
}

func (s *Service) publishCompleted(ctx context.Context, start, end time.Time, summary transport.RunSummary, elapsed time.Duration) {
	s.bus.Publish(ctx, events.IngestionCompleted{
		BaseEvent:     events.NewBaseEvent(),
		WindowStart:   start,
		WindowEnd:     end,
		EventsFetched: summary.TotalEventsFetched,
		LeadsCreated:  summary.TotalLeadsCreated,
		LeadsUpdated:  summary.TotalLeadsUpdated,
		UniqueLeads:   summary.TotalUniqueLeads,
		UniqueSeekers: summary.TotalUniqueSeekers,
		ErrorsCount:   summary.ErrorsCount,
		Duration:      elapsed,
	})
}
