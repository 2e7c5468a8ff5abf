package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"listingportal_backend/internal/events"
	"listingportal_backend/internal/ingestion/aggregator"
	"listingportal_backend/internal/ingestion/client"
	"listingportal_backend/internal/ingestion/domain"
	"listingportal_backend/internal/ingestion/reconciler"
	"listingportal_backend/platform/apperr"
	"listingportal_backend/platform/logger"
)

type fakePager struct {
	pages     [][]client.RawEvent
	next      int
	err       error
	done      bool
	truncated bool
	release   chan struct{}
}

func (p *fakePager) HasNext() bool { return !p.done }

func (p *fakePager) Next(ctx context.Context) ([]client.RawEvent, error) {
	if p.release != nil {
		<-p.release
	}
	if p.err != nil {
		p.done = true
		return nil, p.err
	}
	page := p.pages[p.next]
	p.next++
	if p.next >= len(p.pages) {
		p.done = true
	}
	return page, nil
}

func (p *fakePager) Truncated() bool { return p.truncated }

type fakeSource struct {
	pager *fakePager

	gotNames []string
	gotLimit int
}

func (s *fakeSource) Export(start, end time.Time, names []string, pageSize int) Pager {
	s.gotNames = names
	s.gotLimit = pageSize
	return s.pager
}

type memStore struct {
	mu    sync.Mutex
	leads map[domain.Key]*domain.Lead
}

func newMemStore() *memStore {
	return &memStore{leads: make(map[domain.Key]*domain.Lead)}
}

func (s *memStore) FindLeadByKey(_ context.Context, key domain.Key) (*domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[key]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (s *memStore) InsertLeads(_ context.Context, leads []domain.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range leads {
		cp := l
		s.leads[l.Key] = &cp
	}
	return nil
}

func (s *memStore) UpdateLead(_ context.Context, lead domain.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := lead
	s.leads[lead.Key] = &cp
	return nil
}

func (s *memStore) ListLeadsByContext(_ context.Context, ct domain.ContextType) ([]domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Lead
	for _, l := range s.leads {
		if l.Context == ct {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (s *memStore) UpdateListingLeadCounts(context.Context, map[string]reconciler.Counts) error {
	return nil
}

func (s *memStore) UpdateDevelopmentLeadCounts(context.Context, map[string]reconciler.Counts) error {
	return nil
}

func (s *memStore) UpdateProfileLeadCounts(context.Context, map[string]reconciler.OwnerCounts) error {
	return nil
}

func (s *memStore) ListingOwners(context.Context, []string) (map[string]string, error) {
	return nil, nil
}

func (s *memStore) DevelopmentOwners(context.Context, []string) (map[string]string, error) {
	return nil, nil
}

func newService(source EventSource, store *memStore) *Service {
	log := logger.New("test")
	bus := events.NewInMemoryBus(log)
	agg := aggregator.New(store, bus, log)
	rec := reconciler.New(store, store, log)
	return New(source, agg, rec, bus, log)
}

func rawPhone(seeker, listing, owner string, ts int64) client.RawEvent {
	return client.RawEvent{
		Name:       "phone_click",
		DistinctID: seeker,
		Timestamp:  ts,
		Properties: map[string]any{"listing_id": listing, "owner_id": owner},
	}
}

func TestRunSummarizesWindow(t *testing.T) {
	source := &fakeSource{pager: &fakePager{pages: [][]client.RawEvent{
		{
			rawPhone("s1", "L1", "O1", 1000),
			rawPhone("s2", "L1", "O1", 1001),
			{Name: "page_view", DistinctID: "s3", Timestamp: 1002}, // skipped noise
		},
		{
			rawPhone("s1", "L1", "O1", 1000), // redelivery
		},
	}}}
	store := newMemStore()
	svc := newService(source, store)

	report, err := svc.Run(context.Background(), 24, 100)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	sum := report.Summary
	if sum.TotalEventsFetched != 4 {
		t.Fatalf("TotalEventsFetched = %d", sum.TotalEventsFetched)
	}
	if sum.TotalLeadsCreated != 2 {
		t.Fatalf("TotalLeadsCreated = %d, want 2", sum.TotalLeadsCreated)
	}
	if sum.TotalLeadsUpdated != 0 {
		t.Fatalf("TotalLeadsUpdated = %d, redelivered page must be a no-op", sum.TotalLeadsUpdated)
	}
	if sum.TotalUniqueLeads != 2 || sum.TotalUniqueSeekers != 2 {
		t.Fatalf("unique leads=%d seekers=%d", sum.TotalUniqueLeads, sum.TotalUniqueSeekers)
	}
	if sum.ErrorsCount != 0 || len(report.Errors) != 0 {
		t.Fatalf("errors = %d/%v", sum.ErrorsCount, report.Errors)
	}
	if source.gotLimit != 100 {
		t.Fatalf("page size = %d", source.gotLimit)
	}
	if len(source.gotNames) == 0 || source.gotNames[0] != "lead" {
		t.Fatalf("export filter = %v", source.gotNames)
	}
}

func TestRunFailsWhenEventStoreUnreachable(t *testing.T) {
	source := &fakeSource{pager: &fakePager{err: &client.FetchError{Attempts: 3, Err: errors.New("dial refused")}}}
	svc := newService(source, newMemStore())

	_, err := svc.Run(context.Background(), 24, 100)
	if err == nil {
		t.Fatalf("expected fatal error")
	}
	if !apperr.Is(err, apperr.KindUpstream) {
		t.Fatalf("kind = %v, want upstream", apperr.GetKind(err))
	}
}

func TestRunReportsTruncation(t *testing.T) {
	source := &fakeSource{pager: &fakePager{
		pages:     [][]client.RawEvent{{rawPhone("s1", "L1", "O1", 1000)}},
		truncated: true,
	}}
	svc := newService(source, newMemStore())

	report, err := svc.Run(context.Background(), 24, 100)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Summary.ErrorsCount != 1 || len(report.Errors) != 1 {
		t.Fatalf("truncation must surface as a run error: %+v", report)
	}
}

func TestRunRejectsConcurrentTrigger(t *testing.T) {
	release := make(chan struct{})
	source := &fakeSource{pager: &fakePager{
		pages:   [][]client.RawEvent{{rawPhone("s1", "L1", "O1", 1000)}},
		release: release,
	}}
	svc := newService(source, newMemStore())

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(context.Background(), 24, 100)
		done <- err
	}()

	// Wait for the first run to hold the slot, then trigger again.
	deadline := time.After(2 * time.Second)
	for {
		if !svc.running.TryAcquire(1) {
			break
		}
		svc.running.Release(1)
		select {
		case <-deadline:
			t.Fatalf("first run never started")
		case <-time.After(time.Millisecond):
		}
	}

	_, err := svc.Run(context.Background(), 24, 100)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("second trigger err = %v, want conflict", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
}
