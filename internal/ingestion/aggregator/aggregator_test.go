package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"

	"listingportal_backend/internal/events"
	"listingportal_backend/internal/ingestion/domain"
	"listingportal_backend/platform/logger"
)

type fakeStore struct {
	leads map[domain.Key]*domain.Lead

	findErr   map[domain.Key]error
	updateErr map[domain.Key]error
	insertErr error

	inserts int
	updates int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		leads:     make(map[domain.Key]*domain.Lead),
		findErr:   make(map[domain.Key]error),
		updateErr: make(map[domain.Key]error),
	}
}

func (s *fakeStore) FindLeadByKey(_ context.Context, key domain.Key) (*domain.Lead, error) {
	if err := s.findErr[key]; err != nil {
		return nil, err
	}
	l, ok := s.leads[key]
	if !ok {
		return nil, nil
	}
	cp := *l
	cp.Actions = append([]domain.Action(nil), l.Actions...)
	return &cp, nil
}

func (s *fakeStore) InsertLeads(_ context.Context, leads []domain.Lead) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	for _, l := range leads {
		cp := l
		s.leads[l.Key] = &cp
		s.inserts++
	}
	return nil
}

func (s *fakeStore) UpdateLead(_ context.Context, lead domain.Lead) error {
	if err := s.updateErr[lead.Key]; err != nil {
		return err
	}
	cp := lead
	s.leads[lead.Key] = &cp
	s.updates++
	return nil
}

func newAggregator(s Store) *Aggregator {
	log := logger.New("test")
	return New(s, events.NewInMemoryBus(log), log)
}

func listingAction(id, listing, owner, seeker string, typ domain.ActionType, ts time.Time, anonymous bool, md domain.Metadata) domain.LeadAction {
	return domain.LeadAction{
		Action: domain.Action{
			ID:        id,
			Type:      typ,
			Date:      ts.Format(domain.DateLayout),
			Hour:      ts.Hour(),
			Timestamp: ts,
			Metadata:  md,
			Context:   domain.ContextListing,
		},
		ListingID:   listing,
		OwnerID:     owner,
		OwnerType:   "developer",
		SeekerID:    seeker,
		IsAnonymous: anonymous,
	}
}

func TestApplyCreatesSingleLeadFromTwoActions(t *testing.T) {
	store := newFakeStore()
	agg := newAggregator(store)

	t1 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(3 * time.Hour)
	batch := []domain.LeadAction{
		listingAction("e1", "L1", "D1", "S1", domain.ActionPhone, t1, false, domain.Metadata{}),
		listingAction("e2", "L1", "D1", "S1", domain.ActionMessage, t2, false, domain.Metadata{MessageChannel: domain.ChannelWhatsApp}),
	}

	res, err := agg.Apply(context.Background(), batch)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Created != 1 || res.Updated != 0 || len(res.Touched) != 1 {
		t.Fatalf("created=%d updated=%d touched=%d", res.Created, res.Updated, len(res.Touched))
	}

	lead := store.leads[res.Touched[0]]
	if lead == nil {
		t.Fatalf("lead not persisted")
	}
	if lead.TotalActions != 2 {
		t.Fatalf("TotalActions = %d, want 2", lead.TotalActions)
	}
	if lead.Score != 15 {
		t.Fatalf("Score = %d, want max(10,15)", lead.Score)
	}
	if lead.FirstActionDate != t1.Format(domain.DateLayout) || lead.LastActionDate != t2.Format(domain.DateLayout) {
		t.Fatalf("range = %s..%s", lead.FirstActionDate, lead.LastActionDate)
	}
	if lead.LastActionType != domain.ActionMessage {
		t.Fatalf("LastActionType = %s", lead.LastActionType)
	}
	if lead.Status != domain.StatusNew {
		t.Fatalf("Status = %s", lead.Status)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	store := newFakeStore()
	agg := newAggregator(store)

	ts := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	batch := []domain.LeadAction{
		listingAction("e1", "L1", "D1", "S1", domain.ActionAppointment, ts, true, domain.Metadata{}),
	}

	if _, err := agg.Apply(context.Background(), batch); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	res, err := agg.Apply(context.Background(), batch)
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if res.Created != 0 || res.Updated != 0 {
		t.Fatalf("replay wrote: created=%d updated=%d", res.Created, res.Updated)
	}

	lead := store.leads[domain.Key{Context: domain.ContextListing, Subject: "L1", Owner: "D1", Seeker: "S1"}]
	if lead.TotalActions != 1 || lead.Score != 25 {
		t.Fatalf("replay drifted: total=%d score=%d", lead.TotalActions, lead.Score)
	}
}

func TestApplyMergesNewActionsIntoExistingLead(t *testing.T) {
	store := newFakeStore()
	agg := newAggregator(store)

	t1 := time.Date(2026, 5, 3, 8, 0, 0, 0, time.UTC)
	first := []domain.LeadAction{
		listingAction("e1", "L1", "D1", "S1", domain.ActionWebsite, t1, true, domain.Metadata{}),
	}
	if _, err := agg.Apply(context.Background(), first); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	second := []domain.LeadAction{
		listingAction("e1", "L1", "D1", "S1", domain.ActionWebsite, t1, true, domain.Metadata{}),
		listingAction("e2", "L1", "D1", "S1", domain.ActionPhone, t1.Add(time.Hour), false, domain.Metadata{}),
	}
	res, err := agg.Apply(context.Background(), second)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Created != 0 || res.Updated != 1 {
		t.Fatalf("created=%d updated=%d", res.Created, res.Updated)
	}

	lead := store.leads[domain.Key{Context: domain.ContextListing, Subject: "L1", Owner: "D1", Seeker: "S1"}]
	if lead.TotalActions != 2 {
		t.Fatalf("TotalActions = %d, want action e1 deduped", lead.TotalActions)
	}
	if lead.IsAnonymous {
		t.Fatalf("authenticated follow-up must clear IsAnonymous")
	}
	if lead.Score != 10 {
		t.Fatalf("Score = %d, want 10", lead.Score)
	}
}

func TestApplyCollapsesUnknownSubjects(t *testing.T) {
	store := newFakeStore()
	agg := newAggregator(store)

	ts := time.Date(2026, 5, 4, 11, 0, 0, 0, time.UTC)
	batch := []domain.LeadAction{
		listingAction("e1", "", "D1", "S1", domain.ActionPhone, ts, true, domain.Metadata{}),
		listingAction("e2", "", "D1", "S1", domain.ActionEmail, ts.Add(time.Minute), true, domain.Metadata{}),
	}
	res, err := agg.Apply(context.Background(), batch)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Created != 1 {
		t.Fatalf("created = %d, want unknown subjects collapsed into one lead", res.Created)
	}
	key := domain.Key{Context: domain.ContextListing, Subject: domain.UnknownSubject, Owner: "D1", Seeker: "S1"}
	if lead := store.leads[key]; lead == nil || lead.TotalActions != 2 {
		t.Fatalf("sentinel lead missing or wrong: %+v", lead)
	}
}

func TestApplyScoreMonotoneAcrossOrders(t *testing.T) {
	ts := time.Date(2026, 5, 5, 10, 0, 0, 0, time.UTC)
	mk := func(id string, typ domain.ActionType, offset time.Duration) domain.LeadAction {
		return listingAction(id, "L1", "D1", "S1", typ, ts.Add(offset), false, domain.Metadata{})
	}
	orders := [][]domain.LeadAction{
		{mk("a", domain.ActionPhone, 0), mk("b", domain.ActionAppointment, time.Minute), mk("c", domain.ActionWebsite, 2*time.Minute)},
		{mk("c", domain.ActionWebsite, 2*time.Minute), mk("a", domain.ActionPhone, 0), mk("b", domain.ActionAppointment, time.Minute)},
	}
	for i, batch := range orders {
		store := newFakeStore()
		agg := newAggregator(store)
		for _, la := range batch {
			if _, err := agg.Apply(context.Background(), []domain.LeadAction{la}); err != nil {
				t.Fatalf("order %d: %v", i, err)
			}
		}
		lead := store.leads[domain.Key{Context: domain.ContextListing, Subject: "L1", Owner: "D1", Seeker: "S1"}]
		if lead.Score != 25 {
			t.Fatalf("order %d: score = %d, want 25", i, lead.Score)
		}
	}
}

func TestApplyContinuesPastItemErrors(t *testing.T) {
	store := newFakeStore()
	agg := newAggregator(store)

	badKey := domain.Key{Context: domain.ContextListing, Subject: "L-bad", Owner: "D1", Seeker: "S1"}
	store.findErr[badKey] = errors.New("row busted")

	ts := time.Date(2026, 5, 6, 10, 0, 0, 0, time.UTC)
	batch := []domain.LeadAction{
		listingAction("e1", "L-bad", "D1", "S1", domain.ActionPhone, ts, true, domain.Metadata{}),
		listingAction("e2", "L-ok", "D1", "S2", domain.ActionPhone, ts, true, domain.Metadata{}),
	}
	res, err := agg.Apply(context.Background(), batch)
	if err != nil {
		t.Fatalf("item error must not abort the batch: %v", err)
	}
	if len(res.Errors) != 1 || res.Errors[0].Key != badKey {
		t.Fatalf("errors = %v", res.Errors)
	}
	if res.Created != 1 {
		t.Fatalf("created = %d, healthy lead must still persist", res.Created)
	}
	okKey := domain.Key{Context: domain.ContextListing, Subject: "L-ok", Owner: "D1", Seeker: "S2"}
	if len(res.Touched) != 1 || res.Touched[0] != okKey {
		t.Fatalf("touched = %v, failed lead must not count as touched", res.Touched)
	}
}

func TestApplyExcludesFailedUpdatesFromTouched(t *testing.T) {
	store := newFakeStore()
	agg := newAggregator(store)

	ts := time.Date(2026, 5, 6, 10, 0, 0, 0, time.UTC)
	if _, err := agg.Apply(context.Background(), []domain.LeadAction{
		listingAction("e1", "L1", "D1", "S1", domain.ActionPhone, ts, true, domain.Metadata{}),
	}); err != nil {
		t.Fatalf("seed apply: %v", err)
	}

	badKey := domain.Key{Context: domain.ContextListing, Subject: "L1", Owner: "D1", Seeker: "S1"}
	store.updateErr[badKey] = errors.New("write timeout")

	res, err := agg.Apply(context.Background(), []domain.LeadAction{
		listingAction("e2", "L1", "D1", "S1", domain.ActionMessage, ts.Add(time.Hour), true, domain.Metadata{}),
	})
	if err != nil {
		t.Fatalf("item error must not abort the batch: %v", err)
	}
	if len(res.Errors) != 1 || res.Errors[0].Key != badKey {
		t.Fatalf("errors = %v", res.Errors)
	}
	if len(res.Touched) != 0 {
		t.Fatalf("touched = %v, failed update must not count as touched", res.Touched)
	}
}

func TestApplyAbortsOnBatchInsertFailure(t *testing.T) {
	store := newFakeStore()
	store.insertErr = errors.New("store down")
	agg := newAggregator(store)

	ts := time.Date(2026, 5, 7, 10, 0, 0, 0, time.UTC)
	_, err := agg.Apply(context.Background(), []domain.LeadAction{
		listingAction("e1", "L1", "D1", "S1", domain.ActionPhone, ts, true, domain.Metadata{}),
	})
	if err == nil {
		t.Fatalf("batch insert failure must abort")
	}
}
