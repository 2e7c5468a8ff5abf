// Package aggregator folds batches of normalized actions into persisted
// leads. Merging is idempotent: replaying a window never duplicates actions
// or inflates scores.
package aggregator

import (
	"context"
	"fmt"

	"listingportal_backend/internal/events"
	"listingportal_backend/internal/ingestion/domain"
	"listingportal_backend/platform/logger"
)

// Store is the lead persistence gateway the aggregator writes through.
// FindByKey returns (nil, nil) when no lead exists for the key.
type Store interface {
	FindLeadByKey(ctx context.Context, key domain.Key) (*domain.Lead, error)
	InsertLeads(ctx context.Context, leads []domain.Lead) error
	UpdateLead(ctx context.Context, lead domain.Lead) error
}

// ItemError records a single lead that could not be processed. The batch
// continues past item errors.
type ItemError struct {
	Key domain.Key
	Err error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("lead %s: %v", e.Key, e.Err)
}

// Result summarizes one applied batch.
type Result struct {
	Created int
	Updated int
	Touched []domain.Key
	Errors  []ItemError
}

type Aggregator struct {
	store Store
	bus   events.Bus
	log   *logger.Logger
}

func New(store Store, bus events.Bus, log *logger.Logger) *Aggregator {
	return &Aggregator{store: store, bus: bus, log: log}
}

// group accumulates the batch's actions per identity key before any store
// round-trips, so one batch never double-processes its own events.
type group struct {
	key       domain.Key
	ownerType string
	anonymous bool
	actions   []domain.Action
}

// Apply upserts the batch into the lead store. Per-lead failures are
// collected in Result.Errors; only a failed batch insert aborts.
// Result.Touched holds only keys whose lead made it to the store, so
// run summaries never count failed lookups or writes.
func (a *Aggregator) Apply(ctx context.Context, batch []domain.LeadAction) (Result, error) {
	var res Result

	groups := groupByKey(batch)
	var created []domain.Lead
	var createdKeys []domain.Key

	for _, g := range groups {
		existing, err := a.store.FindLeadByKey(ctx, g.key)
		if err != nil {
			res.Errors = append(res.Errors, ItemError{Key: g.key, Err: err})
			continue
		}

		if existing == nil {
			created = append(created, domain.NewLead(g.key, g.ownerType, g.anonymous, g.actions))
			createdKeys = append(createdKeys, g.key)
			continue
		}

		wasAnonymous := existing.IsAnonymous
		added := existing.Merge(g.actions, g.anonymous)
		if added == 0 && existing.IsAnonymous == wasAnonymous {
			res.Touched = append(res.Touched, g.key)
			continue
		}
		if err := a.store.UpdateLead(ctx, *existing); err != nil {
			res.Errors = append(res.Errors, ItemError{Key: g.key, Err: err})
			continue
		}
		res.Updated++
		res.Touched = append(res.Touched, g.key)
	}

	if len(created) > 0 {
		if err := a.store.InsertLeads(ctx, created); err != nil {
			return res, fmt.Errorf("insert %d new leads: %w", len(created), err)
		}
		res.Created = len(created)
		res.Touched = append(res.Touched, createdKeys...)
		for _, l := range created {
			a.publishCaptured(ctx, l)
		}
	}
	return res, nil
}

func groupByKey(batch []domain.LeadAction) []*group {
	byKey := make(map[domain.Key]*group)
	var ordered []*group

	for _, la := range batch {
		key := domain.KeyFor(la)
		g, ok := byKey[key]
		if !ok {
			g = &group{key: key, ownerType: la.OwnerType, anonymous: true}
			byKey[key] = g
			ordered = append(ordered, g)
		}
		g.actions = append(g.actions, la.Action)
		if !la.IsAnonymous {
			g.anonymous = false
		}
	}
	return ordered
}

func (a *Aggregator) publishCaptured(ctx context.Context, l domain.Lead) {
	subject := ""
	if l.HasSubject() {
		subject = l.Subject
	}
	a.bus.Publish(ctx, events.LeadCaptured{
		BaseEvent:   events.NewBaseEvent(),
		LeadID:      l.ID.String(),
		ContextType: string(l.Context),
		SubjectID:   subject,
		OwnerID:     l.Owner,
		SeekerID:    l.Seeker,
		IsAnonymous: l.IsAnonymous,
		Score:       l.Score,
	})
}
