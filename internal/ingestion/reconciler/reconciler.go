// Package reconciler recomputes the derived unique/anonymous lead counts on
// listings, developments, and profile owners. Counts are rebuilt wholesale
// from the lead store on every pass, never patched incrementally, so they
// cannot drift from the leads themselves.
package reconciler

import (
	"context"
	"fmt"

	"listingportal_backend/internal/ingestion/domain"
	"listingportal_backend/platform/logger"
)

// Counts is one unique/anonymous pair of distinct-seeker tallies.
type Counts struct {
	Unique    int
	Anonymous int
}

// OwnerCounts carries both tallies kept per profile owner: leads made
// directly on the profile, and the aggregate across every context the owner
// participates in.
type OwnerCounts struct {
	Profile   Counts
	Aggregate Counts
}

// Store is the read/write surface the reconciler needs from the lead store.
type Store interface {
	ListLeadsByContext(ctx context.Context, contextType domain.ContextType) ([]domain.Lead, error)
	UpdateListingLeadCounts(ctx context.Context, counts map[string]Counts) error
	UpdateDevelopmentLeadCounts(ctx context.Context, counts map[string]Counts) error
	UpdateProfileLeadCounts(ctx context.Context, counts map[string]OwnerCounts) error
}

// OwnershipResolver maps subject ids to the owning profile id. Subjects with
// no resolvable owner are simply absent from the returned map.
type OwnershipResolver interface {
	ListingOwners(ctx context.Context, listingIDs []string) (map[string]string, error)
	DevelopmentOwners(ctx context.Context, developmentIDs []string) (map[string]string, error)
}

// Stats reports how many rows each pass rewrote.
type Stats struct {
	Listings     int
	Developments int
	Profiles     int
}

type Reconciler struct {
	store  Store
	owners OwnershipResolver
	log    *logger.Logger
}

func New(store Store, owners OwnershipResolver, log *logger.Logger) *Reconciler {
	return &Reconciler{store: store, owners: owners, log: log}
}

// tally tracks distinct seekers per anonymity bucket. A seeker lands in
// exactly one bucket per tally.
type tally struct {
	unique    map[string]struct{}
	anonymous map[string]struct{}
}

func newTally() *tally {
	return &tally{
		unique:    make(map[string]struct{}),
		anonymous: make(map[string]struct{}),
	}
}

func (t *tally) add(seeker string, anonymous bool) {
	if anonymous {
		t.anonymous[seeker] = struct{}{}
	} else {
		t.unique[seeker] = struct{}{}
	}
}

func (t *tally) counts() Counts {
	return Counts{Unique: len(t.unique), Anonymous: len(t.anonymous)}
}

// Reconcile rebuilds every count. Any store failure aborts the pass; a
// partial pass leaves previous counts in place and the next pass repairs them.
func (r *Reconciler) Reconcile(ctx context.Context) (Stats, error) {
	var stats Stats

	listingLeads, err := r.store.ListLeadsByContext(ctx, domain.ContextListing)
	if err != nil {
		return stats, fmt.Errorf("load listing leads: %w", err)
	}
	developmentLeads, err := r.store.ListLeadsByContext(ctx, domain.ContextDevelopment)
	if err != nil {
		return stats, fmt.Errorf("load development leads: %w", err)
	}
	profileLeads, err := r.store.ListLeadsByContext(ctx, domain.ContextProfile)
	if err != nil {
		return stats, fmt.Errorf("load profile leads: %w", err)
	}

	listingCounts := subjectCounts(listingLeads)
	if err := r.store.UpdateListingLeadCounts(ctx, listingCounts); err != nil {
		return stats, fmt.Errorf("write listing counts: %w", err)
	}
	stats.Listings = len(listingCounts)

	developmentCounts := subjectCounts(developmentLeads)
	if err := r.store.UpdateDevelopmentLeadCounts(ctx, developmentCounts); err != nil {
		return stats, fmt.Errorf("write development counts: %w", err)
	}
	stats.Developments = len(developmentCounts)

	profileCounts, err := r.ownerCounts(ctx, profileLeads, listingLeads, developmentLeads)
	if err != nil {
		return stats, err
	}
	if err := r.store.UpdateProfileLeadCounts(ctx, profileCounts); err != nil {
		return stats, fmt.Errorf("write profile counts: %w", err)
	}
	stats.Profiles = len(profileCounts)

	r.log.Info("lead counts reconciled",
		"listings", stats.Listings,
		"developments", stats.Developments,
		"profiles", stats.Profiles,
	)
	return stats, nil
}

// subjectCounts tallies distinct seekers per resolved subject. Sentinel
// (unknown subject) leads have no row to hang a count on and are skipped.
func subjectCounts(leads []domain.Lead) map[string]Counts {
	tallies := make(map[string]*tally)
	for _, l := range leads {
		if !l.HasSubject() {
			continue
		}
		t, ok := tallies[l.Subject]
		if !ok {
			t = newTally()
			tallies[l.Subject] = t
		}
		t.add(l.Seeker, l.IsAnonymous)
	}

	counts := make(map[string]Counts, len(tallies))
	for id, t := range tallies {
		counts[id] = t.counts()
	}
	return counts
}

// ownerCounts builds both per-owner tallies. The aggregate starts from the
// owner's profile leads and then folds in leads on subjects the owner owns,
// resolved through the ownership lookup; leads on subjects owned by someone
// else never leak in.
func (r *Reconciler) ownerCounts(ctx context.Context, profileLeads, listingLeads, developmentLeads []domain.Lead) (map[string]OwnerCounts, error) {
	profile := make(map[string]*tally)
	aggregate := make(map[string]*tally)

	tallyFor := func(m map[string]*tally, owner string) *tally {
		t, ok := m[owner]
		if !ok {
			t = newTally()
			m[owner] = t
		}
		return t
	}

	for _, l := range profileLeads {
		tallyFor(profile, l.Owner).add(l.Seeker, l.IsAnonymous)
		tallyFor(aggregate, l.Owner).add(l.Seeker, l.IsAnonymous)
	}

	listingOwners, err := r.owners.ListingOwners(ctx, subjectIDs(listingLeads))
	if err != nil {
		return nil, fmt.Errorf("resolve listing owners: %w", err)
	}
	for _, l := range listingLeads {
		if !l.HasSubject() {
			continue
		}
		owner, ok := listingOwners[l.Subject]
		if !ok {
			continue
		}
		tallyFor(aggregate, owner).add(l.Seeker, l.IsAnonymous)
	}

	developmentOwners, err := r.owners.DevelopmentOwners(ctx, subjectIDs(developmentLeads))
	if err != nil {
		return nil, fmt.Errorf("resolve development owners: %w", err)
	}
	for _, l := range developmentLeads {
		if !l.HasSubject() {
			continue
		}
		owner, ok := developmentOwners[l.Subject]
		if !ok {
			continue
		}
		tallyFor(aggregate, owner).add(l.Seeker, l.IsAnonymous)
	}

	counts := make(map[string]OwnerCounts, len(aggregate))
	for owner, agg := range aggregate {
		oc := OwnerCounts{Aggregate: agg.counts()}
		if p, ok := profile[owner]; ok {
			oc.Profile = p.counts()
		}
		counts[owner] = oc
	}
	return counts, nil
}

func subjectIDs(leads []domain.Lead) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, l := range leads {
		if !l.HasSubject() {
			continue
		}
		if _, dup := seen[l.Subject]; dup {
			continue
		}
		seen[l.Subject] = struct{}{}
		ids = append(ids, l.Subject)
	}
	return ids
}
