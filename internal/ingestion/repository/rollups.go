package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"listingportal_backend/internal/ingestion/reconciler"
)

// Rollup writes reset every row to zero and then apply the freshly computed
// counts inside one transaction, so subjects whose leads disappeared (or
// that never had any) end up at zero rather than keeping a stale number.

func (r *Repository) UpdateListingLeadCounts(ctx context.Context, counts map[string]reconciler.Counts) error {
	return r.rewriteCounts(ctx, "listings", counts)
}

func (r *Repository) UpdateDevelopmentLeadCounts(ctx context.Context, counts map[string]reconciler.Counts) error {
	return r.rewriteCounts(ctx, "developments", counts)
}

func (r *Repository) rewriteCounts(ctx context.Context, table string, counts map[string]reconciler.Counts) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("rewrite %s counts: %w", table, err)
	}
	defer tx.Rollback(ctx)

	reset := fmt.Sprintf(`UPDATE %s SET unique_leads = 0, anonymous_leads = 0, updated_at = NOW()`, table)
	if _, err := tx.Exec(ctx, reset); err != nil {
		return fmt.Errorf("reset %s counts: %w", table, err)
	}

	batch := &pgx.Batch{}
	update := fmt.Sprintf(`
		UPDATE %s
		SET unique_leads = $2, anonymous_leads = $3, updated_at = NOW()
		WHERE id = $1`, table)
	for id, c := range counts {
		batch.Queue(update, id, c.Unique, c.Anonymous)
	}
	if err := sendBatch(ctx, tx, batch); err != nil {
		return fmt.Errorf("apply %s counts: %w", table, err)
	}
	return tx.Commit(ctx)
}

func (r *Repository) UpdateProfileLeadCounts(ctx context.Context, counts map[string]reconciler.OwnerCounts) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("rewrite profile counts: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE profiles
		SET unique_leads = 0,
		    anonymous_leads = 0,
		    aggregate_unique_leads = 0,
		    aggregate_anonymous_leads = 0,
		    updated_at = NOW()`); err != nil {
		return fmt.Errorf("reset profile counts: %w", err)
	}

	batch := &pgx.Batch{}
	for id, c := range counts {
		batch.Queue(`
			UPDATE profiles
			SET unique_leads = $2,
			    anonymous_leads = $3,
			    aggregate_unique_leads = $4,
			    aggregate_anonymous_leads = $5,
			    updated_at = NOW()
			WHERE id = $1`,
			id, c.Profile.Unique, c.Profile.Anonymous, c.Aggregate.Unique, c.Aggregate.Anonymous,
		)
	}
	if err := sendBatch(ctx, tx, batch); err != nil {
		return fmt.Errorf("apply profile counts: %w", err)
	}
	return tx.Commit(ctx)
}

// ListingOwners resolves listing ids to owning profile ids. Unowned or
// unknown ids are absent from the result.
func (r *Repository) ListingOwners(ctx context.Context, listingIDs []string) (map[string]string, error) {
	return r.subjectOwners(ctx, "listings", listingIDs)
}

// DevelopmentOwners resolves development ids to owning profile ids.
func (r *Repository) DevelopmentOwners(ctx context.Context, developmentIDs []string) (map[string]string, error) {
	return r.subjectOwners(ctx, "developments", developmentIDs)
}

func (r *Repository) subjectOwners(ctx context.Context, table string, ids []string) (map[string]string, error) {
	owners := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return owners, nil
	}

	query := fmt.Sprintf(`
		SELECT id, profile_id
		FROM %s
		WHERE id = ANY($1) AND profile_id IS NOT NULL`, table)
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve %s owners: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, profileID string
		if err := rows.Scan(&id, &profileID); err != nil {
			return nil, fmt.Errorf("resolve %s owners: %w", table, err)
		}
		owners[id] = profileID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("resolve %s owners: %w", table, err)
	}
	return owners, nil
}

func sendBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	results := tx.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return results.Close()
}
