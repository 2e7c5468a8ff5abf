// Package repository persists leads and rollup counts in Postgres.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"listingportal_backend/internal/ingestion/domain"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `
	id, context_type, subject_id, owner_id, owner_type, seeker_id,
	is_anonymous, actions, total_actions, first_action_date, last_action_date,
	last_action_type, lead_score, status, status_history, notes,
	created_at, updated_at`

// FindLeadByKey returns the lead for an identity key, or (nil, nil) when no
// such lead exists. Sentinel-subject keys match the NULL subject_id row.
func (r *Repository) FindLeadByKey(ctx context.Context, key domain.Key) (*domain.Lead, error) {
	query := `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE context_type = $1
		  AND subject_id IS NOT DISTINCT FROM $2
		  AND owner_id = $3
		  AND seeker_id = $4`

	row := r.pool.QueryRow(ctx, query, string(key.Context), subjectArg(key), key.Owner, key.Seeker)
	lead, err := scanLead(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find lead %s: %w", key, err)
	}
	return lead, nil
}

// InsertLeads writes a batch of new leads in one round trip.
func (r *Repository) InsertLeads(ctx context.Context, leads []domain.Lead) error {
	if len(leads) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, l := range leads {
		actions, history, err := marshalLead(l)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO leads (
				id, context_type, subject_id, owner_id, owner_type, seeker_id,
				is_anonymous, actions, total_actions, first_action_date,
				last_action_date, last_action_type, lead_score, status,
				status_history, notes, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
			l.ID, string(l.Context), subjectArg(l.Key), l.Owner, l.OwnerType, l.Seeker,
			l.IsAnonymous, actions, l.TotalActions, l.FirstActionDate,
			l.LastActionDate, string(l.LastActionType), l.Score, l.Status,
			history, l.Notes, l.CreatedAt, l.UpdatedAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range leads {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert leads: %w", err)
		}
	}
	return nil
}

// UpdateLead rewrites the mutable fields of an existing lead.
func (r *Repository) UpdateLead(ctx context.Context, l domain.Lead) error {
	actions, _, err := marshalLead(l)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET actions = $2,
		    total_actions = $3,
		    first_action_date = $4,
		    last_action_date = $5,
		    last_action_type = $6,
		    lead_score = $7,
		    is_anonymous = $8,
		    updated_at = NOW()
		WHERE id = $1`,
		l.ID, actions, l.TotalActions, l.FirstActionDate, l.LastActionDate,
		string(l.LastActionType), l.Score, l.IsAnonymous,
	)
	if err != nil {
		return fmt.Errorf("update lead %s: %w", l.Key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update lead %s: no row", l.Key)
	}
	return nil
}

// ListLeadsByContext streams every lead of one context type, used by the
// reconciler's full rescan.
func (r *Repository) ListLeadsByContext(ctx context.Context, contextType domain.ContextType) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE context_type = $1
		ORDER BY created_at`,
		string(contextType),
	)
	if err != nil {
		return nil, fmt.Errorf("list %s leads: %w", contextType, err)
	}
	defer rows.Close()

	var leads []domain.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("list %s leads: %w", contextType, err)
		}
		leads = append(leads, *lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s leads: %w", contextType, err)
	}
	return leads, nil
}

func subjectArg(key domain.Key) any {
	if !key.HasSubject() {
		return nil
	}
	return key.Subject
}

func marshalLead(l domain.Lead) (actions, history []byte, err error) {
	actions, err = json.Marshal(l.Actions)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal actions for %s: %w", l.Key, err)
	}
	history, err = json.Marshal(l.StatusHistory)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal status history for %s: %w", l.Key, err)
	}
	return actions, history, nil
}

func scanLead(row pgx.Row) (*domain.Lead, error) {
	var (
		l           domain.Lead
		contextType string
		subjectID   *string
		actionType  string
		actions     []byte
		history     []byte
	)
	err := row.Scan(
		&l.ID, &contextType, &subjectID, &l.Owner, &l.OwnerType, &l.Seeker,
		&l.IsAnonymous, &actions, &l.TotalActions, &l.FirstActionDate,
		&l.LastActionDate, &actionType, &l.Score, &l.Status,
		&history, &l.Notes, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.Context = domain.ContextType(contextType)
	if subjectID != nil {
		l.Subject = *subjectID
	} else {
		l.Subject = domain.UnknownSubject
	}
	l.LastActionType = domain.ActionType(actionType)

	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &l.Actions); err != nil {
			return nil, fmt.Errorf("unmarshal actions: %w", err)
		}
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &l.StatusHistory); err != nil {
			return nil, fmt.Errorf("unmarshal status history: %w", err)
		}
	}
	return &l, nil
}
