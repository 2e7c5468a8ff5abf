package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Lead statuses. Ingestion only ever creates leads as StatusNew; later
// transitions are appended to StatusHistory by the portal.
const StatusNew = "new"

// StatusChange records one status transition on a lead.
type StatusChange struct {
	Status    string    `json:"status"`
	ChangedAt time.Time `json:"changed_at"`
}

// Lead is the aggregate of all actions one seeker took toward one owner
// through one subject. Its identity is Key; everything else is derived from
// the action list and only ever grows.
type Lead struct {
	ID uuid.UUID
	Key

	OwnerType   string
	IsAnonymous bool

	Actions         []Action
	TotalActions    int
	FirstActionDate string
	LastActionDate  string
	LastActionType  ActionType
	Score           int

	Status        string
	StatusHistory []StatusChange
	Notes         string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewLead builds a fresh lead from a batch of actions sharing the same key.
func NewLead(key Key, ownerType string, anonymous bool, actions []Action) Lead {
	now := time.Now().UTC()
	l := Lead{
		ID:          uuid.New(),
		Key:         key,
		OwnerType:   ownerType,
		IsAnonymous: anonymous,
		Status:      StatusNew,
		StatusHistory: []StatusChange{
			{Status: StatusNew, ChangedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	l.Merge(actions, anonymous)
	return l
}

// Merge folds a batch of actions into the lead, skipping any action whose id
// is already present, and recomputes the derived fields. Re-ingesting an
// already-processed window is therefore a no-op. It returns the number of
// actions actually added.
func (l *Lead) Merge(actions []Action, anonymous bool) int {
	seen := make(map[string]struct{}, len(l.Actions))
	for _, a := range l.Actions {
		seen[a.ID] = struct{}{}
	}

	added := 0
	for _, a := range actions {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		l.Actions = append(l.Actions, a)
		added++
	}

	// A seeker who authenticates stays identified on this lead.
	if !anonymous {
		l.IsAnonymous = false
	}

	if added > 0 {
		l.recompute()
		l.UpdatedAt = time.Now().UTC()
	}
	return added
}

// recompute rebuilds every derived field from the full action list. Dates
// come from the chronological extremes and the score is the maximum single
// action score, so both are monotone under merges.
func (l *Lead) recompute() {
	sort.SliceStable(l.Actions, func(i, j int) bool {
		return l.Actions[i].Timestamp.Before(l.Actions[j].Timestamp)
	})

	l.TotalActions = len(l.Actions)
	if l.TotalActions == 0 {
		return
	}

	first := l.Actions[0]
	last := l.Actions[l.TotalActions-1]
	l.FirstActionDate = first.Date
	l.LastActionDate = last.Date
	l.LastActionType = last.Type

	score := 0
	for _, a := range l.Actions {
		if s := a.Score(); s > score {
			score = s
		}
	}
	if score > l.Score {
		l.Score = score
	}
}
