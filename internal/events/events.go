// Package events defines the application's domain events on top of the
// platform event bus.
package events

import (
	"time"

	platformevents "listingportal_backend/platform/events"
)

// Re-exported so feature packages depend on one events package.
type (
	Event       = platformevents.Event
	BaseEvent   = platformevents.BaseEvent
	Bus         = platformevents.Bus
	Handler     = platformevents.Handler
	HandlerFunc = platformevents.HandlerFunc
	InMemoryBus = platformevents.InMemoryBus
)

var (
	NewBaseEvent   = platformevents.NewBaseEvent
	NewInMemoryBus = platformevents.NewInMemoryBus
)

const (
	EventLeadCaptured       = "ingestion.lead_captured"
	EventIngestionCompleted = "ingestion.completed"
)

// LeadCaptured fires once per newly created lead.
type LeadCaptured struct {
	BaseEvent
	LeadID      string
	ContextType string
	SubjectID   string
	OwnerID     string
	SeekerID    string
	IsAnonymous bool
	Score       int
}

func (e LeadCaptured) EventName() string { return EventLeadCaptured }

// IngestionCompleted fires at the end of every pipeline run, successful or
// partially failed, with the run's summary numbers.
type IngestionCompleted struct {
	BaseEvent
	WindowStart   time.Time
	WindowEnd     time.Time
	EventsFetched int
	LeadsCreated  int
	LeadsUpdated  int
	UniqueLeads   int
	UniqueSeekers int
	ErrorsCount   int
	Duration      time.Duration
}

func (e IngestionCompleted) EventName() string { return EventIngestionCompleted }
