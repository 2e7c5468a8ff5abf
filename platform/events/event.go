// Package events carries domain events between feature modules over an
// in-process bus. It belongs to the platform layer and knows nothing
// about leads or ingestion.
package events

import (
	"context"
	"time"
)

// Event is implemented by everything published on the bus.
type Event interface {
	// EventName identifies the event type and doubles as the
	// subscription key.
	EventName() string
	// OccurredAt reports when the event happened.
	OccurredAt() time.Time
}

// BaseEvent carries the timestamp shared by every event. Embed it and
// implement EventName on the concrete type.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt reports when the event happened.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps a BaseEvent with the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler consumes events it subscribed to.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc lets a plain function subscribe as a Handler.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus routes published events to their subscribers.
type Bus interface {
	// Publish delivers the event to every handler subscribed to its
	// name. Delivery is asynchronous.
	Publish(ctx context.Context, event Event)

	// PublishSync delivers the event and blocks until every handler
	// has run, returning the first handler error.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler under an event name, matched
	// against Event.EventName at publish time.
	Subscribe(eventName string, handler Handler)
}
