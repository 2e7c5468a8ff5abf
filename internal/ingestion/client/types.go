package client

import (
	"fmt"
	"time"
)

// RawEvent is one analytics event as returned by the event store export API.
// Properties is kept loose; the normalizer decides what to make of it.
type RawEvent struct {
	Name       string         `json:"event"`
	DistinctID string         `json:"distinct_id"`
	Timestamp  int64          `json:"timestamp"`
	Properties map[string]any `json:"properties"`
}

// Time returns the event timestamp as UTC wall-clock time.
func (e RawEvent) Time() time.Time {
	return time.Unix(e.Timestamp, 0).UTC()
}

// Prop returns a string property, or empty when absent or not a string.
func (e RawEvent) Prop(key string) string {
	if e.Properties == nil {
		return ""
	}
	s, _ := e.Properties[key].(string)
	return s
}

type exportPage struct {
	Events  []RawEvent `json:"events"`
	HasMore bool       `json:"has_more"`
}

// FetchError is returned when a page could not be fetched after all retry
// attempts, or immediately on a non-retryable response.
type FetchError struct {
	Status      int
	RateLimited bool
	Attempts    int
	Err         error
}

func (e *FetchError) Error() string {
	switch {
	case e.RateLimited:
		return fmt.Sprintf("event store rate limited after %d attempts", e.Attempts)
	case e.Status != 0:
		return fmt.Sprintf("event store returned status %d after %d attempts", e.Status, e.Attempts)
	default:
		return fmt.Sprintf("event store unreachable after %d attempts: %v", e.Attempts, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }
