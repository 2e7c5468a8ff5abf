package client

import "time"

// Policy controls per-page retry behavior. Rate-limited responses wait
// longer than ordinary transient failures, and both double per attempt.
type Policy struct {
	RateLimitBase time.Duration
	TransientBase time.Duration
	MaxAttempts   int
}

// DefaultPolicy matches the event store's documented limits.
func DefaultPolicy() Policy {
	return Policy{
		RateLimitBase: 2 * time.Second,
		TransientBase: 1 * time.Second,
		MaxAttempts:   3,
	}
}

// Delay returns how long to wait after the given 1-based failed attempt.
func (p Policy) Delay(rateLimited bool, attempt int) time.Duration {
	base := p.TransientBase
	if rateLimited {
		base = p.RateLimitBase
	}
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}
