// Package idempotency records which webhook events have been applied so
// that each event's side effects happen at most once.
package idempotency

import (
	"context"
	"time"
)

// Result is the outcome of a claim attempt.
type Result int

const (
	// Claimed means the caller owns the event and must Complete or Release it.
	Claimed Result = iota
	// AlreadyProcessed means an earlier delivery applied the event.
	AlreadyProcessed
	// InFlight means another delivery holds an unexpired claim.
	InFlight
)

func (r Result) String() string {
	switch r {
	case Claimed:
		return "claimed"
	case AlreadyProcessed:
		return "already_processed"
	case InFlight:
		return "in_flight"
	default:
		return "unknown"
	}
}

// DefaultLease bounds how long a crashed delivery blocks redelivery.
const DefaultLease = 60 * time.Second

// Event is what a claim records about a delivery.
type Event struct {
	ID             string
	Type           string
	Payload        []byte
	SignatureValid bool
}

// Store is an atomic claim/complete/release register keyed by event id.
// Claim must be a compare-and-swap: of any number of concurrent claims for
// the same id at most one returns Claimed.
type Store interface {
	Claim(ctx context.Context, ev Event) (Result, error)
	// Complete marks the event processed and records the response status.
	Complete(ctx context.Context, eventID string, responseStatus int) error
	// Release gives the claim up after a failed handler so that a
	// redelivery can process the event again.
	Release(ctx context.Context, eventID string, cause error, responseStatus int) error
}
