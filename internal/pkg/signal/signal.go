// Package signal tells downstream fulfillment about payment outcomes.
// Signals are written to an outbox table first and then published on a
// Redis channel; the outbox dedupe key makes emission idempotent.
package signal

import (
	"context"
	"time"

	"github.com/ManuelReschke/FoxPay/app/models"
)

const (
	KindFulfillmentReady = models.SignalKindFulfillmentReady
	KindPaymentFailed    = models.SignalKindPaymentFailed
)

// Signal is the message consumed by the order system.
type Signal struct {
	ID              int64  `json:"id,string"`
	Kind            string `json:"kind"`
	PaymentIntentID string `json:"payment_intent_id"`
	CustomerID      string `json:"customer_id,omitempty"`
	Amount          int64  `json:"amount,omitempty"`
	Currency        string `json:"currency,omitempty"`
	FailureMessage  string `json:"failure_message,omitempty"`
	// EventID is the webhook event that caused the signal.
	EventID   string    `json:"event_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Emitter records a signal. emitted is false when a signal with the same
// event id already exists.
type Emitter interface {
	Emit(ctx context.Context, s Signal) (emitted bool, err error)
}

// Publisher delivers a stored signal to subscribers.
type Publisher interface {
	Publish(ctx context.Context, s Signal) error
}
