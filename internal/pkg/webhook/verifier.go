// Package webhook ingests ledger webhook deliveries: it verifies the
// signature, claims the event id, dispatches by event type and records
// the outcome.
package webhook

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/ManuelReschke/FoxPay/internal/pkg/apperr"
)

// Verifier authenticates webhook payloads. Without a secret it trusts the
// body as-is; that degraded mode exists for local development only.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance}
}

// Enabled reports whether signatures are checked.
func (v *Verifier) Enabled() bool {
	return v.secret != ""
}

// Verify checks payload against the signature header and parses it.
func (v *Verifier) Verify(payload []byte, signature string) (stripe.Event, error) {
	if !v.Enabled() {
		var ev stripe.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return stripe.Event{}, apperr.Wrap(apperr.KindValidation, "malformed webhook payload", err)
		}
		if ev.Type == "" {
			return stripe.Event{}, apperr.Validation("webhook payload has no type")
		}
		return ev, nil
	}

	if signature == "" {
		return stripe.Event{}, apperr.Wrap(apperr.KindSignature, "missing webhook signature", webhook.ErrNotSigned)
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		Tolerance: v.tolerance,
		// The pinned API version of the account may differ from the
		// library's; payload fields used here are stable across versions.
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		msg := "invalid webhook signature"
		switch {
		case errors.Is(err, webhook.ErrTooOld):
			msg = "webhook timestamp outside tolerance"
		case errors.Is(err, webhook.ErrInvalidHeader):
			msg = "malformed webhook signature header"
		}
		return stripe.Event{}, apperr.Wrap(apperr.KindSignature, msg, err)
	}
	return ev, nil
}
