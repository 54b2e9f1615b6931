package ledger

import (
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v79"

	"github.com/ManuelReschke/FoxPay/internal/pkg/apperr"
)

// classifyError maps a stripe-go error onto the application error kinds.
// Ledger-provided messages are kept because they are written for end users.
// A reference to a missing object inside a write (400 resource_missing) is a
// validation failure; only a lookup of a missing object (404) is NotFound.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}

	var se *stripe.Error
	if !errors.As(err, &se) {
		return apperr.Wrap(apperr.KindUpstream, "payment provider unreachable", err)
	}

	kind := apperr.KindValidation
	switch {
	case se.HTTPStatusCode == http.StatusUnauthorized || se.HTTPStatusCode == http.StatusForbidden:
		kind = apperr.KindAuthentication
	case se.Type == stripe.ErrorTypeCard || se.HTTPStatusCode == http.StatusPaymentRequired:
		kind = apperr.KindPayment
	case se.HTTPStatusCode == http.StatusTooManyRequests,
		se.HTTPStatusCode >= http.StatusInternalServerError,
		se.Type == stripe.ErrorTypeAPI:
		kind = apperr.KindUpstream
	case se.HTTPStatusCode == http.StatusNotFound:
		kind = apperr.KindNotFound
	case se.Type == stripe.ErrorTypeIdempotency || se.HTTPStatusCode == http.StatusConflict:
		kind = apperr.KindConflict
	}

	msg := se.Msg
	if msg == "" {
		msg = http.StatusText(se.HTTPStatusCode)
	}
	return &apperr.Error{Kind: kind, Message: msg, Code: string(se.Code), Err: err}
}
