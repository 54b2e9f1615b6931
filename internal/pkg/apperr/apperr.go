package apperr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Kind classifies an error for callers and for the HTTP boundary.
type Kind string

const (
	KindValidation     Kind = "validation_error"
	KindNotFound       Kind = "not_found"
	KindPayment        Kind = "payment_error"
	KindAuthentication Kind = "authentication_error"
	KindSignature      Kind = "signature_error"
	KindPartialCommit  Kind = "partial_commit"
	KindUpstream       Kind = "upstream_unavailable"
	KindConflict       Kind = "conflict"
	KindInternal       Kind = "internal_error"
)

// Error is the classified error returned by the ledger client, the
// orchestrator and the webhook pipeline.
type Error struct {
	Kind    Kind
	Message string
	// Code is the ledger error code when one was reported (e.g. card_declined).
	Code string
	// Steps lists the steps that completed before a PartialCommit failure.
	Steps []string
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Steps) > 0 {
		fmt.Fprintf(&b, " (completed: %s)", strings.Join(e.Steps, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so errors.Is(err, apperr.ErrNotFound) works for any
// not-found error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation     = &Error{Kind: KindValidation}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrPayment        = &Error{Kind: KindPayment}
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrSignature      = &Error{Kind: KindSignature}
	ErrPartialCommit  = &Error{Kind: KindPartialCommit}
	ErrUpstream       = &Error{Kind: KindUpstream}
	ErrConflict       = &Error{Kind: KindConflict}
	ErrInternal       = &Error{Kind: KindInternal}
)

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation builds a ValidationError with a caller-facing message.
func Validation(message string) *Error { return New(KindValidation, message) }

// NotFound builds a NotFoundError for the named entity.
func NotFound(entity, id string) *Error {
	return New(KindNotFound, fmt.Sprintf("%s %s not found", entity, id))
}

// PartialCommit reports a multi-step ledger operation that failed after
// earlier steps had already been applied.
func PartialCommit(completed []string, err error) *Error {
	steps := append([]string(nil), completed...)
	msg := "payment method update partially applied"
	var inner *Error
	if errors.As(err, &inner) && inner.Message != "" {
		msg = msg + ": " + inner.Message
	}
	return &Error{Kind: KindPartialCommit, Message: msg, Steps: steps, Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As returns the classified error inside err, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HTTPStatus maps an error kind to the status code the HTTP boundary answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindSignature:
		return fiber.StatusBadRequest
	case KindNotFound:
		return fiber.StatusNotFound
	case KindPayment:
		return fiber.StatusPaymentRequired
	case KindPartialCommit:
		return fiber.StatusBadGateway
	case KindUpstream:
		return fiber.StatusServiceUnavailable
	case KindConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// PublicMessage returns the text that may be shown to callers. Ledger user
// messages pass through; authentication and internal failures are reduced
// to generic texts.
func PublicMessage(err error) string {
	e, ok := As(err)
	if !ok {
		return "internal server error"
	}
	switch e.Kind {
	case KindAuthentication, KindInternal:
		return "internal server error"
	case KindUpstream:
		return "payment provider unavailable, please retry"
	case KindSignature:
		return "invalid webhook signature"
	}
	if e.Message == "" {
		return strings.ReplaceAll(string(e.Kind), "_", " ")
	}
	return e.Message
}
