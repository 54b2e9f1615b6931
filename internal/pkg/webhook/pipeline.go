package webhook

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ManuelReschke/FoxPay/internal/pkg/apperr"
	"github.com/ManuelReschke/FoxPay/internal/pkg/idempotency"
	"github.com/ManuelReschke/FoxPay/internal/pkg/logger"
	"github.com/ManuelReschke/FoxPay/internal/pkg/metrics"
)

// Result describes an acknowledged delivery.
type Result struct {
	EventID   string
	EventType string
	Outcome   string
	// Status is the HTTP status answered to the processor.
	Status int
	// HandlerError is set when a handler rejected the event permanently.
	// The delivery is still acknowledged so the processor does not retry.
	HandlerError error
}

// Pipeline runs a delivery through verify, claim, dispatch and acknowledge.
type Pipeline struct {
	verifier   *Verifier
	store      idempotency.Store
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
}

func NewPipeline(verifier *Verifier, store idempotency.Store, dispatcher *Dispatcher, m *metrics.Metrics) *Pipeline {
	return &Pipeline{verifier: verifier, store: store, dispatcher: dispatcher, metrics: m}
}

// Ingest processes one delivery. A returned error means the delivery was
// not acknowledged: signature failures are rejected before anything is
// stored, an in-flight duplicate is a Conflict, and transient handler
// failures release the claim so that the processor redelivers.
func (p *Pipeline) Ingest(ctx context.Context, payload []byte, signature string) (*Result, error) {
	log := logger.From(ctx)

	ev, err := p.verifier.Verify(payload, signature)
	if err != nil {
		p.metrics.WebhookEvent("", metrics.OutcomeRejected)
		log.Warn("webhook rejected", zap.Error(err))
		return nil, err
	}
	eventType := string(ev.Type)
	log = log.With(zap.String("event_id", ev.ID), zap.String("event_type", eventType))
	ctx = logger.WithContext(ctx, log)

	claim := idempotency.Event{
		ID:             ev.ID,
		Type:           eventType,
		Payload:        payload,
		SignatureValid: p.verifier.Enabled(),
	}
	key := idempotency.Key(claim)
	res := &Result{EventID: key, EventType: eventType, Status: fiber.StatusOK}

	claimed, err := p.store.Claim(ctx, claim)
	if err != nil {
		return nil, err
	}
	switch claimed {
	case idempotency.AlreadyProcessed:
		p.metrics.WebhookEvent(eventType, metrics.OutcomeDuplicate)
		log.Info("webhook already processed")
		res.Outcome = metrics.OutcomeDuplicate
		return res, nil
	case idempotency.InFlight:
		p.metrics.WebhookEvent(eventType, metrics.OutcomeInFlight)
		log.Info("webhook is being processed by another delivery")
		return nil, apperr.New(apperr.KindConflict, "event is being processed")
	}

	handled, herr := p.dispatcher.Dispatch(ctx, ev)
	if herr != nil {
		if retryable(herr) {
			status := apperr.HTTPStatus(herr)
			if status < fiber.StatusInternalServerError {
				status = fiber.StatusInternalServerError
			}
			if err := p.store.Release(ctx, key, herr, status); err != nil {
				log.Error("failed to release webhook event", zap.Error(err))
			}
			p.metrics.WebhookEvent(eventType, metrics.OutcomeHandlerFailed)
			log.Error("webhook handler failed, awaiting redelivery", zap.Error(herr))
			return nil, herr
		}
		// Permanent failures are recorded and acknowledged. The claim is
		// released so that a manual resend can process the event again.
		if err := p.store.Release(ctx, key, herr, fiber.StatusOK); err != nil {
			log.Error("failed to release webhook event", zap.Error(err))
		}
		p.metrics.WebhookEvent(eventType, metrics.OutcomeHandlerFailed)
		log.Warn("webhook handler rejected event", zap.Error(herr))
		res.Outcome = metrics.OutcomeHandlerFailed
		res.HandlerError = herr
		return res, nil
	}

	if err := p.store.Complete(ctx, key, fiber.StatusOK); err != nil {
		return nil, err
	}
	res.Outcome = metrics.OutcomeProcessed
	if !handled {
		res.Outcome = metrics.OutcomeIgnored
	}
	p.metrics.WebhookEvent(eventType, res.Outcome)
	log.Info("webhook processed", zap.String("outcome", res.Outcome))
	return res, nil
}

// retryable reports whether a redelivery may succeed where this one failed.
func retryable(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindUpstream, apperr.KindInternal, apperr.KindConflict, apperr.KindPartialCommit, apperr.KindAuthentication:
		return true
	default:
		return false
	}
}
