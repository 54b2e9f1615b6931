package webhook

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"github.com/ManuelReschke/FoxPay/internal/pkg/apperr"
	"github.com/ManuelReschke/FoxPay/internal/pkg/billing"
	"github.com/ManuelReschke/FoxPay/internal/pkg/ledger"
	"github.com/ManuelReschke/FoxPay/internal/pkg/logger"
	"github.com/ManuelReschke/FoxPay/internal/pkg/signal"
)

// Event types with side effects.
const (
	EventPaymentIntentSucceeded     stripe.EventType = "payment_intent.succeeded"
	EventPaymentIntentPaymentFailed stripe.EventType = "payment_intent.payment_failed"
	EventSubscriptionCreated        stripe.EventType = "customer.subscription.created"
	EventSubscriptionUpdated        stripe.EventType = "customer.subscription.updated"
	EventSubscriptionDeleted        stripe.EventType = "customer.subscription.deleted"
	EventCheckoutSessionCompleted   stripe.EventType = "checkout.session.completed"
)

// Reconciler merges ledger state reported by webhooks into local state.
type Reconciler interface {
	ReconcileSubscription(ctx context.Context, sub ledger.Subscription, eventAt time.Time) (bool, error)
	ApplyCompletedSetupSession(ctx context.Context, cs ledger.CheckoutSession) (*billing.CommitResult, error)
}

// Handlers holds the collaborators of the event handlers.
type Handlers struct {
	reconciler Reconciler
	signals    signal.Emitter
}

func NewHandlers(reconciler Reconciler, signals signal.Emitter) *Handlers {
	return &Handlers{reconciler: reconciler, signals: signals}
}

// Register installs every handler on d.
func (h *Handlers) Register(d *Dispatcher) {
	d.Register(EventPaymentIntentSucceeded, h.paymentSucceeded)
	d.Register(EventPaymentIntentPaymentFailed, h.paymentFailed)
	d.Register(EventSubscriptionCreated, h.subscriptionChanged)
	d.Register(EventSubscriptionUpdated, h.subscriptionChanged)
	d.Register(EventSubscriptionDeleted, h.subscriptionChanged)
	d.Register(EventCheckoutSessionCompleted, h.checkoutCompleted)
}

func rawObject(ev stripe.Event) ([]byte, error) {
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return nil, apperr.Validation("event " + ev.ID + " has no data object")
	}
	return ev.Data.Raw, nil
}

func (h *Handlers) paymentSucceeded(ctx context.Context, ev stripe.Event) error {
	return h.emitPaymentSignal(ctx, ev, signal.KindFulfillmentReady)
}

func (h *Handlers) paymentFailed(ctx context.Context, ev stripe.Event) error {
	return h.emitPaymentSignal(ctx, ev, signal.KindPaymentFailed)
}

func (h *Handlers) emitPaymentSignal(ctx context.Context, ev stripe.Event, kind string) error {
	raw, err := rawObject(ev)
	if err != nil {
		return err
	}
	pi, err := ledger.PaymentIntentFromJSON(raw)
	if err != nil {
		return err
	}
	eventID := ev.ID
	if eventID == "" {
		// Unsigned deliveries may lack an id; one signal per intent and kind.
		eventID = kind + ":" + pi.ID
	}
	_, err = h.signals.Emit(ctx, signal.Signal{
		Kind:            kind,
		PaymentIntentID: pi.ID,
		CustomerID:      pi.CustomerID,
		Amount:          pi.Amount,
		Currency:        pi.Currency,
		FailureMessage:  pi.FailureMessage,
		EventID:         eventID,
	})
	return err
}

func (h *Handlers) subscriptionChanged(ctx context.Context, ev stripe.Event) error {
	raw, err := rawObject(ev)
	if err != nil {
		return err
	}
	sub, err := ledger.SubscriptionFromJSON(raw)
	if err != nil {
		return err
	}
	eventAt := time.Unix(ev.Created, 0).UTC()
	if ev.Created == 0 {
		eventAt = time.Now().UTC()
	}
	_, err = h.reconciler.ReconcileSubscription(ctx, *sub, eventAt)
	return err
}

func (h *Handlers) checkoutCompleted(ctx context.Context, ev stripe.Event) error {
	raw, err := rawObject(ev)
	if err != nil {
		return err
	}
	cs, err := ledger.CheckoutSessionFromJSON(raw)
	if err != nil {
		return err
	}
	if cs.Mode != ledger.CheckoutModeSetup {
		return nil
	}
	res, err := h.reconciler.ApplyCompletedSetupSession(ctx, *cs)
	if err != nil {
		return err
	}
	if res != nil {
		logger.From(ctx).Info("setup session applied",
			zap.String("session_id", cs.ID),
			zap.String("subscription_id", res.SubscriptionID),
			zap.Strings("steps", res.Steps))
	}
	return nil
}
