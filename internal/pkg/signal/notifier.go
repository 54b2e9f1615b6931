package signal

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ManuelReschke/FoxPay/internal/pkg/metrics"
)

// Notifier stores signals in the outbox and publishes them right away.
// A failed publish leaves the signal pending for Flush; the outbox row is
// what makes a signal durable.
type Notifier struct {
	outbox    *Outbox
	publisher Publisher
	metrics   *metrics.Metrics
	log       *zap.Logger
}

var _ Emitter = (*Notifier)(nil)

// NewNotifier creates a notifier. publisher may be nil, in which case
// signals stay in the outbox only.
func NewNotifier(outbox *Outbox, publisher Publisher, m *metrics.Metrics, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{outbox: outbox, publisher: publisher, metrics: m, log: log}
}

func (n *Notifier) Emit(ctx context.Context, s Signal) (bool, error) {
	stored, created, err := n.outbox.Store(ctx, s)
	if err != nil {
		return false, err
	}
	if !created {
		n.log.Info("signal already emitted",
			zap.String("kind", s.Kind),
			zap.String("event_id", s.EventID))
		return false, nil
	}
	n.metrics.Signal(stored.Kind)
	n.log.Info("signal emitted",
		zap.Int64("signal_id", stored.ID),
		zap.String("kind", stored.Kind),
		zap.String("payment_intent_id", stored.PaymentIntentID),
		zap.String("event_id", stored.EventID))

	n.publish(ctx, stored)
	return true, nil
}

// Flush republishes signals whose publish failed earlier.
func (n *Notifier) Flush(ctx context.Context) (int, error) {
	if n.publisher == nil {
		return 0, nil
	}
	pending, err := n.outbox.Pending(ctx, 100)
	if err != nil {
		return 0, err
	}
	published := 0
	for _, s := range pending {
		if n.publish(ctx, s) {
			published++
		}
	}
	return published, nil
}

func (n *Notifier) publish(ctx context.Context, s Signal) bool {
	if n.publisher == nil {
		return false
	}
	if err := n.publisher.Publish(ctx, s); err != nil {
		n.log.Warn("failed to publish signal, left pending",
			zap.Int64("signal_id", s.ID),
			zap.Error(err))
		return false
	}
	if err := n.outbox.MarkPublished(ctx, s.ID); err != nil && !errors.Is(err, context.Canceled) {
		n.log.Warn("failed to mark signal published", zap.Int64("signal_id", s.ID), zap.Error(err))
	}
	return true
}
