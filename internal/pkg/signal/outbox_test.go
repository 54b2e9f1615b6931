package signal

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ManuelReschke/FoxPay/internal/pkg/apperr"
	"github.com/ManuelReschke/FoxPay/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/FoxPay/internal/pkg/metrics"
)

func newTestOutbox(t *testing.T) *Outbox {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewOutbox(dbtest.New(t), node)
}

type recordingPublisher struct {
	published []Signal
	fail      error
}

func (p *recordingPublisher) Publish(ctx context.Context, s Signal) error {
	if p.fail != nil {
		return p.fail
	}
	p.published = append(p.published, s)
	return nil
}

func readySignal(eventID string) Signal {
	return Signal{
		Kind:            KindFulfillmentReady,
		PaymentIntentID: "pi_1",
		CustomerID:      "cus_1",
		Amount:          1500,
		Currency:        "usd",
		EventID:         eventID,
	}
}

func TestOutboxStoreDedupesByEvent(t *testing.T) {
	outbox := newTestOutbox(t)
	ctx := context.Background()

	first, created, err := outbox.Store(ctx, readySignal("evt_1"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, first.ID)

	_, created, err = outbox.Store(ctx, readySignal("evt_1"))
	require.NoError(t, err)
	assert.False(t, created)

	row, err := outbox.Get(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, row.ID)
	assert.Equal(t, KindFulfillmentReady, row.Kind)
	assert.False(t, row.Published)
}

func TestOutboxStoreValidates(t *testing.T) {
	outbox := newTestOutbox(t)
	ctx := context.Background()

	tests := []Signal{
		{Kind: "refund", PaymentIntentID: "pi_1", EventID: "evt_1"},
		{Kind: KindPaymentFailed, PaymentIntentID: "pi_1"},
		{Kind: KindPaymentFailed, EventID: "evt_2"},
	}
	for _, s := range tests {
		_, _, err := outbox.Store(ctx, s)
		if !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("Store(%+v) error = %v, want validation error", s, err)
		}
	}
}

func TestNotifierEmitsOncePerEvent(t *testing.T) {
	outbox := newTestOutbox(t)
	pub := &recordingPublisher{}
	m := metrics.New(metrics.Config{ServiceName: "foxpay-test"})
	n := NewNotifier(outbox, pub, m, zaptest.NewLogger(t))
	ctx := context.Background()

	emitted, err := n.Emit(ctx, readySignal("evt_1"))
	require.NoError(t, err)
	assert.True(t, emitted)

	emitted, err = n.Emit(ctx, readySignal("evt_1"))
	require.NoError(t, err)
	assert.False(t, emitted)

	require.Len(t, pub.published, 1)
	assert.Equal(t, "evt_1", pub.published[0].EventID)
	count, err := testutil.GatherAndCount(m.Registry(), "foxpay_fulfillment_signals_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	row, err := outbox.Get(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, row.Published)
	assert.NotNil(t, row.PublishedAt)
}

func TestNotifierFlushRetriesFailedPublishes(t *testing.T) {
	outbox := newTestOutbox(t)
	pub := &recordingPublisher{fail: errors.New("redis down")}
	n := NewNotifier(outbox, pub, nil, zaptest.NewLogger(t))
	ctx := context.Background()

	emitted, err := n.Emit(ctx, Signal{Kind: KindPaymentFailed, PaymentIntentID: "pi_2", EventID: "evt_2", FailureMessage: "card declined"})
	require.NoError(t, err)
	assert.True(t, emitted, "a failed publish must not fail emission")

	pending, err := outbox.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "card declined", pending[0].FailureMessage)

	pub.fail = nil
	published, err := n.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, published)

	pending, err = outbox.Pending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
