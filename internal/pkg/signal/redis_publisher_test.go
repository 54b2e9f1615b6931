package signal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/FoxPay/internal/pkg/cache/cachetest"
)

const isolatedSignalTestRedisDB = 12

func TestRedisPublisherPublishesJSON(t *testing.T) {
	client := cachetest.NewClient(t, isolatedSignalTestRedisDB)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pub := NewRedisPublisher(client, "foxpay:fulfillment:test")
	sub := client.Subscribe(ctx, pub.Channel())
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	s := readySignal("evt_redis")
	s.ID = 42
	require.NoError(t, pub.Publish(ctx, s))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var got Signal
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, int64(42), got.ID)
	assert.Equal(t, "evt_redis", got.EventID)
	assert.Equal(t, KindFulfillmentReady, got.Kind)
}
