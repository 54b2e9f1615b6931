package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/FoxPay/internal/pkg/apperr"
	"github.com/ManuelReschke/FoxPay/internal/pkg/cache/cachetest"
)

const isolatedIdempotencyTestRedisDB = 13

func TestRedisStoreLifecycle(t *testing.T) {
	client := cachetest.NewClient(t, isolatedIdempotencyTestRedisDB)
	store := NewRedisStore(client, time.Minute, time.Hour)
	ctx := context.Background()
	ev := Event{ID: "evt_redis"}

	res, err := store.Claim(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, Claimed, res)

	res, err = store.Claim(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, InFlight, res)

	require.NoError(t, store.Release(ctx, "evt_redis", errors.New("boom"), 500))
	failure, err := client.HGetAll(ctx, redisFailureKey("evt_redis")).Result()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"status": "500", "error": "boom"}, failure)

	res, err = store.Claim(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, Claimed, res)

	require.NoError(t, store.Complete(ctx, "evt_redis", 200))
	state, err := client.Get(ctx, redisKey("evt_redis")).Result()
	require.NoError(t, err)
	assert.Equal(t, "processed:200", state)

	res, err = store.Claim(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, AlreadyProcessed, res)

	// A late release must not reopen a processed event.
	require.NoError(t, store.Release(ctx, "evt_redis", nil, 500))
	res, err = store.Claim(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, AlreadyProcessed, res)

	ttl, err := client.TTL(ctx, redisKey("evt_redis")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Minute)
}

func TestRedisStoreCompleteWithoutClaim(t *testing.T) {
	client := cachetest.NewClient(t, isolatedIdempotencyTestRedisDB)
	store := NewRedisStore(client, time.Minute, time.Hour)

	err := store.Complete(context.Background(), "evt_never", 200)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "claimed", Claimed.String())
	assert.Equal(t, "already_processed", AlreadyProcessed.String())
	assert.Equal(t, "in_flight", InFlight.String())
}
