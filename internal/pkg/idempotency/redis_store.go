package idempotency

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/FoxPay/internal/pkg/apperr"
)

const (
	redisKeyPrefix     = "foxpay:webhook:event:"
	redisFailurePrefix = "foxpay:webhook:failure:"
	redisStateClaimed  = "processing"
	redisStateComplete = "processed"
	// Stripe stops redelivering after three days.
	DefaultProcessedRetention = 7 * 24 * time.Hour
)

// releaseScript deletes the key only while it still holds a claim, so a
// late Release can never erase a completed event. The failure is kept in a
// hash next to it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("DEL", KEYS[1])
	redis.call("HSET", KEYS[2], "status", ARGV[2], "error", ARGV[3])
	redis.call("PEXPIRE", KEYS[2], ARGV[4])
	return 1
end
return 0
`)

// completeScript marks a claimed key processed. The value is
// "processed:<status>".
var completeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
	return 1
end
return 0
`)

// RedisStore keeps claims as keys with a TTL: SETNX takes a lease,
// completion rewrites the value with a long retention.
type RedisStore struct {
	client    *redis.Client
	lease     time.Duration
	retention time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, lease, retention time.Duration) *RedisStore {
	if lease <= 0 {
		lease = DefaultLease
	}
	if retention <= 0 {
		retention = DefaultProcessedRetention
	}
	return &RedisStore{client: client, lease: lease, retention: retention}
}

func redisKey(eventID string) string {
	return redisKeyPrefix + eventID
}

func redisFailureKey(eventID string) string {
	return redisFailurePrefix + eventID
}

func processedValue(responseStatus int) string {
	return redisStateComplete + ":" + strconv.Itoa(responseStatus)
}

func (s *RedisStore) Claim(ctx context.Context, ev Event) (Result, error) {
	key := redisKey(Key(ev))
	// Two rounds cover a claim that expires between SETNX and GET.
	for i := 0; i < 2; i++ {
		ok, err := s.client.SetNX(ctx, key, redisStateClaimed, s.lease).Result()
		if err != nil {
			return 0, apperr.Wrap(apperr.KindInternal, "failed to claim webhook event", err)
		}
		if ok {
			return Claimed, nil
		}
		state, err := s.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return 0, apperr.Wrap(apperr.KindInternal, "failed to read webhook event", err)
		}
		if strings.HasPrefix(state, redisStateComplete) {
			return AlreadyProcessed, nil
		}
		return InFlight, nil
	}
	return InFlight, nil
}

func (s *RedisStore) Complete(ctx context.Context, eventID string, responseStatus int) error {
	n, err := completeScript.Run(ctx, s.client, []string{redisKey(eventID)},
		redisStateClaimed, processedValue(responseStatus), s.retention.Milliseconds()).Int()
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to complete webhook event", err)
	}
	if n == 0 {
		return apperr.New(apperr.KindConflict, "webhook event is not claimed")
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, eventID string, cause error, responseStatus int) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	keys := []string{redisKey(eventID), redisFailureKey(eventID)}
	err := releaseScript.Run(ctx, s.client, keys,
		redisStateClaimed, responseStatus, msg, s.retention.Milliseconds()).Err()
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to release webhook event", err)
	}
	return nil
}
