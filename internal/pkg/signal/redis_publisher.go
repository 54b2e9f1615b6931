package signal

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/FoxPay/internal/pkg/apperr"
)

// RedisPublisher publishes signals as JSON on a pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Channel() string {
	return p.channel
}

func (p *RedisPublisher) Publish(ctx context.Context, s Signal) error {
	body, err := json.Marshal(s)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to encode signal", err)
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		return apperr.Wrap(apperr.KindUpstream, "failed to publish signal", err)
	}
	return nil
}
