package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ManuelReschke/FoxPay/internal/pkg/config"
)

var client *redis.Client

// SetupCache initializes the connection to the Redis server used for
// idempotency claims, fulfillment signals and rate limiting.
func SetupCache(cfg config.Cache, log *zap.Logger) *redis.Client {
	client = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("could not connect to cache", zap.String("addr", cfg.Addr()), zap.Error(err))
	} else {
		log.Info("connected to cache", zap.String("addr", cfg.Addr()))
	}
	return client
}

// Close closes the shared client.
func Close() error {
	if client == nil {
		return nil
	}
	return client.Close()
}
