// Package ratelimit throttles storefront requests per customer or client IP.
package ratelimit

import (
	"net"
	"strconv"

	"github.com/gofiber/storage/redis"
	goredis "github.com/redis/go-redis/v9"
)

// StorageDatabase keeps limiter counters apart from the idempotency keys
// and the fulfillment channel in DB 0.
const StorageDatabase = 1

// NewStorage builds a fiber storage on the server behind the cache client
// so that limits hold across instances.
func NewStorage(client *goredis.Client) *redis.Storage {
	host := "localhost"
	port := 6379
	password := ""
	if client != nil {
		opts := client.Options()
		if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		password = opts.Password
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: StorageDatabase,
		Reset:    false,
	})
}
