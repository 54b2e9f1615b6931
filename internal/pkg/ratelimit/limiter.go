package ratelimit

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/FoxPay/internal/pkg/usercontext"
)

const defaultWindow = time.Minute

// Config configures New. A nil Storage keeps counters in memory.
type Config struct {
	Max     int
	Window  time.Duration
	Storage fiber.Storage
}

// New returns a sliding-window limiter keyed by the resolved customer, or
// by client IP for anonymous callers. Max <= 0 disables limiting.
func New(cfg Config) fiber.Handler {
	if cfg.Max <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}

	return limiter.New(limiter.Config{
		Max:               cfg.Max,
		Expiration:        cfg.Window,
		Storage:           cfg.Storage,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      Key,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": fiber.Map{
					"message": "too many requests",
					"code":    "rate_limited",
				},
			})
		},
	})
}

// Key identifies the caller a request is counted against.
func Key(c *fiber.Ctx) string {
	if id := usercontext.GetCustomerID(c); id != "" {
		return "customer:" + id
	}
	return "ip:" + c.IP()
}
