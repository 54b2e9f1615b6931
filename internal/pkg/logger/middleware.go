package logger

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// MiddlewareConfig configures the request logging middleware.
type MiddlewareConfig struct {
	// RequestIDKey is the fiber locals key set by the requestid middleware.
	RequestIDKey string
	// SkipPaths are not logged (health probes, metrics scrapes).
	SkipPaths []string
}

// Middleware attaches a request-scoped logger to the fiber context and logs
// every completed request with masked headers.
func Middleware(base *zap.Logger, cfg MiddlewareConfig) fiber.Handler {
	if base == nil {
		base = zap.L()
	}
	if cfg.RequestIDKey == "" {
		cfg.RequestIDKey = "requestid"
	}
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		reqLog := base
		if rid, ok := c.Locals(cfg.RequestIDKey).(string); ok && rid != "" {
			reqLog = base.With(zap.String("request_id", rid))
		}
		c.Locals(localsKey, reqLog)
		c.SetUserContext(WithContext(c.UserContext(), reqLog))

		start := time.Now()
		err := c.Next()
		if _, ok := skip[c.Path()]; ok {
			return err
		}

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.Any("headers", MaskHeaders(c.GetReqHeaders())),
		}
		switch {
		case status >= fiber.StatusInternalServerError:
			reqLog.Error("request completed", append(fields, zap.Error(err))...)
		case status >= fiber.StatusBadRequest:
			reqLog.Warn("request completed", fields...)
		default:
			reqLog.Info("request completed", fields...)
		}
		return err
	}
}
