package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ManuelReschke/FoxPay/internal/pkg/database"
	"github.com/ManuelReschke/FoxPay/internal/pkg/logger"
)

const healthTimeout = 2 * time.Second

type HealthController struct {
	db    *gorm.DB
	cache *redis.Client
}

// NewHealthController checks db and, when not nil, cache.
func NewHealthController(db *gorm.DB, cache *redis.Client) *HealthController {
	return &HealthController{db: db, cache: cache}
}

func (hc *HealthController) HandleHealthz(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()

	checks := fiber.Map{"database": "ok"}
	healthy := true

	if err := database.Ping(ctx, hc.db); err != nil {
		logger.FromCtx(c).Warn("health check failed", zap.String("check", "database"), zap.Error(err))
		checks["database"] = "unavailable"
		healthy = false
	}
	if hc.cache != nil {
		checks["cache"] = "ok"
		if err := hc.cache.Ping(ctx).Err(); err != nil {
			logger.FromCtx(c).Warn("health check failed", zap.String("check", "cache"), zap.Error(err))
			checks["cache"] = "unavailable"
			healthy = false
		}
	}

	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "checks": checks})
	}
	return c.JSON(fiber.Map{"status": "ok", "checks": checks})
}
