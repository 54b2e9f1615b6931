package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	ossignal "os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ManuelReschke/FoxPay/app/controllers"
	apiv1 "github.com/ManuelReschke/FoxPay/internal/api/v1"
	"github.com/ManuelReschke/FoxPay/internal/pkg/apperr"
	"github.com/ManuelReschke/FoxPay/internal/pkg/billing"
	"github.com/ManuelReschke/FoxPay/internal/pkg/cache"
	"github.com/ManuelReschke/FoxPay/internal/pkg/config"
	"github.com/ManuelReschke/FoxPay/internal/pkg/constants"
	"github.com/ManuelReschke/FoxPay/internal/pkg/database"
	"github.com/ManuelReschke/FoxPay/internal/pkg/env"
	"github.com/ManuelReschke/FoxPay/internal/pkg/idempotency"
	"github.com/ManuelReschke/FoxPay/internal/pkg/ledger"
	"github.com/ManuelReschke/FoxPay/internal/pkg/logger"
	"github.com/ManuelReschke/FoxPay/internal/pkg/metrics"
	"github.com/ManuelReschke/FoxPay/internal/pkg/ratelimit"
	"github.com/ManuelReschke/FoxPay/internal/pkg/router"
	"github.com/ManuelReschke/FoxPay/internal/pkg/signal"
	"github.com/ManuelReschke/FoxPay/internal/pkg/webhook"
)

const (
	startupTimeout  = 15 * time.Second
	shutdownTimeout = 10 * time.Second
	// snowflake node of this instance; override with NODE_ID when scaling out.
	defaultNodeID = 1
)

func main() {
	env.SetupEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	zl, err := logger.New(cfg.LogLevel, cfg.IsDev())
	if err != nil {
		log.Fatal(err)
	}
	defer zl.Sync() //nolint:errcheck
	zap.ReplaceGlobals(zl)

	app, cleanup, err := NewApplication(cfg, zl)
	if err != nil {
		zl.Fatal("failed to start", zap.Error(err))
	}
	defer cleanup()

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			zl.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	zl.Info("listening", zap.String("addr", cfg.Addr()), zap.String("env", cfg.AppEnv))
	if err := app.Listen(cfg.Addr()); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

// NewApplication wires the service. The returned cleanup closes the
// database and cache connections.
func NewApplication(cfg config.Config, zl *zap.Logger) (*fiber.App, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	m := metrics.New(metrics.Config{ServiceName: "foxpay", Environment: cfg.AppEnv})

	db, err := database.SetupDatabase(cfg.Database, zl)
	if err != nil {
		return nil, nil, err
	}
	rdb := cache.SetupCache(cfg.Cache, zl)
	cacheUp := rdb.Ping(ctx).Err() == nil

	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		_ = cache.Close()
	}

	client, err := ledger.NewStripeClient(ledger.Config{
		SecretKey:  cfg.Stripe.SecretKey,
		APIVersion: cfg.Stripe.APIVersion,
		BaseURL:    cfg.Stripe.BaseURL,
		Logger:     zl,
		Metrics:    m,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	// Bad credentials fail every request; refuse to start instead.
	if err := client.VerifyCredentials(ctx); err != nil {
		if apperr.KindOf(err) == apperr.KindAuthentication {
			cleanup()
			return nil, nil, err
		}
		zl.Warn("could not verify ledger credentials", zap.Error(err))
	}

	svc := billing.NewServiceFromDB(client, db, billing.Options{
		PublishableKey: cfg.Stripe.PublishableKey,
		PublicURL:      cfg.PublicURL,
		CancelURL:      cfg.CheckoutCancelURL,
	}, zl)
	if err := svc.SyncPlanMappings(ctx, cfg.PlanMappings); err != nil {
		cleanup()
		return nil, nil, err
	}

	notifier, err := newNotifier(ctx, db, rdb, cacheUp, cfg, m, zl)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	store, err := newIdempotencyStore(db, rdb, cacheUp, cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	verifier := webhook.NewVerifier(cfg.Stripe.WebhookSecret, 0)
	if !verifier.Enabled() {
		zl.Warn("STRIPE_WEBHOOK_SECRET is not set: webhook signatures are not verified")
	}
	dispatcher := webhook.NewDispatcher()
	webhook.NewHandlers(svc, notifier).Register(dispatcher)
	zl.Info("webhook handlers registered", zap.Strings("types", dispatcher.Types()))
	pipeline := webhook.NewPipeline(verifier, store, dispatcher, m)

	openAPIFile := apiv1.DocumentPath
	if _, err := apiv1.LoadDocument(ctx, openAPIFile); err != nil {
		zl.Warn("api documentation disabled", zap.Error(err))
		openAPIFile = ""
	}

	var limiterStorage fiber.Storage
	if cacheUp {
		limiterStorage = ratelimit.NewStorage(rdb)
	}

	app := fiber.New(fiber.Config{
		AppName:      "FoxPay",
		BodyLimit:    1 << 20,
		Immutable:    true,
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New(), requestid.New())
	app.Use(logger.Middleware(zl, logger.MiddlewareConfig{
		SkipPaths: []string{constants.RouteHealth, constants.RouteMetrics},
	}))

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Billing:          controllers.NewBillingController(svc, !cfg.IsDev()),
		Webhook:          controllers.NewWebhookController(pipeline),
		Health:           controllers.NewHealthController(db, rdb),
		Resolver:         svc,
		Metrics:          m,
		MetricsUser:      cfg.MetricsUser,
		MetricsPassword:  cfg.MetricsPassword,
		RateLimitMax:     cfg.RateLimitMax,
		RateLimitStorage: limiterStorage,
		OpenAPIFile:      openAPIFile,
	})

	return app, cleanup, nil
}

func newNotifier(ctx context.Context, db *gorm.DB, rdb *redis.Client, cacheUp bool, cfg config.Config, m *metrics.Metrics, zl *zap.Logger) (*signal.Notifier, error) {
	nodeID, err := nodeID()
	if err != nil {
		return nil, err
	}
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}

	var publisher signal.Publisher
	if cacheUp {
		publisher = signal.NewRedisPublisher(rdb, cfg.FulfillmentChannel)
	} else {
		zl.Warn("cache unavailable: fulfillment signals stay in the outbox until restart")
	}
	notifier := signal.NewNotifier(signal.NewOutbox(db, node), publisher, m, zl)

	if n, err := notifier.Flush(ctx); err != nil {
		zl.Warn("failed to flush fulfillment outbox", zap.Error(err))
	} else if n > 0 {
		zl.Info("republished pending fulfillment signals", zap.Int("count", n))
	}
	return notifier, nil
}

func newIdempotencyStore(db *gorm.DB, rdb *redis.Client, cacheUp bool, cfg config.Config) (idempotency.Store, error) {
	switch cfg.IdempotencyBackend {
	case config.IdempotencyBackendRedis:
		if !cacheUp {
			return nil, errors.New("IDEMPOTENCY_BACKEND=redis but the cache is unreachable")
		}
		return idempotency.NewRedisStore(rdb, cfg.IdempotencyLease, idempotency.DefaultProcessedRetention), nil
	default:
		return idempotency.NewGormStore(db, cfg.IdempotencyLease), nil
	}
}

func nodeID() (int64, error) {
	raw := env.GetEnv("NODE_ID", "")
	if raw == "" {
		return defaultNodeID, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid NODE_ID: %w", err)
	}
	return id, nil
}

// errorHandler answers errors that escaped the controllers in the same
// shape the controllers use.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{
			"error": fiber.Map{"message": fe.Message, "code": "http_error"},
		})
	}
	logger.FromCtx(c).Error("unhandled error", zap.Error(err))
	return c.Status(apperr.HTTPStatus(err)).JSON(fiber.Map{
		"error": fiber.Map{
			"message": apperr.PublicMessage(err),
			"code":    string(apperr.KindOf(err)),
		},
	})
}
