package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/FoxPay/app/controllers"
	"github.com/ManuelReschke/FoxPay/internal/pkg/metrics"
	"github.com/ManuelReschke/FoxPay/internal/pkg/middleware"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the handlers and collaborators the routers mount.
type Dependencies struct {
	Billing  *controllers.BillingController
	Webhook  *controllers.WebhookController
	Health   *controllers.HealthController
	Resolver middleware.CustomerResolver
	Metrics  *metrics.Metrics

	MetricsUser     string
	MetricsPassword string

	// RateLimitMax requests per minute and caller; 0 disables the limiter.
	RateLimitMax int
	// RateLimitStorage shares limiter counters between instances; nil keeps
	// them in memory.
	RateLimitStorage fiber.Storage

	// OpenAPIFile is served under /docs/api when set.
	OpenAPIFile string
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// HttpRouter installs the user context middleware the API routes rely on.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
