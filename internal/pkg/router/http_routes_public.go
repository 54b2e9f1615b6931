package router

import (
	"os"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/FoxPay/internal/pkg/constants"
	"github.com/ManuelReschke/FoxPay/internal/pkg/middleware"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	if h.deps.Health != nil {
		app.Get(constants.RouteHealth, h.deps.Health.HandleHealthz)
	}

	if h.deps.Metrics != nil {
		app.Get(constants.RouteMetrics,
			middleware.RequireMetricsAuth(h.deps.MetricsUser, h.deps.MetricsPassword),
			h.deps.Metrics.Handler())
	}

	// SWAGGER / OPENAPI
	if h.deps.OpenAPIFile != "" {
		if _, err := os.Stat(h.deps.OpenAPIFile); err == nil {
			app.Use(swagger.New(swagger.Config{
				BasePath: "/docs/",
				FilePath: h.deps.OpenAPIFile,
				Path:     "api",
				Title:    "FoxPay API",
			}))
		}
	}

	// Ledger webhooks are signature-verified in the pipeline and never
	// rate limited: the processor retries whatever we refuse.
	if h.deps.Webhook != nil {
		app.Post(constants.RouteWebhook, h.deps.Webhook.HandleWebhook)
	}
}
