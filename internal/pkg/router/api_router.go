package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/FoxPay/internal/pkg/constants"
	"github.com/ManuelReschke/FoxPay/internal/pkg/middleware"
	"github.com/ManuelReschke/FoxPay/internal/pkg/ratelimit"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	bc := h.deps.Billing
	if bc == nil {
		return
	}

	api := app.Group("/", ratelimit.New(ratelimit.Config{
		Max:     h.deps.RateLimitMax,
		Storage: h.deps.RateLimitStorage,
	}))

	api.Get("/config", bc.HandleConfig)
	api.Get("/stripe-key", bc.HandlePublishableKey)
	api.Get("/plans", bc.HandlePlans)

	api.Post("/customers", bc.HandleCreateCustomer)
	api.Get("/customers/:id/subscriptions", bc.HandleListCustomerSubscriptions)
	api.Get("/customers/:id/entitlement", bc.HandleCustomerEntitlement)
	api.Get("/entitlement", middleware.RequireCustomer, bc.HandleCurrentEntitlement)

	api.Post("/subscriptions", bc.HandleCreateSubscription)
	api.Post("/subscriptions/modify", bc.HandleModifySubscription)
	api.Post("/subscriptions/cancel", bc.HandleCancelSubscription)
	api.Get("/subscriptions/:id", bc.HandleGetSubscription)

	api.Get("/checkout-session", bc.HandleCheckoutSession)
	api.Get("/checkout-session/setup", bc.HandleSetupCheckoutSession)
	api.Get(constants.RouteCheckoutSuccess, bc.HandleCheckoutSuccess)
	api.Get(constants.RouteCheckoutSetupSuccess, bc.HandleSetupSuccess)

	// Paths used by the mobile storefront.
	api.Post("/create-customer", bc.HandleCreateCustomer)
	api.Post("/create-subscription", bc.HandleCreateSubscription)
	api.Get("/create-checkout-session", bc.HandleCheckoutSession)
	api.Get("/modify-checkout-session", bc.HandleSetupCheckoutSession)
	api.Get("/success-modify-checkout-session", bc.HandleSetupSuccess)
	api.Get("/subscription/:id", bc.HandleGetSubscription)
	api.Get("/customer/:id/subscriptions", bc.HandleListCustomerSubscriptions)
	api.Post("/subscription-modify", bc.HandleModifySubscription)
	api.Post("/cancel-subscription", bc.HandleCancelSubscription)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
