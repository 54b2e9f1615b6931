package constants

// Checkout return routes. The service builds ledger success URLs from them,
// so the router and the billing service must agree.
const (
	RouteCheckoutSuccess      = "/success"
	RouteCheckoutSetupSuccess = "/success/setup"
	RouteWebhook              = "/webhook"
	RouteHealth               = "/healthz"
	RouteMetrics              = "/metrics"
)
