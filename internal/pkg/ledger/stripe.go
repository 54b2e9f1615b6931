package ledger

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"

	"github.com/ManuelReschke/FoxPay/internal/pkg/apperr"
	"github.com/ManuelReschke/FoxPay/internal/pkg/metrics"
)

const defaultHTTPTimeout = 30 * time.Second

// Config is the immutable configuration of a StripeClient. There is no
// package-level key: every client carries its own credentials.
type Config struct {
	SecretKey string
	// APIVersion is the version the account is expected to be pinned to.
	// The SDK sends its own pinned version; a mismatch is logged at startup.
	APIVersion string
	// BaseURL overrides the API endpoint (tests, stripe-mock).
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// StripeClient implements Client on top of stripe-go.
type StripeClient struct {
	api     *client.API
	log     *zap.Logger
	metrics *metrics.Metrics
}

var _ Client = (*StripeClient)(nil)

func NewStripeClient(cfg Config) (*StripeClient, error) {
	key := strings.TrimSpace(cfg.SecretKey)
	if key == "" {
		return nil, apperr.New(apperr.KindAuthentication, "ledger secret key is not configured")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		LeveledLogger:     log.Named("stripe").Sugar(),
		MaxNetworkRetries: stripe.Int64(0),
		EnableTelemetry:   stripe.Bool(false),
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(strings.TrimSuffix(cfg.BaseURL, "/"))
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)
	api := client.New(key, &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})

	if v := strings.TrimSpace(cfg.APIVersion); v != "" && v != stripe.APIVersion {
		log.Warn("configured ledger API version differs from the SDK pin",
			zap.String("configured", v),
			zap.String("sdk", stripe.APIVersion))
	}

	return &StripeClient{api: api, log: log, metrics: cfg.Metrics}, nil
}

// observe classifies err and records the call outcome.
func (c *StripeClient) observe(op string, err error) error {
	if err == nil {
		c.metrics.LedgerRequest(op, metrics.ResultOK)
		return nil
	}
	classified := classifyError(err)
	kind := apperr.KindOf(classified)
	c.metrics.LedgerRequest(op, string(kind))

	fields := []zap.Field{zap.String("operation", op), zap.String("kind", string(kind))}
	var se *stripe.Error
	if errors.As(err, &se) {
		fields = append(fields,
			zap.Int("http_status", se.HTTPStatusCode),
			zap.String("code", string(se.Code)),
			zap.String("request_id", se.RequestID))
	}
	if kind == apperr.KindUpstream || kind == apperr.KindAuthentication {
		c.log.Error("ledger call failed", append(fields, zap.Error(err))...)
	} else {
		c.log.Info("ledger call rejected", fields...)
	}
	return classified
}

func (c *StripeClient) CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	params := &stripe.CustomerParams{Email: stripe.String(req.Email)}
	params.Context = ctx
	if req.Name != "" {
		params.Name = stripe.String(req.Name)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	cus, err := c.api.Customers.New(params)
	if err := c.observe(OpCreateCustomer, err); err != nil {
		return nil, err
	}
	return customerFromStripe(cus), nil
}

func (c *StripeClient) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	if err := requireID("customer id", id); err != nil {
		return nil, err
	}
	params := &stripe.CustomerParams{}
	params.Context = ctx
	cus, err := c.api.Customers.Get(id, params)
	if err := c.observe(OpGetCustomer, err); err != nil {
		return nil, err
	}
	if cus.Deleted {
		return nil, apperr.NotFound("customer", id)
	}
	return customerFromStripe(cus), nil
}

func (c *StripeClient) ListCustomers(ctx context.Context, req ListCustomersRequest) ([]Customer, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	params := &stripe.CustomerListParams{}
	params.Context = ctx
	if req.Email != "" {
		params.Email = stripe.String(req.Email)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultCustomerListLimit
	}
	params.Limit = stripe.Int64(limit)
	params.Single = true
	var out []Customer
	it := c.api.Customers.List(params)
	for it.Next() {
		out = append(out, *customerFromStripe(it.Customer()))
	}
	if err := c.observe(OpListCustomers, it.Err()); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StripeClient) SetCustomerDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) (*Customer, error) {
	if err := requireID("customer id", customerID); err != nil {
		return nil, err
	}
	if err := requireID("payment method id", paymentMethodID); err != nil {
		return nil, err
	}
	params := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	params.Context = ctx
	cus, err := c.api.Customers.Update(customerID, params)
	if err := c.observe(OpSetCustomerDefaultPM, err); err != nil {
		return nil, err
	}
	return customerFromStripe(cus), nil
}

func (c *StripeClient) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(req.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(req.PriceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	params.Context = ctx
	params.AddExpand("latest_invoice.payment_intent")
	params.AddExpand("pending_setup_intent")
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	sub, err := c.api.Subscriptions.New(params)
	if err := c.observe(OpCreateSubscription, err); err != nil {
		return nil, err
	}
	return subscriptionFromStripe(sub), nil
}

func (c *StripeClient) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	if err := requireID("subscription id", id); err != nil {
		return nil, err
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("items.data.price.product")
	params.AddExpand("default_payment_method")
	sub, err := c.api.Subscriptions.Get(id, params)
	if err := c.observe(OpGetSubscription, err); err != nil {
		return nil, err
	}
	return subscriptionFromStripe(sub), nil
}

func (c *StripeClient) ListSubscriptions(ctx context.Context, req ListSubscriptionsRequest) ([]Subscription, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	params := &stripe.SubscriptionListParams{Customer: stripe.String(req.CustomerID)}
	params.Context = ctx
	if req.Status != "" {
		params.Status = stripe.String(req.Status)
	}
	params.AddExpand("data.default_payment_method")
	var out []Subscription
	it := c.api.Subscriptions.List(params)
	for it.Next() {
		out = append(out, *subscriptionFromStripe(it.Subscription()))
	}
	if err := c.observe(OpListSubscriptions, it.Err()); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StripeClient) SetSubscriptionDefaultPaymentMethod(ctx context.Context, subscriptionID, paymentMethodID string) (*Subscription, error) {
	if err := requireID("subscription id", subscriptionID); err != nil {
		return nil, err
	}
	if err := requireID("payment method id", paymentMethodID); err != nil {
		return nil, err
	}
	params := &stripe.SubscriptionParams{DefaultPaymentMethod: stripe.String(paymentMethodID)}
	params.Context = ctx
	sub, err := c.api.Subscriptions.Update(subscriptionID, params)
	if err := c.observe(OpSetSubscriptionDefaultPM, err); err != nil {
		return nil, err
	}
	return subscriptionFromStripe(sub), nil
}

func (c *StripeClient) CancelSubscription(ctx context.Context, id string) (*Subscription, error) {
	if err := requireID("subscription id", id); err != nil {
		return nil, err
	}
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	sub, err := c.api.Subscriptions.Cancel(id, params)
	if err := c.observe(OpCancelSubscription, err); err != nil {
		return nil, err
	}
	return subscriptionFromStripe(sub), nil
}

func (c *StripeClient) ListPrices(ctx context.Context) ([]Price, error) {
	params := &stripe.PriceListParams{Active: stripe.Bool(true)}
	params.Context = ctx
	params.AddExpand("data.product")
	var out []Price
	it := c.api.Prices.List(params)
	for it.Next() {
		out = append(out, *priceFromStripe(it.Price()))
	}
	if err := c.observe(OpListPrices, it.Err()); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StripeClient) ListPlans(ctx context.Context) ([]Plan, error) {
	params := &stripe.PlanListParams{Active: stripe.Bool(true)}
	params.Context = ctx
	params.AddExpand("data.product")
	var out []Plan
	it := c.api.Plans.List(params)
	for it.Next() {
		out = append(out, *planFromStripe(it.Plan()))
	}
	if err := c.observe(OpListPlans, it.Err()); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StripeClient) GetPaymentMethod(ctx context.Context, id string) (*PaymentMethod, error) {
	if err := requireID("payment method id", id); err != nil {
		return nil, err
	}
	params := &stripe.PaymentMethodParams{}
	params.Context = ctx
	pm, err := c.api.PaymentMethods.Get(id, params)
	if err := c.observe(OpGetPaymentMethod, err); err != nil {
		return nil, err
	}
	return paymentMethodFromStripe(pm), nil
}

func (c *StripeClient) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) (*PaymentMethod, error) {
	if err := requireID("payment method id", paymentMethodID); err != nil {
		return nil, err
	}
	if err := requireID("customer id", customerID); err != nil {
		return nil, err
	}
	params := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerID)}
	params.Context = ctx
	pm, err := c.api.PaymentMethods.Attach(paymentMethodID, params)
	if err := c.observe(OpAttachPaymentMethod, err); err != nil {
		return nil, err
	}
	return paymentMethodFromStripe(pm), nil
}

func (c *StripeClient) GetSetupIntent(ctx context.Context, id string) (*SetupIntent, error) {
	if err := requireID("setup intent id", id); err != nil {
		return nil, err
	}
	params := &stripe.SetupIntentParams{}
	params.Context = ctx
	si, err := c.api.SetupIntents.Get(id, params)
	if err := c.observe(OpGetSetupIntent, err); err != nil {
		return nil, err
	}
	return setupIntentFromStripe(si), nil
}

func (c *StripeClient) CreateCheckoutSession(ctx context.Context, req CreateCheckoutSessionRequest) (*CheckoutSession, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(req.Mode),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	switch req.Mode {
	case CheckoutModeSubscription:
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceID), Quantity: stripe.Int64(1)},
		}
	case CheckoutModeSetup:
		params.SetupIntentData = &stripe.CheckoutSessionSetupIntentDataParams{
			Metadata: req.SetupMetadata,
		}
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	cs, err := c.api.CheckoutSessions.New(params)
	if err := c.observe(OpCreateCheckoutSession, err); err != nil {
		return nil, err
	}
	return checkoutSessionFromStripe(cs), nil
}

func (c *StripeClient) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	if err := requireID("checkout session id", id); err != nil {
		return nil, err
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := c.api.CheckoutSessions.Get(id, params)
	if err := c.observe(OpGetCheckoutSession, err); err != nil {
		return nil, err
	}
	return checkoutSessionFromStripe(cs), nil
}

func (c *StripeClient) VerifyCredentials(ctx context.Context) error {
	params := &stripe.CustomerListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	params.Single = true
	it := c.api.Customers.List(params)
	for it.Next() {
	}
	return c.observe(OpVerifyCredentials, it.Err())
}
