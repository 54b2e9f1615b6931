package ledger

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/FoxPay/internal/pkg/apperr"
)

// Operation names, used as metric labels and in log fields.
const (
	OpCreateCustomer             = "create_customer"
	OpGetCustomer                = "get_customer"
	OpListCustomers              = "list_customers"
	OpSetCustomerDefaultPM       = "set_customer_default_payment_method"
	OpCreateSubscription         = "create_subscription"
	OpGetSubscription            = "get_subscription"
	OpListSubscriptions          = "list_subscriptions"
	OpSetSubscriptionDefaultPM   = "set_subscription_default_payment_method"
	OpCancelSubscription         = "cancel_subscription"
	OpListPrices                 = "list_prices"
	OpListPlans                  = "list_plans"
	OpGetPaymentMethod           = "get_payment_method"
	OpAttachPaymentMethod        = "attach_payment_method"
	OpGetSetupIntent             = "get_setup_intent"
	OpCreateCheckoutSession      = "create_checkout_session"
	OpGetCheckoutSession         = "get_checkout_session"
	OpVerifyCredentials          = "verify_credentials"
	CheckoutModeSubscription     = "subscription"
	CheckoutModeSetup            = "setup"
	SetupMetadataSubscriptionKey = "subscription_id"
)

// Client is the typed surface of the remote payment ledger. Every call is
// synchronous, takes the caller's context and returns either the entity or
// a classified *apperr.Error. Implementations never retry.
type Client interface {
	CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*Customer, error)
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)
	ListCustomers(ctx context.Context, req ListCustomersRequest) ([]Customer, error)
	SetCustomerDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) (*Customer, error)

	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	ListSubscriptions(ctx context.Context, req ListSubscriptionsRequest) ([]Subscription, error)
	SetSubscriptionDefaultPaymentMethod(ctx context.Context, subscriptionID, paymentMethodID string) (*Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)

	ListPrices(ctx context.Context) ([]Price, error)
	ListPlans(ctx context.Context) ([]Plan, error)

	GetPaymentMethod(ctx context.Context, paymentMethodID string) (*PaymentMethod, error)
	AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) (*PaymentMethod, error)
	GetSetupIntent(ctx context.Context, setupIntentID string) (*SetupIntent, error)

	CreateCheckoutSession(ctx context.Context, req CreateCheckoutSessionRequest) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)

	// VerifyCredentials performs a cheap authenticated read so that a bad
	// secret key fails at startup instead of on the first customer request.
	VerifyCredentials(ctx context.Context) error
}

type CreateCustomerRequest struct {
	Email          string `validate:"required,email"`
	Name           string `validate:"max=256"`
	Metadata       map[string]string
	IdempotencyKey string
}

// DefaultCustomerListLimit is the page size used when a customer listing
// names none. Listings never follow further pages.
const DefaultCustomerListLimit = 10

type ListCustomersRequest struct {
	Email string `validate:"omitempty,email"`
	Limit int64  `validate:"gte=0,lte=100"`
}

type CreateSubscriptionRequest struct {
	CustomerID     string `validate:"required"`
	PriceID        string `validate:"required"`
	IdempotencyKey string
}

type ListSubscriptionsRequest struct {
	CustomerID string `validate:"required"`
	// Status filters by ledger status; "all" includes canceled subscriptions.
	Status string `validate:"omitempty,oneof=all active past_due unpaid canceled incomplete incomplete_expired trialing paused"`
}

type CreateCheckoutSessionRequest struct {
	Mode       string `validate:"required,oneof=subscription setup"`
	CustomerID string `validate:"required_if=Mode setup"`
	PriceID    string `validate:"required_if=Mode subscription"`
	SuccessURL string `validate:"required,url"`
	CancelURL  string `validate:"required,url"`
	// SetupMetadata is copied onto the setup intent created by a setup-mode session.
	SetupMetadata map[string]string
	Metadata      map[string]string
}

var validate = validator.New()

// validateRequest turns validator failures into a ValidationError naming the
// offending fields.
func validateRequest(req any) error {
	if err := validate.Struct(req); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
		}
		if len(fields) == 0 {
			return apperr.Wrap(apperr.KindValidation, "invalid request", err)
		}
		return apperr.Wrap(apperr.KindValidation, "invalid or missing: "+strings.Join(fields, ", "), err)
	}
	return nil
}

func requireID(name, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperr.Validation(name + " is required")
	}
	return nil
}
