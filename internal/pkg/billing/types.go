package billing

import (
	"time"

	"github.com/ManuelReschke/FoxPay/internal/pkg/entitlements"
	"github.com/ManuelReschke/FoxPay/internal/pkg/ledger"
)

// Commit steps of a payment-method replacement, in execution order.
const (
	StepAttach          = "attach_payment_method"
	StepCustomerDefault = "set_customer_default"
	StepSubscription    = "set_subscription_default"
)

// CreateCustomerInput is what a caller supplies to open a ledger customer.
// InternalUserID is optional; an id is generated when empty.
type CreateCustomerInput struct {
	InternalUserID string
	Email          string `validate:"required,email"`
	Name           string `validate:"max=256"`
}

type CreateSubscriptionInput struct {
	CustomerID string `validate:"required"`
	PriceID    string `validate:"required"`
}

// SubscriptionCreated is returned by CreateSubscription. Status is always
// incomplete: the payer still has to confirm ClientSecret.
type SubscriptionCreated struct {
	SubscriptionID string `json:"subscriptionId"`
	ClientSecret   string `json:"clientSecret"`
	Status         string `json:"status"`
}

// StoreConfig is the catalog shown to a storefront.
type StoreConfig struct {
	PublishableKey string            `json:"publishableKey"`
	Prices         []ledger.Price    `json:"prices"`
	Customers      []ledger.Customer `json:"customers"`
}

type PaymentMethodUpdateInput struct {
	CustomerID     string `validate:"required"`
	SubscriptionID string `validate:"required"`
}

type ModifyPaymentMethodInput struct {
	SubscriptionID  string `validate:"required"`
	PaymentMethodID string `validate:"required"`
	CustomerID      string `validate:"required"`
}

// PendingCommit is the state recovered from a completed setup session.
type PendingCommit struct {
	SessionID       string
	CustomerID      string
	SubscriptionID  string
	PaymentMethodID string
}

// CommitResult reports which ledger steps ran. Skipped lists steps that
// were already in effect.
type CommitResult struct {
	Result          string   `json:"result"`
	CustomerID      string   `json:"customer_id"`
	SubscriptionID  string   `json:"subscription_id"`
	PaymentMethodID string   `json:"payment_method_id"`
	Steps           []string `json:"steps"`
	Skipped         []string `json:"skipped,omitempty"`
}

type CancelResult struct {
	Detail         string `json:"detail"`
	SubscriptionID string `json:"subscription_id"`
	Status         string `json:"status"`
}

// Entitlement is the effective plan of a ledger customer computed from its
// mirrored subscriptions.
type Entitlement struct {
	CustomerID     string                `json:"customer_id"`
	Plan           string                `json:"plan"`
	Entitled       bool                  `json:"entitled"`
	SubscriptionID string                `json:"subscription_id,omitempty"`
	Status         string                `json:"status,omitempty"`
	ValidUntil     *time.Time            `json:"valid_until,omitempty"`
	Features       entitlements.Features `json:"features"`
}
