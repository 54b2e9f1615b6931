package ledger

import "time"

// Ledger statuses as reported by the processor.
const (
	StatusActive            = "active"
	StatusPastDue           = "past_due"
	StatusUnpaid            = "unpaid"
	StatusCanceled          = "canceled"
	StatusIncomplete        = "incomplete"
	StatusIncompleteExpired = "incomplete_expired"
	StatusTrialing          = "trialing"
	StatusPaused            = "paused"
)

type Customer struct {
	ID                     string            `json:"id"`
	Email                  string            `json:"email,omitempty"`
	Name                   string            `json:"name,omitempty"`
	DefaultPaymentMethodID string            `json:"default_payment_method,omitempty"`
	Metadata               map[string]string `json:"metadata,omitempty"`
}

type Product struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type Price struct {
	ID         string   `json:"id"`
	Nickname   string   `json:"nickname,omitempty"`
	UnitAmount int64    `json:"unit_amount"`
	Currency   string   `json:"currency"`
	Interval   string   `json:"interval,omitempty"`
	Active     bool     `json:"active"`
	Product    *Product `json:"product,omitempty"`
}

type Plan struct {
	ID       string   `json:"id"`
	Nickname string   `json:"nickname,omitempty"`
	Amount   int64    `json:"amount"`
	Currency string   `json:"currency"`
	Interval string   `json:"interval,omitempty"`
	Active   bool     `json:"active"`
	Product  *Product `json:"product,omitempty"`
}

type SubscriptionItem struct {
	ID    string `json:"id"`
	Price *Price `json:"price,omitempty"`
}

// PaymentIntent is ledger-owned; the client secret is passed through to
// the payer and never interpreted here.
type PaymentIntent struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	ClientSecret string            `json:"client_secret,omitempty"`
	CustomerID   string            `json:"customer,omitempty"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	// FailureMessage is the ledger's message for the last failed attempt.
	FailureMessage string `json:"failure_message,omitempty"`
}

type SetupIntent struct {
	ID              string            `json:"id"`
	Status          string            `json:"status"`
	ClientSecret    string            `json:"client_secret,omitempty"`
	CustomerID      string            `json:"customer,omitempty"`
	PaymentMethodID string            `json:"payment_method,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type Subscription struct {
	ID                     string             `json:"id"`
	CustomerID             string             `json:"customer"`
	Status                 string             `json:"status"`
	Items                  []SubscriptionItem `json:"items"`
	DefaultPaymentMethodID string             `json:"default_payment_method,omitempty"`
	LatestInvoiceID        string             `json:"latest_invoice,omitempty"`
	PaymentIntent          *PaymentIntent     `json:"payment_intent,omitempty"`
	PendingSetupIntent     *SetupIntent       `json:"pending_setup_intent,omitempty"`
	CancelAtPeriodEnd      bool               `json:"cancel_at_period_end"`
	CurrentPeriodEnd       *time.Time         `json:"current_period_end,omitempty"`
	CanceledAt             *time.Time         `json:"canceled_at,omitempty"`
	Created                time.Time          `json:"created"`
	Metadata               map[string]string  `json:"metadata,omitempty"`
	// ObservedAt is the ledger's clock when it returned this state. Zero
	// when unknown, e.g. for objects decoded from events.
	ObservedAt time.Time `json:"-"`
}

// PriceID returns the price of the first item.
func (s Subscription) PriceID() string {
	for _, item := range s.Items {
		if item.Price != nil && item.Price.ID != "" {
			return item.Price.ID
		}
	}
	return ""
}

// ClientSecret returns the secret the payer needs to confirm the
// subscription: the first invoice's payment intent, or the pending setup
// intent for zero-amount and trial prices.
func (s Subscription) ClientSecret() string {
	if s.PaymentIntent != nil && s.PaymentIntent.ClientSecret != "" {
		return s.PaymentIntent.ClientSecret
	}
	if s.PendingSetupIntent != nil {
		return s.PendingSetupIntent.ClientSecret
	}
	return ""
}

type PaymentMethod struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	CustomerID string `json:"customer,omitempty"`
	CardBrand  string `json:"card_brand,omitempty"`
	CardLast4  string `json:"card_last4,omitempty"`
}

type CheckoutSession struct {
	ID             string            `json:"id"`
	URL            string            `json:"url,omitempty"`
	Mode           string            `json:"mode"`
	Status         string            `json:"status,omitempty"`
	PaymentStatus  string            `json:"payment_status,omitempty"`
	CustomerID     string            `json:"customer,omitempty"`
	SuccessURL     string            `json:"success_url,omitempty"`
	CancelURL      string            `json:"cancel_url,omitempty"`
	SetupIntentID  string            `json:"setup_intent,omitempty"`
	SubscriptionID string            `json:"subscription,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}
