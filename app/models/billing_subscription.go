package models

import "time"

const (
	BillingIntervalMonth   = "month"
	BillingIntervalYear    = "year"
	BillingIntervalUnknown = "unknown"
)

const (
	BillingStatusActive     = "active"
	BillingStatusPastDue    = "past_due"
	BillingStatusCanceled   = "canceled"
	BillingStatusIncomplete = "incomplete"
)

// BillingSubscription mirrors a ledger subscription. Status is the
// normalized lifecycle state; LedgerStatus keeps the literal value the
// ledger reported. LedgerEventAt orders updates so that an older webhook
// never overwrites newer state.
type BillingSubscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	Provider               string     `gorm:"type:varchar(20);not null;default:'stripe';index:ux_billing_subscriptions_provider_subid,unique,priority:1" json:"provider"`
	LedgerSubscriptionID   string     `gorm:"type:varchar(191);not null;index:ux_billing_subscriptions_provider_subid,unique,priority:2" json:"ledger_subscription_id"`
	LedgerCustomerID       string     `gorm:"type:varchar(191);not null;index" json:"ledger_customer_id"`
	PriceID                string     `gorm:"type:varchar(191);not null;default:'';index" json:"price_id"`
	BillingInterval        string     `gorm:"type:varchar(16);not null;default:'unknown'" json:"billing_interval"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'incomplete';index" json:"status"`
	LedgerStatus           string     `gorm:"type:varchar(32);not null;default:''" json:"ledger_status"`
	DefaultPaymentMethodID string     `gorm:"type:varchar(191);default:''" json:"default_payment_method_id"`
	CurrentPeriodEnd       *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd      bool       `gorm:"default:false" json:"cancel_at_period_end"`
	LedgerEventAt          time.Time  `gorm:"not null" json:"ledger_event_at"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
