package models

import "time"

// Billing provider constants used across billing-related models.
const (
	BillingProviderStripe = "stripe"
)

// BillingCustomer links an internal user to its ledger customer. The row
// is created once per user; only DefaultPaymentMethodID changes afterwards.
type BillingCustomer struct {
	ID                     uint      `gorm:"primaryKey" json:"id"`
	InternalUserID         string    `gorm:"type:varchar(64);not null;index:ux_billing_customers_user,unique" json:"internal_user_id"`
	Provider               string    `gorm:"type:varchar(20);not null;default:'stripe';index:ux_billing_customers_provider_customer,unique,priority:1" json:"provider"`
	LedgerCustomerID       string    `gorm:"type:varchar(191);not null;index:ux_billing_customers_provider_customer,unique,priority:2" json:"ledger_customer_id"`
	Email                  string    `gorm:"type:varchar(200);default:''" json:"email"`
	Name                   string    `gorm:"type:varchar(200);default:''" json:"name"`
	DefaultPaymentMethodID string    `gorm:"type:varchar(191);default:''" json:"default_payment_method_id"`
	CreatedAt              time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
