package models

import "time"

// BillingPlanMapping maps ledger price ids to internal entitlement plans.
type BillingPlanMapping struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Provider        string    `gorm:"type:varchar(20);not null;default:'stripe';index:ux_billing_plan_mappings_price,unique,priority:1" json:"provider"`
	PriceID         string    `gorm:"type:varchar(191);not null;index:ux_billing_plan_mappings_price,unique,priority:2" json:"price_id"`
	InternalPlan    string    `gorm:"type:varchar(50);not null;default:'free';index" json:"internal_plan"`
	BillingInterval string    `gorm:"type:varchar(16);not null;default:'unknown'" json:"billing_interval"`
	IsActive        bool      `gorm:"not null;index" json:"is_active"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
