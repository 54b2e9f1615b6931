package models

import "time"

const (
	SignalKindFulfillmentReady = "fulfillment_ready"
	SignalKindPaymentFailed    = "payment_failed"
)

// FulfillmentSignal is an outbox row telling downstream fulfillment that a
// payment succeeded or failed. DedupeKey is the webhook event id, so a
// replayed event never produces a second signal.
type FulfillmentSignal struct {
	ID              int64      `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	Kind            string     `gorm:"type:varchar(32);not null;index" json:"kind"`
	PaymentIntentID string     `gorm:"type:varchar(191);not null;index" json:"payment_intent_id"`
	CustomerID      string     `gorm:"type:varchar(191);default:'';index" json:"customer_id"`
	DedupeKey       string     `gorm:"type:varchar(191);not null;index:ux_fulfillment_signals_dedupe,unique" json:"dedupe_key"`
	PayloadJSON     string     `gorm:"type:longtext" json:"payload_json"`
	Published       bool       `gorm:"default:false;index" json:"published"`
	PublishedAt     *time.Time `gorm:"type:timestamp;default:null" json:"published_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}
