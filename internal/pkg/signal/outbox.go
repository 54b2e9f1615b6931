package signal

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/FoxPay/app/models"
	"github.com/ManuelReschke/FoxPay/internal/pkg/apperr"
)

// Outbox inserts signals into the fulfillment_signals table.
type Outbox struct {
	db    *gorm.DB
	genID *snowflake.Node
	now   func() time.Time
}

func NewOutbox(db *gorm.DB, genID *snowflake.Node) *Outbox {
	return &Outbox{db: db, genID: genID, now: func() time.Time { return time.Now().UTC() }}
}

// Store writes s unless its event id was stored before. The stored signal
// carries its generated id.
func (o *Outbox) Store(ctx context.Context, s Signal) (Signal, bool, error) {
	if o == nil || o.db == nil || o.genID == nil {
		return s, false, apperr.New(apperr.KindInternal, "outbox unavailable")
	}
	s.Kind = strings.TrimSpace(s.Kind)
	if s.Kind != KindFulfillmentReady && s.Kind != KindPaymentFailed {
		return s, false, apperr.Validation("unknown signal kind " + s.Kind)
	}
	if strings.TrimSpace(s.EventID) == "" {
		return s, false, apperr.Validation("signal event id is required")
	}
	if strings.TrimSpace(s.PaymentIntentID) == "" {
		return s, false, apperr.Validation("signal payment intent id is required")
	}

	s.ID = o.genID.Generate().Int64()
	s.CreatedAt = o.now()
	payload, err := json.Marshal(s)
	if err != nil {
		return s, false, apperr.Wrap(apperr.KindInternal, "failed to encode signal", err)
	}

	row := &models.FulfillmentSignal{
		ID:              s.ID,
		Kind:            s.Kind,
		PaymentIntentID: s.PaymentIntentID,
		CustomerID:      s.CustomerID,
		DedupeKey:       s.EventID,
		PayloadJSON:     string(payload),
		CreatedAt:       s.CreatedAt,
	}
	tx := o.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedupe_key"}},
		DoNothing: true,
	}).Create(row)
	if tx.Error != nil {
		return s, false, apperr.Wrap(apperr.KindInternal, "failed to store signal", tx.Error)
	}
	return s, tx.RowsAffected > 0, nil
}

// Pending returns unpublished signals, oldest first.
func (o *Outbox) Pending(ctx context.Context, limit int) ([]Signal, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.FulfillmentSignal
	err := o.db.WithContext(ctx).
		Where("published = ?", false).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load pending signals", err)
	}
	out := make([]Signal, 0, len(rows))
	for _, row := range rows {
		var s Signal
		if err := json.Unmarshal([]byte(row.PayloadJSON), &s); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to decode signal", err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (o *Outbox) MarkPublished(ctx context.Context, id int64) error {
	now := o.now()
	err := o.db.WithContext(ctx).Model(&models.FulfillmentSignal{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"published":    true,
			"published_at": &now,
		}).Error
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to mark signal published", err)
	}
	return nil
}

// Get loads the stored signal of an event.
func (o *Outbox) Get(ctx context.Context, eventID string) (*models.FulfillmentSignal, error) {
	var row models.FulfillmentSignal
	err := o.db.WithContext(ctx).Where("dedupe_key = ?", eventID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("signal", eventID)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load signal", err)
	}
	return &row, nil
}
