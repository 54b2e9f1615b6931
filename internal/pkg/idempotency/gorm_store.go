package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/FoxPay/app/models"
	"github.com/ManuelReschke/FoxPay/internal/pkg/apperr"
)

// GormStore keeps claims in the billing_webhook_events table.
type GormStore struct {
	db       *gorm.DB
	provider string
	lease    time.Duration
	now      func() time.Time
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB, lease time.Duration) *GormStore {
	if lease <= 0 {
		lease = DefaultLease
	}
	return &GormStore{
		db:       db,
		provider: models.BillingProviderStripe,
		lease:    lease,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Key is the dedupe key of ev: its id, or a payload hash for events without one.
func Key(ev Event) string {
	id := strings.TrimSpace(ev.ID)
	if id != "" {
		return id
	}
	sum := sha256.Sum256(ev.Payload)
	return "hash:" + hex.EncodeToString(sum[:])
}

func (s *GormStore) Claim(ctx context.Context, ev Event) (Result, error) {
	id := Key(ev)
	now := s.now()
	until := now.Add(s.lease)

	row := &models.BillingWebhookEvent{
		Provider:       s.provider,
		EventID:        id,
		EventType:      strings.TrimSpace(ev.Type),
		PayloadJSON:    string(ev.Payload),
		SignatureValid: ev.SignatureValid,
		Attempts:       1,
		LockedUntil:    &until,
	}
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "event_id"},
		},
		DoNothing: true,
	}).Create(row)
	if tx.Error != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "failed to record webhook event", tx.Error)
	}
	if tx.RowsAffected > 0 {
		return Claimed, nil
	}

	// The row exists: take it over only if nobody processed it and no
	// live claim is held.
	tx = s.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).
		Where("provider = ? AND event_id = ? AND processed_at IS NULL AND (locked_until IS NULL OR locked_until < ?)", s.provider, id, now).
		Updates(map[string]interface{}{
			"locked_until":     until,
			"attempts":         gorm.Expr("attempts + 1"),
			"processing_error": "",
			"updated_at":       now,
		})
	if tx.Error != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "failed to claim webhook event", tx.Error)
	}
	if tx.RowsAffected > 0 {
		return Claimed, nil
	}

	var stored models.BillingWebhookEvent
	if err := s.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", s.provider, id).
		First(&stored).Error; err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "failed to load webhook event", err)
	}
	if stored.ProcessedAt != nil {
		return AlreadyProcessed, nil
	}
	return InFlight, nil
}

func (s *GormStore) Complete(ctx context.Context, eventID string, responseStatus int) error {
	now := s.now()
	return s.finish(ctx, eventID, map[string]interface{}{
		"processed_at":     now,
		"locked_until":     nil,
		"processing_error": "",
		"response_status":  responseStatus,
		"updated_at":       now,
	})
}

func (s *GormStore) Release(ctx context.Context, eventID string, cause error, responseStatus int) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.finish(ctx, eventID, map[string]interface{}{
		"locked_until":     nil,
		"processing_error": msg,
		"response_status":  responseStatus,
		"updated_at":       s.now(),
	})
}

func (s *GormStore) finish(ctx context.Context, eventID string, updates map[string]interface{}) error {
	if strings.TrimSpace(eventID) == "" {
		return apperr.Validation("event id is required")
	}
	tx := s.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).
		Where("provider = ? AND event_id = ? AND processed_at IS NULL", s.provider, eventID).
		Updates(updates)
	if tx.Error != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to update webhook event", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return apperr.Wrap(apperr.KindConflict, "webhook event is not claimed", errors.New(eventID))
	}
	return nil
}

// Get returns the stored record of an event.
func (s *GormStore) Get(ctx context.Context, eventID string) (*models.BillingWebhookEvent, error) {
	var stored models.BillingWebhookEvent
	err := s.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", s.provider, eventID).
		First(&stored).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("webhook event", eventID)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load webhook event", err)
	}
	return &stored, nil
}
