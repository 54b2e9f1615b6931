package billing

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/FoxPay/app/models"
	"github.com/ManuelReschke/FoxPay/internal/pkg/apperr"
)

// Repository provides DB operations used by the billing service: the
// customer directory, the subscription mirror and the plan mappings.
type Repository interface {
	// CreateCustomer inserts the mapping unless the user already has one
	// and returns the stored row. created is false for an existing row.
	CreateCustomer(ctx context.Context, c *models.BillingCustomer) (stored *models.BillingCustomer, created bool, err error)
	GetCustomerByUser(ctx context.Context, internalUserID string) (*models.BillingCustomer, error)
	GetCustomerByLedgerID(ctx context.Context, ledgerCustomerID string) (*models.BillingCustomer, error)
	SetCustomerDefaultPaymentMethod(ctx context.Context, ledgerCustomerID, paymentMethodID string) error

	// ApplySubscription writes sub unless the mirror already holds state
	// from a later ledger event. applied is false for a stale write.
	ApplySubscription(ctx context.Context, sub *models.BillingSubscription) (applied bool, err error)
	GetSubscription(ctx context.Context, ledgerSubscriptionID string) (*models.BillingSubscription, error)
	ListSubscriptionsByCustomer(ctx context.Context, ledgerCustomerID string) ([]models.BillingSubscription, error)
	SetSubscriptionDefaultPaymentMethod(ctx context.Context, ledgerSubscriptionID, paymentMethodID string) error

	FindActivePlanMapping(ctx context.Context, priceID string) (*models.BillingPlanMapping, error)
	UpsertPlanMapping(ctx context.Context, m *models.BillingPlanMapping) error
}

type gormRepository struct {
	db       *gorm.DB
	provider string
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db, provider: models.BillingProviderStripe}
}

func notFoundOr(err error, entity, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(entity, id)
	}
	return apperr.Wrap(apperr.KindInternal, "failed to load "+entity, err)
}

func (r *gormRepository) CreateCustomer(ctx context.Context, c *models.BillingCustomer) (*models.BillingCustomer, bool, error) {
	if c.Provider == "" {
		c.Provider = r.provider
	}
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(c)
	if tx.Error != nil {
		return nil, false, apperr.Wrap(apperr.KindInternal, "failed to store customer", tx.Error)
	}
	stored, err := r.GetCustomerByUser(ctx, c.InternalUserID)
	if err != nil {
		return nil, false, err
	}
	return stored, tx.RowsAffected > 0, nil
}

func (r *gormRepository) GetCustomerByUser(ctx context.Context, internalUserID string) (*models.BillingCustomer, error) {
	var c models.BillingCustomer
	err := r.db.WithContext(ctx).Where("internal_user_id = ?", internalUserID).First(&c).Error
	if err != nil {
		return nil, notFoundOr(err, "customer", internalUserID)
	}
	return &c, nil
}

func (r *gormRepository) GetCustomerByLedgerID(ctx context.Context, ledgerCustomerID string) (*models.BillingCustomer, error) {
	var c models.BillingCustomer
	err := r.db.WithContext(ctx).
		Where("provider = ? AND ledger_customer_id = ?", r.provider, ledgerCustomerID).
		First(&c).Error
	if err != nil {
		return nil, notFoundOr(err, "customer", ledgerCustomerID)
	}
	return &c, nil
}

// SetCustomerDefaultPaymentMethod is a no-op for customers created outside
// this service.
func (r *gormRepository) SetCustomerDefaultPaymentMethod(ctx context.Context, ledgerCustomerID, paymentMethodID string) error {
	err := r.db.WithContext(ctx).Model(&models.BillingCustomer{}).
		Where("provider = ? AND ledger_customer_id = ?", r.provider, ledgerCustomerID).
		Update("default_payment_method_id", paymentMethodID).Error
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to update customer", err)
	}
	return nil
}

func (r *gormRepository) ApplySubscription(ctx context.Context, sub *models.BillingSubscription) (bool, error) {
	if sub.Provider == "" {
		sub.Provider = r.provider
	}
	sub.LedgerEventAt = sub.LedgerEventAt.UTC().Truncate(time.Second)

	tx := r.db.WithContext(ctx).Model(&models.BillingSubscription{}).
		Where("provider = ? AND ledger_subscription_id = ? AND ledger_event_at <= ?",
			sub.Provider, sub.LedgerSubscriptionID, sub.LedgerEventAt).
		Updates(map[string]interface{}{
			"ledger_customer_id":        sub.LedgerCustomerID,
			"price_id":                  sub.PriceID,
			"billing_interval":          sub.BillingInterval,
			"status":                    sub.Status,
			"ledger_status":             sub.LedgerStatus,
			"default_payment_method_id": sub.DefaultPaymentMethodID,
			"current_period_end":        sub.CurrentPeriodEnd,
			"cancel_at_period_end":      sub.CancelAtPeriodEnd,
			"ledger_event_at":           sub.LedgerEventAt,
		})
	if tx.Error != nil {
		return false, apperr.Wrap(apperr.KindInternal, "failed to update subscription", tx.Error)
	}
	if tx.RowsAffected > 0 {
		return true, nil
	}

	// No row was updated: either none exists yet or the stored one is newer.
	tx = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "ledger_subscription_id"},
		},
		DoNothing: true,
	}).Create(sub)
	if tx.Error != nil {
		return false, apperr.Wrap(apperr.KindInternal, "failed to store subscription", tx.Error)
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) GetSubscription(ctx context.Context, ledgerSubscriptionID string) (*models.BillingSubscription, error) {
	var sub models.BillingSubscription
	err := r.db.WithContext(ctx).
		Where("provider = ? AND ledger_subscription_id = ?", r.provider, ledgerSubscriptionID).
		First(&sub).Error
	if err != nil {
		return nil, notFoundOr(err, "subscription", ledgerSubscriptionID)
	}
	return &sub, nil
}

func (r *gormRepository) ListSubscriptionsByCustomer(ctx context.Context, ledgerCustomerID string) ([]models.BillingSubscription, error) {
	var subs []models.BillingSubscription
	err := r.db.WithContext(ctx).
		Where("provider = ? AND ledger_customer_id = ?", r.provider, ledgerCustomerID).
		Order("ledger_event_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list subscriptions", err)
	}
	return subs, nil
}

func (r *gormRepository) SetSubscriptionDefaultPaymentMethod(ctx context.Context, ledgerSubscriptionID, paymentMethodID string) error {
	err := r.db.WithContext(ctx).Model(&models.BillingSubscription{}).
		Where("provider = ? AND ledger_subscription_id = ?", r.provider, ledgerSubscriptionID).
		Update("default_payment_method_id", paymentMethodID).Error
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to update subscription", err)
	}
	return nil
}

func (r *gormRepository) FindActivePlanMapping(ctx context.Context, priceID string) (*models.BillingPlanMapping, error) {
	var m models.BillingPlanMapping
	err := r.db.WithContext(ctx).
		Where("provider = ? AND price_id = ? AND is_active = ?", r.provider, priceID, true).
		First(&m).Error
	if err != nil {
		return nil, notFoundOr(err, "plan mapping", priceID)
	}
	return &m, nil
}

func (r *gormRepository) UpsertPlanMapping(ctx context.Context, m *models.BillingPlanMapping) error {
	if m.Provider == "" {
		m.Provider = r.provider
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "price_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"internal_plan",
			"billing_interval",
			"is_active",
			"updated_at",
		}),
	}).Create(m).Error
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to store plan mapping", err)
	}
	return nil
}
