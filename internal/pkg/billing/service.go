package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ManuelReschke/FoxPay/app/models"
	"github.com/ManuelReschke/FoxPay/internal/pkg/apperr"
	"github.com/ManuelReschke/FoxPay/internal/pkg/ledger"
)

// Options are the storefront settings the service needs besides its
// collaborators.
type Options struct {
	PublishableKey string
	// PublicURL is where the ledger sends payers back after checkout.
	PublicURL string
	CancelURL string
}

// Service coordinates customers, subscriptions and payment methods between
// the ledger and the local mirror. The ledger is always authoritative:
// mirror writes happen after the ledger accepted a change and mirror
// failures never fail the request.
type Service struct {
	ledger ledger.Client
	repo   Repository
	opts   Options
	log    *zap.Logger
	now    func() time.Time
}

var validate = validator.New()

// NewService creates a billing service from injected collaborators.
func NewService(client ledger.Client, repo Repository, opts Options, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	opts.PublicURL = strings.TrimSuffix(opts.PublicURL, "/")
	if opts.CancelURL == "" {
		opts.CancelURL = opts.PublicURL + "/canceled"
	}
	return &Service{
		ledger: client,
		repo:   repo,
		opts:   opts,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(client ledger.Client, db *gorm.DB, opts Options, log *zap.Logger) *Service {
	return NewService(client, NewRepository(db), opts, log)
}

func validateInput(in any) error {
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return apperr.Validation("invalid or missing: " + strings.Join(fields, ", "))
		}
		return apperr.Validation(err.Error())
	}
	return nil
}

func (s *Service) PublishableKey() string {
	return s.opts.PublishableKey
}

// CreateCustomer opens a ledger customer for a user, once. A repeated call
// for the same user returns the existing customer.
func (s *Service) CreateCustomer(ctx context.Context, in CreateCustomerInput) (*ledger.Customer, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	userID := strings.TrimSpace(in.InternalUserID)
	if userID == "" {
		userID = uuid.NewString()
	} else if existing, err := s.repo.GetCustomerByUser(ctx, userID); err == nil {
		return s.ledger.GetCustomer(ctx, existing.LedgerCustomerID)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	cus, err := s.ledger.CreateCustomer(ctx, ledger.CreateCustomerRequest{
		Email:          in.Email,
		Name:           in.Name,
		Metadata:       map[string]string{"internal_user_id": userID},
		IdempotencyKey: "foxpay-customer-" + userID,
	})
	if err != nil {
		return nil, err
	}

	stored, created, err := s.repo.CreateCustomer(ctx, &models.BillingCustomer{
		InternalUserID:   userID,
		LedgerCustomerID: cus.ID,
		Email:            cus.Email,
		Name:             cus.Name,
	})
	if err != nil {
		return nil, err
	}
	if !created && stored.LedgerCustomerID != cus.ID {
		// A concurrent request linked the user first; its customer wins.
		s.log.Warn("customer already linked to user",
			zap.String("internal_user_id", userID),
			zap.String("linked_customer_id", stored.LedgerCustomerID),
			zap.String("orphan_customer_id", cus.ID))
		return s.ledger.GetCustomer(ctx, stored.LedgerCustomerID)
	}
	if cus.Metadata == nil {
		cus.Metadata = map[string]string{}
	}
	cus.Metadata["internal_user_id"] = userID
	return cus, nil
}

// CustomerForUser resolves the ledger customer linked to a user.
func (s *Service) CustomerForUser(ctx context.Context, internalUserID string) (*models.BillingCustomer, error) {
	if strings.TrimSpace(internalUserID) == "" {
		return nil, apperr.Validation("user id is required")
	}
	return s.repo.GetCustomerByUser(ctx, internalUserID)
}

// Config returns the price catalog, the first page of customers and the
// publishable key.
func (s *Service) Config(ctx context.Context) (*StoreConfig, error) {
	prices, err := s.ledger.ListPrices(ctx)
	if err != nil {
		return nil, err
	}
	customers, err := s.ledger.ListCustomers(ctx, ledger.ListCustomersRequest{
		Limit: ledger.DefaultCustomerListLimit,
	})
	if err != nil {
		return nil, err
	}
	return &StoreConfig{
		PublishableKey: s.opts.PublishableKey,
		Prices:         prices,
		Customers:      customers,
	}, nil
}

func (s *Service) ListPlans(ctx context.Context) ([]ledger.Plan, error) {
	return s.ledger.ListPlans(ctx)
}

// CreateSubscription creates a subscription that stays incomplete until the
// payer confirms the returned client secret.
func (s *Service) CreateSubscription(ctx context.Context, in CreateSubscriptionInput) (*SubscriptionCreated, error) {
	in.CustomerID = strings.TrimSpace(in.CustomerID)
	in.PriceID = strings.TrimSpace(in.PriceID)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	sub, err := s.ledger.CreateSubscription(ctx, ledger.CreateSubscriptionRequest{
		CustomerID: in.CustomerID,
		PriceID:    in.PriceID,
	})
	if err != nil {
		return nil, err
	}
	secret := sub.ClientSecret()
	if secret == "" {
		return nil, apperr.New(apperr.KindUpstream, "ledger returned no client secret")
	}

	eventAt := sub.Created
	if eventAt.IsZero() {
		eventAt = s.now()
	}
	s.mirror(ctx, *sub, eventAt)

	return &SubscriptionCreated{
		SubscriptionID: sub.ID,
		ClientSecret:   secret,
		Status:         models.BillingStatusIncomplete,
	}, nil
}

// RetrieveSubscription reads the subscription from the ledger and refreshes
// the mirror with what it saw.
func (s *Service) RetrieveSubscription(ctx context.Context, subscriptionID string) (*ledger.Subscription, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, apperr.Validation("subscription id is required")
	}
	sub, err := s.ledger.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	s.mirror(ctx, *sub, s.observedAt(*sub))
	return sub, nil
}

// ListCustomerSubscriptions lists every subscription of a customer,
// canceled ones included, with product data filled in from the catalog.
func (s *Service) ListCustomerSubscriptions(ctx context.Context, customerID string) ([]ledger.Subscription, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, apperr.Validation("customer id is required")
	}
	subs, err := s.ledger.ListSubscriptions(ctx, ledger.ListSubscriptionsRequest{
		CustomerID: customerID,
		Status:     "all",
	})
	if err != nil {
		return nil, err
	}
	if !needsProducts(subs) {
		return subs, nil
	}

	// The ledger limits expansion depth, so list responses carry bare
	// product ids. The catalog supplies the rest.
	prices, err := s.ledger.ListPrices(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]ledger.Price, len(prices))
	for _, p := range prices {
		byID[p.ID] = p
	}
	for i := range subs {
		for j := range subs[i].Items {
			item := &subs[i].Items[j]
			if item.Price == nil {
				continue
			}
			if full, ok := byID[item.Price.ID]; ok && full.Product != nil {
				product := *full.Product
				item.Price.Product = &product
			}
		}
	}
	return subs, nil
}

func needsProducts(subs []ledger.Subscription) bool {
	for _, sub := range subs {
		for _, item := range sub.Items {
			if item.Price != nil && (item.Price.Product == nil || item.Price.Product.Name == "") {
				return true
			}
		}
	}
	return false
}

// ModifyDefaultPaymentMethod attaches the payment method to the customer
// when needed and makes it the subscription's default.
func (s *Service) ModifyDefaultPaymentMethod(ctx context.Context, in ModifyPaymentMethodInput) (*ledger.Subscription, error) {
	in.SubscriptionID = strings.TrimSpace(in.SubscriptionID)
	in.PaymentMethodID = strings.TrimSpace(in.PaymentMethodID)
	in.CustomerID = strings.TrimSpace(in.CustomerID)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	if _, err := s.ensureAttached(ctx, in.PaymentMethodID, in.CustomerID); err != nil {
		return nil, asPaymentError(err)
	}
	sub, err := s.ledger.SetSubscriptionDefaultPaymentMethod(ctx, in.SubscriptionID, in.PaymentMethodID)
	if err != nil {
		return nil, asPaymentError(err)
	}
	s.mirror(ctx, *sub, s.observedAt(*sub))
	return sub, nil
}

// asPaymentError turns a rejected payment-method change into a
// PaymentError with the ledger's message. Transport and credential
// failures keep their kind.
func asPaymentError(err error) error {
	e, ok := apperr.As(err)
	if !ok {
		return err
	}
	switch e.Kind {
	case apperr.KindValidation, apperr.KindNotFound, apperr.KindConflict, apperr.KindPayment:
		return &apperr.Error{Kind: apperr.KindPayment, Message: e.Message, Code: e.Code, Err: err}
	default:
		return err
	}
}

// CancelSubscription cancels on the ledger and marks the mirror canceled.
func (s *Service) CancelSubscription(ctx context.Context, subscriptionID string) (*CancelResult, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, apperr.Validation("subscription id is required")
	}
	sub, err := s.ledger.CancelSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	eventAt := s.observedAt(*sub)
	if sub.CanceledAt != nil && sub.CanceledAt.After(eventAt) {
		eventAt = *sub.CanceledAt
	}
	s.mirror(ctx, *sub, eventAt)

	return &CancelResult{
		Detail:         "Subscription Cancelled",
		SubscriptionID: sub.ID,
		Status:         NormalizeStatus(sub.Status),
	}, nil
}

// ReconcileSubscription merges a ledger subscription reported at eventAt
// into the mirror. It returns false when the mirror already holds newer state.
func (s *Service) ReconcileSubscription(ctx context.Context, sub ledger.Subscription, eventAt time.Time) (bool, error) {
	if strings.TrimSpace(sub.ID) == "" {
		return false, apperr.Validation("subscription id is required")
	}
	applied, err := s.repo.ApplySubscription(ctx, mirrorRow(sub, eventAt))
	if err != nil {
		return false, err
	}
	if !applied {
		s.log.Info("skipping stale subscription update",
			zap.String("subscription_id", sub.ID),
			zap.String("ledger_status", sub.Status),
			zap.Time("event_at", eventAt))
	}
	return applied, nil
}

// observedAt stamps state read from the ledger with the ledger's clock so
// that it orders against webhook event times. The local clock is the
// fallback.
func (s *Service) observedAt(sub ledger.Subscription) time.Time {
	if !sub.ObservedAt.IsZero() {
		return sub.ObservedAt.UTC()
	}
	return s.now()
}

// mirror records ledger state after a successful ledger call. Failures are
// logged: the ledger already holds the change.
func (s *Service) mirror(ctx context.Context, sub ledger.Subscription, eventAt time.Time) {
	if _, err := s.ReconcileSubscription(ctx, sub, eventAt); err != nil {
		s.log.Warn("failed to update subscription mirror",
			zap.String("subscription_id", sub.ID),
			zap.Error(err))
	}
}

func mirrorRow(sub ledger.Subscription, eventAt time.Time) *models.BillingSubscription {
	interval := ""
	for _, item := range sub.Items {
		if item.Price != nil {
			interval = item.Price.Interval
			break
		}
	}
	return &models.BillingSubscription{
		Provider:               models.BillingProviderStripe,
		LedgerSubscriptionID:   sub.ID,
		LedgerCustomerID:       sub.CustomerID,
		PriceID:                sub.PriceID(),
		BillingInterval:        normalizeInterval(interval),
		Status:                 NormalizeStatus(sub.Status),
		LedgerStatus:           sub.Status,
		DefaultPaymentMethodID: sub.DefaultPaymentMethodID,
		CurrentPeriodEnd:       sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		LedgerEventAt:          eventAt.UTC(),
	}
}
