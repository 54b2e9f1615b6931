package billing

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ManuelReschke/FoxPay/internal/pkg/apperr"
	"github.com/ManuelReschke/FoxPay/internal/pkg/constants"
	"github.com/ManuelReschke/FoxPay/internal/pkg/ledger"
)

const sessionPlaceholder = "{CHECKOUT_SESSION_ID}"

func (s *Service) successURL(path string) string {
	return s.opts.PublicURL + path + "?session_id=" + sessionPlaceholder
}

// StartSubscriptionCheckout opens a hosted checkout that creates the
// subscription on the ledger side.
func (s *Service) StartSubscriptionCheckout(ctx context.Context, customerID, priceID string) (*ledger.CheckoutSession, error) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return nil, apperr.Validation("price_id is required")
	}
	return s.ledger.CreateCheckoutSession(ctx, ledger.CreateCheckoutSessionRequest{
		Mode:       ledger.CheckoutModeSubscription,
		CustomerID: strings.TrimSpace(customerID),
		PriceID:    priceID,
		SuccessURL: s.successURL(constants.RouteCheckoutSuccess),
		CancelURL:  s.opts.CancelURL,
	})
}

// ResolveCheckout returns a finished subscription checkout. When the
// session produced a subscription its mirror is refreshed.
func (s *Service) ResolveCheckout(ctx context.Context, sessionID string) (*ledger.CheckoutSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, apperr.Validation("session_id is required")
	}
	cs, err := s.ledger.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cs.SubscriptionID != "" {
		if sub, err := s.ledger.GetSubscription(ctx, cs.SubscriptionID); err == nil {
			s.mirror(ctx, *sub, s.observedAt(*sub))
		} else {
			s.log.Warn("failed to refresh subscription after checkout",
				zap.String("session_id", cs.ID),
				zap.String("subscription_id", cs.SubscriptionID),
				zap.Error(err))
		}
	}
	return cs, nil
}

// StartPaymentMethodUpdate opens a setup-mode checkout that collects a new
// payment method for a subscription. The subscription id travels in the
// setup intent metadata; the subscription itself is left untouched.
func (s *Service) StartPaymentMethodUpdate(ctx context.Context, in PaymentMethodUpdateInput) (*ledger.CheckoutSession, error) {
	in.CustomerID = strings.TrimSpace(in.CustomerID)
	in.SubscriptionID = strings.TrimSpace(in.SubscriptionID)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	return s.ledger.CreateCheckoutSession(ctx, ledger.CreateCheckoutSessionRequest{
		Mode:       ledger.CheckoutModeSetup,
		CustomerID: in.CustomerID,
		SuccessURL: s.successURL(constants.RouteCheckoutSetupSuccess),
		CancelURL:  s.opts.CancelURL,
		SetupMetadata: map[string]string{
			ledger.SetupMetadataSubscriptionKey: in.SubscriptionID,
		},
	})
}

// ResolvePaymentMethodUpdate reads back what a setup session collected.
func (s *Service) ResolvePaymentMethodUpdate(ctx context.Context, sessionID string) (*PendingCommit, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, apperr.Validation("session_id is required")
	}
	cs, err := s.ledger.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.pendingFromSession(ctx, *cs)
}

func (s *Service) pendingFromSession(ctx context.Context, cs ledger.CheckoutSession) (*PendingCommit, error) {
	if cs.Mode != ledger.CheckoutModeSetup {
		return nil, apperr.Validation("checkout session is not a payment method update")
	}
	if cs.SetupIntentID == "" {
		return nil, apperr.Validation("checkout session has not been completed")
	}
	seti, err := s.ledger.GetSetupIntent(ctx, cs.SetupIntentID)
	if err != nil {
		return nil, err
	}
	p := &PendingCommit{
		SessionID:       cs.ID,
		CustomerID:      cs.CustomerID,
		SubscriptionID:  seti.Metadata[ledger.SetupMetadataSubscriptionKey],
		PaymentMethodID: seti.PaymentMethodID,
	}
	if p.CustomerID == "" {
		p.CustomerID = seti.CustomerID
	}
	switch {
	case p.PaymentMethodID == "":
		return nil, apperr.Validation("setup intent has no payment method")
	case p.SubscriptionID == "":
		return nil, apperr.Validation("setup intent does not reference a subscription")
	case p.CustomerID == "":
		return nil, apperr.Validation("checkout session has no customer")
	}
	return p, nil
}

// CompletePaymentMethodUpdate resolves a setup session and commits the
// payment method it collected.
func (s *Service) CompletePaymentMethodUpdate(ctx context.Context, sessionID string) (*CommitResult, error) {
	p, err := s.ResolvePaymentMethodUpdate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.CommitPaymentMethod(ctx, *p)
}

// ApplyCompletedSetupSession commits a setup session reported by a
// webhook. Sessions of other modes are ignored.
func (s *Service) ApplyCompletedSetupSession(ctx context.Context, cs ledger.CheckoutSession) (*CommitResult, error) {
	if cs.Mode != ledger.CheckoutModeSetup {
		return nil, nil
	}
	p, err := s.pendingFromSession(ctx, cs)
	if err != nil {
		return nil, err
	}
	return s.CommitPaymentMethod(ctx, *p)
}

// CommitPaymentMethod attaches the payment method to the customer and makes
// it the default of both the customer and the subscription. Every step is
// idempotent on the ledger, so repeating a commit is safe. A failure after
// an earlier step succeeded is a PartialCommit naming the applied steps;
// nothing is rolled back.
func (s *Service) CommitPaymentMethod(ctx context.Context, p PendingCommit) (*CommitResult, error) {
	res := &CommitResult{
		Result:          "Modify Customer Success",
		CustomerID:      p.CustomerID,
		SubscriptionID:  p.SubscriptionID,
		PaymentMethodID: p.PaymentMethodID,
		Steps:           []string{},
	}
	fail := func(err error) (*CommitResult, error) {
		if len(res.Steps) == 0 {
			return nil, err
		}
		perr := apperr.PartialCommit(res.Steps, err)
		s.log.Warn("payment method update partially applied",
			zap.String("subscription_id", p.SubscriptionID),
			zap.String("customer_id", p.CustomerID),
			zap.String("payment_method_id", p.PaymentMethodID),
			zap.Strings("completed_steps", res.Steps),
			zap.Error(err))
		return nil, perr
	}

	attached, err := s.ensureAttached(ctx, p.PaymentMethodID, p.CustomerID)
	if err != nil {
		return fail(err)
	}
	if attached {
		res.Steps = append(res.Steps, StepAttach)
	} else {
		res.Skipped = append(res.Skipped, StepAttach)
	}

	if _, err := s.ledger.SetCustomerDefaultPaymentMethod(ctx, p.CustomerID, p.PaymentMethodID); err != nil {
		return fail(err)
	}
	res.Steps = append(res.Steps, StepCustomerDefault)

	sub, err := s.ledger.SetSubscriptionDefaultPaymentMethod(ctx, p.SubscriptionID, p.PaymentMethodID)
	if err != nil {
		return fail(err)
	}
	res.Steps = append(res.Steps, StepSubscription)

	if err := s.repo.SetCustomerDefaultPaymentMethod(ctx, p.CustomerID, p.PaymentMethodID); err != nil {
		s.log.Warn("failed to update customer mirror", zap.String("customer_id", p.CustomerID), zap.Error(err))
	}
	s.mirror(ctx, *sub, s.observedAt(*sub))

	s.log.Info("payment method updated",
		zap.String("subscription_id", p.SubscriptionID),
		zap.String("customer_id", p.CustomerID),
		zap.String("payment_method_id", p.PaymentMethodID),
		zap.Strings("steps", res.Steps))
	return res, nil
}

// ensureAttached attaches the payment method unless it already belongs to
// the customer. It reports whether an attach call was made.
func (s *Service) ensureAttached(ctx context.Context, paymentMethodID, customerID string) (bool, error) {
	pm, err := s.ledger.GetPaymentMethod(ctx, paymentMethodID)
	if err != nil {
		return false, err
	}
	if pm.CustomerID == customerID {
		return false, nil
	}
	if _, err := s.ledger.AttachPaymentMethod(ctx, paymentMethodID, customerID); err != nil {
		return false, err
	}
	return true, nil
}
