package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/ManuelReschke/FoxPay/app/models"
	"github.com/ManuelReschke/FoxPay/internal/pkg/apperr"
	"github.com/ManuelReschke/FoxPay/internal/pkg/entitlements"
)

// ResolveMappedPlan resolves a price to an internal plan. Unmapped prices
// resolve to the free plan.
func (s *Service) ResolveMappedPlan(ctx context.Context, priceID string) (string, error) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return string(entitlements.PlanFree), nil
	}
	m, err := s.repo.FindActivePlanMapping(ctx, priceID)
	if errors.Is(err, apperr.ErrNotFound) {
		return string(entitlements.PlanFree), nil
	}
	if err != nil {
		return "", err
	}
	return normalizePlan(m.InternalPlan), nil
}

// SyncPlanMappings stores price to plan mappings, e.g. from configuration.
func (s *Service) SyncPlanMappings(ctx context.Context, mappings map[string]string) error {
	for priceID, plan := range mappings {
		m := &models.BillingPlanMapping{
			Provider:        models.BillingProviderStripe,
			PriceID:         strings.TrimSpace(priceID),
			InternalPlan:    normalizePlan(plan),
			BillingInterval: models.BillingIntervalUnknown,
			IsActive:        true,
		}
		if m.PriceID == "" {
			continue
		}
		if err := s.repo.UpsertPlanMapping(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// Entitlement computes the best plan a customer is entitled to from the
// mirrored subscriptions. Incomplete and canceled subscriptions never count.
func (s *Service) Entitlement(ctx context.Context, customerID string) (*Entitlement, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, apperr.Validation("customer id is required")
	}
	subs, err := s.repo.ListSubscriptionsByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	out := &Entitlement{CustomerID: customerID, Plan: string(entitlements.PlanFree)}
	var best *models.BillingSubscription
	for i := range subs {
		sub := &subs[i]
		if !isEntitlingStatus(sub.Status) {
			continue
		}
		plan, err := s.ResolveMappedPlan(ctx, sub.PriceID)
		if err != nil {
			return nil, err
		}
		if best == nil || planRank(plan) > planRank(out.Plan) {
			best = sub
			out.Plan = plan
		}
	}
	if best != nil {
		out.Entitled = true
		out.SubscriptionID = best.LedgerSubscriptionID
		out.Status = best.Status
		out.ValidUntil = best.CurrentPeriodEnd
	}
	out.Features = entitlements.FeaturesFor(entitlements.Plan(out.Plan))
	return out, nil
}
