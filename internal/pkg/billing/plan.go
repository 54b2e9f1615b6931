package billing

import (
	"strings"

	"github.com/ManuelReschke/FoxPay/app/models"
	"github.com/ManuelReschke/FoxPay/internal/pkg/entitlements"
	"github.com/ManuelReschke/FoxPay/internal/pkg/ledger"
)

func normalizePlan(plan string) string {
	return string(entitlements.ParsePlan(plan))
}

func planRank(plan string) int {
	switch entitlements.ParsePlan(plan) {
	case entitlements.PlanPremiumMax:
		return 2
	case entitlements.PlanPremium:
		return 1
	default:
		return 0
	}
}

func normalizeInterval(interval string) string {
	i := strings.ToLower(strings.TrimSpace(interval))
	switch i {
	case models.BillingIntervalMonth, models.BillingIntervalYear:
		return i
	default:
		return models.BillingIntervalUnknown
	}
}

// NormalizeStatus folds the ledger's subscription statuses onto the four
// lifecycle states kept in the mirror.
func NormalizeStatus(ledgerStatus string) string {
	switch strings.ToLower(strings.TrimSpace(ledgerStatus)) {
	case ledger.StatusActive, ledger.StatusTrialing:
		return models.BillingStatusActive
	case ledger.StatusPastDue, ledger.StatusUnpaid, ledger.StatusPaused:
		return models.BillingStatusPastDue
	case ledger.StatusCanceled, ledger.StatusIncompleteExpired:
		return models.BillingStatusCanceled
	default:
		return models.BillingStatusIncomplete
	}
}

// isEntitlingStatus expects a normalized status. Incomplete never entitles.
func isEntitlingStatus(status string) bool {
	switch status {
	case models.BillingStatusActive, models.BillingStatusPastDue:
		return true
	default:
		return false
	}
}
