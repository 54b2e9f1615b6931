package entitlements

import "strings"

type Plan string

const (
	PlanFree       Plan = "free"
	PlanPremium    Plan = "premium"
	PlanPremiumMax Plan = "premium_max"
)

// Features is what a plan unlocks for the merchant application.
type Features struct {
	Plan             Plan `json:"plan"`
	MaxSubscriptions int  `json:"max_subscriptions"`
	PrioritySupport  bool `json:"priority_support"`
	APIAccess        bool `json:"api_access"`
}

// ParsePlan maps free-form plan names onto a known plan, defaulting to free.
func ParsePlan(plan string) Plan {
	switch Plan(strings.ToLower(strings.TrimSpace(plan))) {
	case PlanPremium:
		return PlanPremium
	case PlanPremiumMax:
		return PlanPremiumMax
	default:
		return PlanFree
	}
}

// FeaturesFor returns the allowances of a given plan
func FeaturesFor(plan Plan) Features {
	switch plan {
	case PlanPremiumMax:
		return Features{Plan: plan, MaxSubscriptions: 10, PrioritySupport: true, APIAccess: true}
	case PlanPremium:
		return Features{Plan: plan, MaxSubscriptions: 3, PrioritySupport: false, APIAccess: true}
	default:
		return Features{Plan: PlanFree, MaxSubscriptions: 1}
	}
}
