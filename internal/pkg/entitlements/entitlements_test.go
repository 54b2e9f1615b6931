package entitlements

import "testing"

func TestParsePlan(t *testing.T) {
	tests := []struct {
		in   string
		want Plan
	}{
		{in: "free", want: PlanFree},
		{in: " Premium ", want: PlanPremium},
		{in: "PREMIUM_MAX", want: PlanPremiumMax},
		{in: "gold", want: PlanFree},
		{in: "", want: PlanFree},
	}

	for _, tt := range tests {
		if got := ParsePlan(tt.in); got != tt.want {
			t.Fatalf("ParsePlan(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFeaturesFor(t *testing.T) {
	free := FeaturesFor(PlanFree)
	premium := FeaturesFor(PlanPremium)
	max := FeaturesFor(PlanPremiumMax)

	if free.APIAccess {
		t.Fatalf("expected free plan without api access")
	}
	if !premium.APIAccess || premium.PrioritySupport {
		t.Fatalf("unexpected premium features: %+v", premium)
	}
	if max.MaxSubscriptions <= premium.MaxSubscriptions {
		t.Fatalf("expected premium_max to allow more subscriptions than premium")
	}
	if got := FeaturesFor(Plan("unknown")).Plan; got != PlanFree {
		t.Fatalf("unknown plan resolved to %q, want free", got)
	}
}
