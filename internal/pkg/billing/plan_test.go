package billing

import "testing"

func TestNormalizePlan(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "free", want: "free"},
		{in: "premium", want: "premium"},
		{in: "premium_max", want: "premium_max"},
		{in: "PREMIUM_MAX", want: "premium_max"},
		{in: "invalid", want: "free"},
	}

	for _, tt := range tests {
		if got := normalizePlan(tt.in); got != tt.want {
			t.Fatalf("normalizePlan(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPlanRank(t *testing.T) {
	if planRank("free") >= planRank("premium") {
		t.Fatalf("expected premium to outrank free")
	}
	if planRank("premium") >= planRank("premium_max") {
		t.Fatalf("expected premium_max to outrank premium")
	}
}

func TestNormalizeInterval(t *testing.T) {
	tests := map[string]string{
		"month":  "month",
		" YEAR ": "year",
		"week":   "unknown",
		"":       "unknown",
	}
	for in, want := range tests {
		if got := normalizeInterval(in); got != want {
			t.Fatalf("normalizeInterval(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "active", want: "active"},
		{in: "trialing", want: "active"},
		{in: "past_due", want: "past_due"},
		{in: "unpaid", want: "past_due"},
		{in: "paused", want: "past_due"},
		{in: "canceled", want: "canceled"},
		{in: "incomplete_expired", want: "canceled"},
		{in: "incomplete", want: "incomplete"},
		{in: "something_new", want: "incomplete"},
	}

	for _, tt := range tests {
		if got := NormalizeStatus(tt.in); got != tt.want {
			t.Fatalf("NormalizeStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsEntitlingStatus(t *testing.T) {
	for _, status := range []string{"active", "past_due"} {
		if !isEntitlingStatus(status) {
			t.Fatalf("expected status %q to be entitling", status)
		}
	}
	for _, status := range []string{"canceled", "incomplete", "trialing", ""} {
		if isEntitlingStatus(status) {
			t.Fatalf("expected status %q to be non-entitling", status)
		}
	}
}
