package logger

import "testing"

func TestMaskAuthorization(t *testing.T) {
	got := MaskAuthorization("Bearer abcdef1234")
	want := "Bearer ****1234"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestMaskCookie(t *testing.T) {
	got := MaskCookie("customer=cus_abcdef1234; other=xyz")
	want := "customer=****1234; other=****xyz"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestMaskSignature(t *testing.T) {
	got := MaskSignature("t=1700000000,v1=5257a869e7ecebeda32affa62cdca3fa51cad7e77a0e56ff536d0ce8e108d8bd")
	want := "t=1700000000,v1=****d8bd"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestMaskHeaders(t *testing.T) {
	masked := MaskHeaders(map[string][]string{
		"Stripe-Signature": {"t=1,v1=abcdef"},
		"X-Api-Token":      {"tok_123456"},
		"Content-Type":     {"application/json"},
	})
	if masked["Stripe-Signature"] != "t=1,v1=****cdef" {
		t.Fatalf("expected masked signature, got %q", masked["Stripe-Signature"])
	}
	if masked["X-Api-Token"] != "****3456" {
		t.Fatalf("expected masked token header, got %q", masked["X-Api-Token"])
	}
	if masked["Content-Type"] != "application/json" {
		t.Fatalf("expected content type untouched, got %q", masked["Content-Type"])
	}
}

func TestMaskJSON(t *testing.T) {
	input := map[string]any{
		"client_secret": "pi_123_secret_abcd9876",
		"id":            "pi_123",
		"nested": map[string]any{
			"api_key": "key_12345678",
		},
	}
	masked := MaskJSON(input)
	if masked["client_secret"] != "****9876" {
		t.Fatalf("expected masked client_secret, got %v", masked["client_secret"])
	}
	if masked["id"] != "pi_123" {
		t.Fatalf("expected id untouched, got %v", masked["id"])
	}
	nested, ok := masked["nested"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested map")
	}
	if nested["api_key"] != "****5678" {
		t.Fatalf("expected masked api_key, got %v", nested["api_key"])
	}
}
