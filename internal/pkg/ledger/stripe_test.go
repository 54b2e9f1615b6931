package ledger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/FoxPay/internal/pkg/apperr"
)

func newTestStripeClient(t *testing.T, handler http.HandlerFunc) (*StripeClient, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewStripeClient(Config{
		SecretKey:  "sk_test_123",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return c, &calls
}

func writeStripeError(w http.ResponseWriter, status int, body string) {
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestCreateSubscriptionSendsIncompleteBehavior(t *testing.T) {
	c, calls := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/subscriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "cus_1", r.PostForm.Get("customer"))
		assert.Equal(t, "price_basic", r.PostForm.Get("items[0][price]"))
		assert.Equal(t, "default_incomplete", r.PostForm.Get("payment_behavior"))
		assert.ElementsMatch(t,
			[]string{"latest_invoice.payment_intent", "pending_setup_intent"},
			[]string{r.PostForm.Get("expand[0]"), r.PostForm.Get("expand[1]")})

		_, _ = w.Write([]byte(`{
			"id": "sub_1",
			"object": "subscription",
			"customer": "cus_1",
			"status": "incomplete",
			"created": 1700000000,
			"items": {"object": "list", "data": [{"id": "si_1", "price": {"id": "price_basic", "unit_amount": 500, "currency": "usd", "recurring": {"interval": "month"}}}]},
			"latest_invoice": {"id": "in_1", "object": "invoice", "payment_intent": {"id": "pi_1", "object": "payment_intent", "status": "requires_payment_method", "client_secret": "pi_1_secret_abc"}}
		}`))
	})

	sub, err := c.CreateSubscription(context.Background(), CreateSubscriptionRequest{CustomerID: "cus_1", PriceID: "price_basic"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.Equal(t, "sub_1", sub.ID)
	assert.Equal(t, "cus_1", sub.CustomerID)
	assert.Equal(t, StatusIncomplete, sub.Status)
	assert.Equal(t, "price_basic", sub.PriceID())
	assert.Equal(t, "in_1", sub.LatestInvoiceID)
	assert.Equal(t, "pi_1_secret_abc", sub.ClientSecret())
	assert.Equal(t, "month", sub.Items[0].Price.Interval)
}

func TestCreateSubscriptionFallsBackToSetupIntentSecret(t *testing.T) {
	c, _ := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"id": "sub_2",
			"object": "subscription",
			"customer": "cus_1",
			"status": "active",
			"latest_invoice": {"id": "in_2", "object": "invoice", "payment_intent": null},
			"pending_setup_intent": {"id": "seti_1", "object": "setup_intent", "status": "requires_payment_method", "client_secret": "seti_1_secret_xyz"}
		}`))
	})

	sub, err := c.CreateSubscription(context.Background(), CreateSubscriptionRequest{CustomerID: "cus_1", PriceID: "price_free"})
	require.NoError(t, err)
	assert.Nil(t, sub.PaymentIntent)
	assert.Equal(t, "seti_1_secret_xyz", sub.ClientSecret())
}

func TestRequestValidationHappensBeforeNetwork(t *testing.T) {
	c, calls := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request to %s", r.URL.Path)
	})

	_, err := c.CreateSubscription(context.Background(), CreateSubscriptionRequest{CustomerID: "cus_1"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "PriceID")

	_, err = c.CreateCheckoutSession(context.Background(), CreateCheckoutSessionRequest{
		Mode:       CheckoutModeSetup,
		SuccessURL: "https://pay.example.com/success/setup?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  "https://pay.example.com/canceled",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CustomerID")

	_, err = c.GetSubscription(context.Background(), " ")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind apperr.Kind
		wantMsg  string
		wantCode string
	}{
		{
			name:     "card declined",
			status:   http.StatusPaymentRequired,
			body:     `{"error": {"type": "card_error", "code": "card_declined", "message": "Your card was declined."}}`,
			wantKind: apperr.KindPayment,
			wantMsg:  "Your card was declined.",
			wantCode: "card_declined",
		},
		{
			name:     "invalid price",
			status:   http.StatusBadRequest,
			body:     `{"error": {"type": "invalid_request_error", "code": "resource_missing", "param": "items[0][price]", "message": "No such price: 'price_x'"}}`,
			wantKind: apperr.KindValidation,
			wantMsg:  "No such price: 'price_x'",
			wantCode: "resource_missing",
		},
		{
			name:     "missing object",
			status:   http.StatusNotFound,
			body:     `{"error": {"type": "invalid_request_error", "code": "resource_missing", "message": "No such subscription: 'sub_x'"}}`,
			wantKind: apperr.KindNotFound,
			wantMsg:  "No such subscription: 'sub_x'",
			wantCode: "resource_missing",
		},
		{
			name:     "bad parameter",
			status:   http.StatusBadRequest,
			body:     `{"error": {"type": "invalid_request_error", "code": "parameter_invalid_empty", "message": "You passed an empty string for 'customer'."}}`,
			wantKind: apperr.KindValidation,
			wantMsg:  "You passed an empty string for 'customer'.",
			wantCode: "parameter_invalid_empty",
		},
		{
			name:     "bad key",
			status:   http.StatusUnauthorized,
			body:     `{"error": {"type": "invalid_request_error", "message": "Invalid API Key provided: sk_test_***123"}}`,
			wantKind: apperr.KindAuthentication,
		},
		{
			name:     "rate limited",
			status:   http.StatusTooManyRequests,
			body:     `{"error": {"type": "invalid_request_error", "code": "rate_limit", "message": "Too many requests"}}`,
			wantKind: apperr.KindUpstream,
		},
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			body:     `{"error": {"type": "api_error", "message": "Something went wrong"}}`,
			wantKind: apperr.KindUpstream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, calls := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeStripeError(w, tt.status, tt.body)
			})

			_, err := c.CreateSubscription(context.Background(), CreateSubscriptionRequest{CustomerID: "cus_1", PriceID: "price_x"})
			require.Error(t, err)
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantKind, e.Kind)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, e.Message)
			}
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, e.Code)
			}
			// no retries towards the processor
			assert.Equal(t, int32(1), atomic.LoadInt32(calls))
		})
	}
}

func TestNetworkFailureIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewStripeClient(Config{SecretKey: "sk_test_123", BaseURL: url})
	require.NoError(t, err)

	_, err = c.GetCustomer(context.Background(), "cus_1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
}

func TestNewStripeClientRequiresKey(t *testing.T) {
	_, err := NewStripeClient(Config{})
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
}

func TestListCustomersReadsSinglePage(t *testing.T) {
	c, calls := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/customers", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{
			"object": "list",
			"url": "/v1/customers",
			"has_more": true,
			"data": [
				{"id": "cus_1", "object": "customer", "email": "a@example.com"},
				{"id": "cus_2", "object": "customer", "email": "b@example.com"}
			]
		}`))
	})

	customers, err := c.ListCustomers(context.Background(), ListCustomersRequest{})
	require.NoError(t, err)
	assert.Len(t, customers, 2)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestGetSubscriptionRecordsLedgerClock(t *testing.T) {
	c, _ := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Date", "Sun, 01 Mar 2026 12:00:00 GMT")
		_, _ = w.Write([]byte(`{"id": "sub_1", "object": "subscription", "customer": "cus_1", "status": "active"}`))
	})

	sub, err := c.GetSubscription(context.Background(), "sub_1")
	require.NoError(t, err)
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, want.Equal(sub.ObservedAt), "got %s", sub.ObservedAt)
}

func TestListPricesExpandsProduct(t *testing.T) {
	c, _ := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/prices", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("active"))
		assert.Equal(t, "data.product", r.URL.Query().Get("expand[0]"))
		_, _ = w.Write([]byte(`{
			"object": "list",
			"url": "/v1/prices",
			"has_more": false,
			"data": [
				{"id": "price_basic", "object": "price", "active": true, "currency": "usd", "unit_amount": 500, "recurring": {"interval": "month"}, "product": {"id": "prod_basic", "object": "product", "name": "Basic"}},
				{"id": "price_premium", "object": "price", "active": true, "currency": "usd", "unit_amount": 1500, "recurring": {"interval": "month"}, "product": "prod_premium"}
			]
		}`))
	})

	prices, err := c.ListPrices(context.Background())
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, "Basic", prices[0].Product.Name)
	assert.Equal(t, "prod_premium", prices[1].Product.ID)
	assert.Equal(t, int64(1500), prices[1].UnitAmount)
}

func TestCreateSetupCheckoutSession(t *testing.T) {
	c, _ := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "setup", r.PostForm.Get("mode"))
		assert.Equal(t, "cus_1", r.PostForm.Get("customer"))
		assert.Equal(t, "sub_1", r.PostForm.Get("setup_intent_data[metadata][subscription_id]"))
		assert.Equal(t, "card", r.PostForm.Get("payment_method_types[0]"))
		assert.Empty(t, r.PostForm.Get("line_items[0][price]"))
		_, _ = w.Write([]byte(`{"id": "cs_1", "object": "checkout.session", "mode": "setup", "customer": "cus_1", "status": "open", "url": "https://checkout.stripe.com/c/pay/cs_1"}`))
	})

	cs, err := c.CreateCheckoutSession(context.Background(), CreateCheckoutSessionRequest{
		Mode:          CheckoutModeSetup,
		CustomerID:    "cus_1",
		SuccessURL:    "https://pay.example.com/success/setup?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     "https://pay.example.com/canceled",
		SetupMetadata: map[string]string{SetupMetadataSubscriptionKey: "sub_1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", cs.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_1", cs.URL)
	assert.Equal(t, CheckoutModeSetup, cs.Mode)
}

func TestSubscriptionFromJSON(t *testing.T) {
	sub, err := SubscriptionFromJSON([]byte(`{
		"id": "sub_1",
		"object": "subscription",
		"customer": "cus_1",
		"status": "past_due",
		"default_payment_method": "pm_1",
		"current_period_end": 1702592000,
		"items": {"object": "list", "data": [{"id": "si_1", "price": {"id": "price_basic"}}]}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "cus_1", sub.CustomerID)
	assert.Equal(t, "pm_1", sub.DefaultPaymentMethodID)
	assert.Equal(t, "price_basic", sub.PriceID())
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, int64(1702592000), sub.CurrentPeriodEnd.Unix())

	_, err = SubscriptionFromJSON([]byte(`{"object": "subscription"}`))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = SubscriptionFromJSON([]byte(`not json`))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCheckoutSessionFromJSON(t *testing.T) {
	cs, err := CheckoutSessionFromJSON([]byte(`{"id": "cs_1", "object": "checkout.session", "mode": "setup", "customer": "cus_1", "setup_intent": "seti_1", "status": "complete"}`))
	require.NoError(t, err)
	assert.Equal(t, "seti_1", cs.SetupIntentID)
	assert.Equal(t, "complete", cs.Status)
}
