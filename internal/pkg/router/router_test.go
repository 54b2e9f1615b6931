package router

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/ManuelReschke/FoxPay/app/controllers"
	"github.com/ManuelReschke/FoxPay/app/models"
	"github.com/ManuelReschke/FoxPay/internal/pkg/billing"
	"github.com/ManuelReschke/FoxPay/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/FoxPay/internal/pkg/idempotency"
	"github.com/ManuelReschke/FoxPay/internal/pkg/ledger/ledgertest"
	"github.com/ManuelReschke/FoxPay/internal/pkg/metrics"
	"github.com/ManuelReschke/FoxPay/internal/pkg/signal"
	"github.com/ManuelReschke/FoxPay/internal/pkg/usercontext"
	"github.com/ManuelReschke/FoxPay/internal/pkg/webhook"
)

const (
	testSecret = "whsec_router_test"
	testUserID = "7f3c1a52-3c1e-4c59-9d55-5a1f0b6f3e21"
)

type testApp struct {
	app    *fiber.App
	ledger *ledgertest.Fake
	db     *gorm.DB
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	return newTestAppWithConfig(t, fiber.Config{Immutable: true})
}

func newTestAppWithConfig(t *testing.T, cfg fiber.Config) *testApp {
	t.Helper()
	db := dbtest.New(t)
	log := zaptest.NewLogger(t)

	fake := ledgertest.New()
	fake.AddPrice("price_basic", 0)
	fake.AddPrice("price_pro", 1500)

	svc := billing.NewServiceFromDB(fake, db, billing.Options{
		PublishableKey: "pk_test_router",
		PublicURL:      "https://shop.example.com",
	}, log)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	m := metrics.New(metrics.Config{ServiceName: "foxpay-test"})
	notifier := signal.NewNotifier(signal.NewOutbox(db, node), nil, m, log)

	dispatcher := webhook.NewDispatcher()
	webhook.NewHandlers(svc, notifier).Register(dispatcher)
	pipeline := webhook.NewPipeline(
		webhook.NewVerifier(testSecret, 0),
		idempotency.NewGormStore(db, time.Minute),
		dispatcher,
		m,
	)

	app := fiber.New(cfg)
	InstallRouter(app, Dependencies{
		Billing:         controllers.NewBillingController(svc, false),
		Webhook:         controllers.NewWebhookController(pipeline),
		Health:          controllers.NewHealthController(db, nil),
		Resolver:        svc,
		Metrics:         m,
		MetricsUser:     "ops",
		MetricsPassword: "secret",
	})
	return &testApp{app: app, ledger: fake, db: db}
}

func (a *testApp) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func jsonRequest(method, target string, body any) *http.Request {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return req
}

func sign(payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func webhookRequest(payload []byte, header string) *http.Request {
	req := httptest.NewRequest(fiber.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(header, sign(payload))
	return req
}

func decode(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return out
}

func TestSubscriptionScenarioWithDuplicateWebhook(t *testing.T) {
	a := newTestApp(t)

	req := jsonRequest(fiber.MethodPost, "/customers", fiber.Map{"email": "jane@example.com", "name": "Jane"})
	req.Header.Set(usercontext.HeaderUserID, testUserID)
	resp, body := a.do(t, req)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))

	var cookie *http.Cookie
	for _, ck := range resp.Cookies() {
		if ck.Name == usercontext.CookieCustomer {
			cookie = ck
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, "cus_1", cookie.Value)

	// Legacy path with the original body shape.
	resp, body = a.do(t, jsonRequest(fiber.MethodPost, "/create-subscription", fiber.Map{
		"customer": "cus_1",
		"price_id": "price_basic",
	}))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	created := decode(t, body)
	assert.Equal(t, "sub_1", created["subscriptionId"])
	assert.True(t, strings.HasPrefix(created["clientSecret"].(string), "seti_"))
	assert.Equal(t, "incomplete", created["status"])

	payload := []byte(`{"id":"evt_pi_1","object":"event","type":"payment_intent.succeeded","created":1767225600,"api_version":"2024-06-20","data":{"object":{"id":"pi_1","object":"payment_intent","amount":0,"currency":"usd","customer":"cus_1","status":"succeeded"}}}`)
	for _, header := range []string{"Stripe-Signature", "signature"} {
		resp, body = a.do(t, webhookRequest(payload, header))
		require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
		assert.Equal(t, "success", decode(t, body)["status"])
	}

	var signals []models.FulfillmentSignal
	require.NoError(t, a.db.Find(&signals).Error)
	require.Len(t, signals, 1)
	assert.Equal(t, signal.KindFulfillmentReady, signals[0].Kind)
	assert.Equal(t, "pi_1", signals[0].PaymentIntentID)
}

func TestSetupCheckoutRoundTrip(t *testing.T) {
	setupCheckoutRoundTrip(t, newTestApp(t))
}

// Query values of a mutable app point into fasthttp buffers that the next
// request overwrites; nothing may keep them past the handler.
func TestSetupCheckoutRoundTripWithMutableRequestBuffers(t *testing.T) {
	setupCheckoutRoundTrip(t, newTestAppWithConfig(t, fiber.Config{}))
}

func setupCheckoutRoundTrip(t *testing.T, a *testApp) {
	t.Helper()
	resp, body := a.do(t, jsonRequest(fiber.MethodPost, "/customers", fiber.Map{"email": "jane@example.com"}))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	resp, body = a.do(t, jsonRequest(fiber.MethodPost, "/subscriptions", fiber.Map{"customerId": "cus_1", "priceId": "price_pro"}))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))

	resp, _ = a.do(t, httptest.NewRequest(fiber.MethodGet, "/modify-checkout-session?subscription_id=sub_1&customer=cus_1", nil))
	require.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderLocation), "cs_1")

	_, err := a.ledger.CompleteSetupSession("cs_1", "pm_new")
	require.NoError(t, err)

	resp, body = a.do(t, httptest.NewRequest(fiber.MethodGet, "/success/setup?session_id=cs_1", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "Modify Customer Success", decode(t, body)["result"])

	sub, ok := a.ledger.Subscription("sub_1")
	require.True(t, ok)
	assert.Equal(t, "pm_new", sub.DefaultPaymentMethodID)
	cus, ok := a.ledger.Customer("cus_1")
	require.True(t, ok)
	assert.Equal(t, "pm_new", cus.DefaultPaymentMethodID)

	// Reloading the success page is harmless.
	resp, body = a.do(t, httptest.NewRequest(fiber.MethodGet, "/success-modify-checkout-session?session_id=cs_1", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	sub, _ = a.ledger.Subscription("sub_1")
	assert.Equal(t, "pm_new", sub.DefaultPaymentMethodID)
}

func TestErrorResponses(t *testing.T) {
	a := newTestApp(t)
	a.do(t, jsonRequest(fiber.MethodPost, "/customers", fiber.Map{"email": "jane@example.com"}))

	tests := []struct {
		name   string
		req    *http.Request
		status int
		code   string
	}{
		{"unknown price", jsonRequest(fiber.MethodPost, "/subscriptions", fiber.Map{"customer_id": "cus_1", "price_id": "price_missing"}), fiber.StatusBadRequest, "validation_error"},
		{"missing price", jsonRequest(fiber.MethodPost, "/subscriptions", fiber.Map{"customer_id": "cus_1"}), fiber.StatusBadRequest, "validation_error"},
		{"bad email", jsonRequest(fiber.MethodPost, "/create-customer", fiber.Map{"email": "nope"}), fiber.StatusBadRequest, "validation_error"},
		{"unknown subscription", httptest.NewRequest(fiber.MethodGet, "/subscriptions/sub_404", nil), fiber.StatusNotFound, "not_found"},
		{"modify unknown payment method", jsonRequest(fiber.MethodPost, "/subscription-modify", fiber.Map{"subscription_id": "sub_404", "payment_method_id": "pm_404", "customer_id": "cus_1"}), fiber.StatusPaymentRequired, "payment_error"},
		{"entitlement needs customer", httptest.NewRequest(fiber.MethodGet, "/entitlement", nil), fiber.StatusUnauthorized, "unauthorized"},
	}

	for _, tt := range tests {
		resp, body := a.do(t, tt.req)
		if resp.StatusCode != tt.status {
			t.Fatalf("%s: expected status %d, got %d (%s)", tt.name, tt.status, resp.StatusCode, body)
		}
		errBody, ok := decode(t, body)["error"].(map[string]any)
		if !ok {
			t.Fatalf("%s: missing error object in %s", tt.name, body)
		}
		if errBody["code"] != tt.code {
			t.Fatalf("%s: expected code %s, got %v", tt.name, tt.code, errBody["code"])
		}
		if msg, _ := errBody["message"].(string); msg == "" {
			t.Fatalf("%s: empty error message", tt.name)
		}
	}
}

func TestForgedWebhookIsRejected(t *testing.T) {
	a := newTestApp(t)

	payload := []byte(`{"id":"evt_forged","object":"event","type":"payment_intent.succeeded","created":1767225600,"data":{"object":{"id":"pi_9","object":"payment_intent"}}}`)
	req := httptest.NewRequest(fiber.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1767225600,v1=deadbeef")
	resp, body := a.do(t, req)

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "signature_error", decode(t, body)["error"].(map[string]any)["code"])

	var count int64
	require.NoError(t, a.db.Model(&models.BillingWebhookEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCancelAndEntitlement(t *testing.T) {
	a := newTestApp(t)
	a.do(t, jsonRequest(fiber.MethodPost, "/customers", fiber.Map{"email": "jane@example.com"}))
	a.do(t, jsonRequest(fiber.MethodPost, "/subscriptions", fiber.Map{"customer_id": "cus_1", "price_id": "price_basic"}))

	resp, body := a.do(t, jsonRequest(fiber.MethodPost, "/cancel-subscription", fiber.Map{"subscription_id": "sub_1"}))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "Subscription Cancelled", decode(t, body)["detail"])

	resp, body = a.do(t, httptest.NewRequest(fiber.MethodGet, "/subscription/sub_1", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "canceled", decode(t, body)["status"])

	req := httptest.NewRequest(fiber.MethodGet, "/entitlement", nil)
	req.Header.Set("Cookie", usercontext.CookieCustomer+"=cus_1")
	resp, body = a.do(t, req)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	ent := decode(t, body)
	assert.Equal(t, "free", ent["plan"])
	assert.Equal(t, false, ent["entitled"])
}

func TestCatalogEndpoints(t *testing.T) {
	a := newTestApp(t)

	resp, body := a.do(t, httptest.NewRequest(fiber.MethodGet, "/stripe-key", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "pk_test_router", decode(t, body)["publishableKey"])

	resp, body = a.do(t, httptest.NewRequest(fiber.MethodGet, "/config", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	cfg := decode(t, body)
	assert.Len(t, cfg["prices"], 2)

	resp, body = a.do(t, httptest.NewRequest(fiber.MethodGet, "/plans", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, decode(t, body)["plans"], 2)

	resp, _ = a.do(t, httptest.NewRequest(fiber.MethodGet, "/checkout-session?price_id=price_pro&customer=cus_1", nil))
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderLocation))
}

func TestOperationalEndpoints(t *testing.T) {
	a := newTestApp(t)

	resp, body := a.do(t, httptest.NewRequest(fiber.MethodGet, "/healthz", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "ok", decode(t, body)["status"])

	resp, _ = a.do(t, httptest.NewRequest(fiber.MethodGet, "/metrics", nil))
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(fiber.MethodGet, "/metrics", nil)
	req.SetBasicAuth("ops", "secret")
	resp, body = a.do(t, req)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}
