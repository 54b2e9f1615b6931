package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/FoxPay/internal/pkg/env"
)

func withEnv(t *testing.T, values map[string]string) {
	t.Helper()
	prev := env.Env
	env.Env = map[string]string{}
	for k, v := range values {
		env.Set(k, v)
	}
	t.Cleanup(func() { env.Env = prev })
}

func TestLoadDefaults(t *testing.T) {
	withEnv(t, map[string]string{
		"STRIPE_SECRET_KEY":      "sk_test_123",
		"STRIPE_PUBLISHABLE_KEY": "pk_test_123",
		"PUBLIC_URL":             "https://pay.example.com/",
	})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://pay.example.com", cfg.PublicURL)
	assert.Equal(t, "https://pay.example.com/canceled", cfg.CheckoutCancelURL)
	assert.Equal(t, IdempotencyBackendDatabase, cfg.IdempotencyBackend)
	assert.Equal(t, 60*time.Second, cfg.IdempotencyLease)
	assert.False(t, cfg.SignatureVerification())
	assert.Equal(t, "localhost:4242", cfg.Addr())
}

func TestLoadRequiresLedgerCredentials(t *testing.T) {
	withEnv(t, map[string]string{
		"STRIPE_PUBLISHABLE_KEY": "pk_test_123",
	})

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SecretKey")
}

func TestLoadRejectsUnknownIdempotencyBackend(t *testing.T) {
	withEnv(t, map[string]string{
		"STRIPE_SECRET_KEY":      "sk_test_123",
		"STRIPE_PUBLISHABLE_KEY": "pk_test_123",
		"IDEMPOTENCY_BACKEND":    "memcached",
	})

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IdempotencyBackend")
}

func TestLoadWebhookSecretEnablesVerification(t *testing.T) {
	withEnv(t, map[string]string{
		"STRIPE_SECRET_KEY":      "sk_test_123",
		"STRIPE_PUBLISHABLE_KEY": "pk_test_123",
		"STRIPE_WEBHOOK_SECRET":  "whsec_abc",
		"IDEMPOTENCY_BACKEND":    "REDIS",
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.SignatureVerification())
	assert.Equal(t, IdempotencyBackendRedis, cfg.IdempotencyBackend)
}

func TestDatabaseURLs(t *testing.T) {
	db := Database{Host: "db", Port: "3306", User: "u", Password: "p", Name: "foxpay"}
	assert.Equal(t, "u:p@tcp(db:3306)/foxpay?charset=utf8mb4&parseTime=True&loc=UTC", db.MySQLDSN())
	assert.Equal(t, "mysql://u:p@tcp(db:3306)/foxpay?multiStatements=true", db.MigrateURL())
}

func TestParsePlanMappings(t *testing.T) {
	got, err := parsePlanMappings(" price_pro = premium , price_max=premium_max,")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]string{"price_pro": "premium", "price_max": "premium_max"}
	if len(got) != len(want) {
		t.Fatalf("expected %d mappings, got %v", len(want), got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("mapping %s: expected %s, got %s", k, v, got[k])
		}
	}

	if _, err := parsePlanMappings("price_pro"); err == nil {
		t.Fatal("expected an error for an entry without a plan")
	}
}
