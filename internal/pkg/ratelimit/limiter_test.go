package ratelimit

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/FoxPay/internal/pkg/usercontext"
)

func newApp(max int) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		usercontext.SetUserContext(c, usercontext.UserContext{
			CustomerID: c.Cookies(usercontext.CookieCustomer),
		})
		return c.Next()
	})
	app.Use(New(Config{Max: max}))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func get(t *testing.T, app *fiber.App, customer string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	if customer != "" {
		req.Header.Set("Cookie", usercontext.CookieCustomer+"="+customer)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestLimiterCountsPerCustomer(t *testing.T) {
	app := newApp(2)

	assert.Equal(t, fiber.StatusOK, get(t, app, "cus_1"))
	assert.Equal(t, fiber.StatusOK, get(t, app, "cus_1"))
	assert.Equal(t, fiber.StatusTooManyRequests, get(t, app, "cus_1"))

	// Another customer has its own budget.
	assert.Equal(t, fiber.StatusOK, get(t, app, "cus_2"))
}

func TestLimiterDisabled(t *testing.T) {
	app := newApp(0)
	for i := 0; i < 5; i++ {
		assert.Equal(t, fiber.StatusOK, get(t, app, ""))
	}
}
