package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"

	"github.com/ManuelReschke/FoxPay/internal/pkg/usercontext"
)

// RequireCustomer ensures the request resolved to a ledger customer and
// returns JSON 401 otherwise.
func RequireCustomer(c *fiber.Ctx) error {
	if usercontext.GetCustomerID(c) == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": fiber.Map{
				"message": "customer required",
				"code":    "unauthorized",
			},
		})
	}
	return c.Next()
}

// RequireMetricsAuth guards operational endpoints with basic auth. An
// empty password disables access entirely.
func RequireMetricsAuth(user, password string) fiber.Handler {
	if password == "" {
		return func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusNotFound)
		}
	}
	return basicauth.New(basicauth.Config{
		Realm: "FoxPay Metrics",
		Authorizer: func(u, p string) bool {
			return subtle.ConstantTimeCompare([]byte(u), []byte(user)) == 1 &&
				subtle.ConstantTimeCompare([]byte(p), []byte(password)) == 1
		},
	})
}
