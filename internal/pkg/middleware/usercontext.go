package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ManuelReschke/FoxPay/app/models"
	"github.com/ManuelReschke/FoxPay/internal/pkg/logger"
	"github.com/ManuelReschke/FoxPay/internal/pkg/usercontext"
)

// CustomerResolver finds the ledger customer linked to an internal user.
type CustomerResolver interface {
	CustomerForUser(ctx context.Context, internalUserID string) (*models.BillingCustomer, error)
}

// UserContextMiddleware sets up the user context for every request. The
// internal user id comes from the X-User-ID header set by the identity
// provider in front of the service; the customer id comes from the
// customer cookie or, failing that, from the user's directory entry.
func UserContextMiddleware(resolver CustomerResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uc := usercontext.UserContext{
			CustomerID: strings.TrimSpace(c.Cookies(usercontext.CookieCustomer)),
		}

		if raw := strings.TrimSpace(c.Get(usercontext.HeaderUserID)); raw != "" {
			if id, err := uuid.Parse(raw); err == nil {
				uc.UserID = id.String()
			} else {
				logger.FromCtx(c).Debug("ignoring malformed user id header", zap.String("value", raw))
			}
		}

		if uc.CustomerID == "" && uc.UserID != "" && resolver != nil {
			if cus, err := resolver.CustomerForUser(c.UserContext(), uc.UserID); err == nil {
				uc.CustomerID = cus.LedgerCustomerID
			}
		}

		usercontext.SetUserContext(c, uc)
		return c.Next()
	}
}
