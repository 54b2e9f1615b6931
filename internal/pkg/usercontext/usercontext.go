package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext is the identity resolved for a request
type UserContext struct {
	UserID     string `json:"user_id,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
}

// GetUserContext retrieves the user context from fiber context
// Returns an anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(KeyUserContext).(UserContext); ok {
		return ctx
	}
	return UserContext{}
}

func SetUserContext(c *fiber.Ctx, uc UserContext) {
	c.Locals(KeyUserContext, uc)
}

// IsIdentified reports whether the request carries a user or a customer
func IsIdentified(c *fiber.Ctx) bool {
	uc := GetUserContext(c)
	return uc.UserID != "" || uc.CustomerID != ""
}

// GetUserID returns the internal user id, or an empty string
func GetUserID(c *fiber.Ctx) string {
	return GetUserContext(c).UserID
}

// GetCustomerID returns the ledger customer id, or an empty string
func GetCustomerID(c *fiber.Ctx) string {
	return GetUserContext(c).CustomerID
}

// CustomerOr returns explicit when set, else the customer of the request.
func CustomerOr(c *fiber.Ctx, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return GetCustomerID(c)
}
