package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ManuelReschke/FoxPay/internal/pkg/billing"
	"github.com/ManuelReschke/FoxPay/internal/pkg/logger"
	"github.com/ManuelReschke/FoxPay/internal/pkg/usercontext"
)

const customerCookieTTL = 30 * 24 * time.Hour

// BillingController exposes the subscription lifecycle over HTTP.
type BillingController struct {
	service      *billing.Service
	secureCookie bool
}

func NewBillingController(service *billing.Service, secureCookie bool) *BillingController {
	return &BillingController{service: service, secureCookie: secureCookie}
}

type createCustomerRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// HandleCreateCustomer opens a ledger customer for the calling user and
// remembers it in the customer cookie.
func (bc *BillingController) HandleCreateCustomer(c *fiber.Ctx) error {
	var req createCustomerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	cus, err := bc.service.CreateCustomer(c.UserContext(), billing.CreateCustomerInput{
		InternalUserID: usercontext.GetUserID(c),
		Email:          req.Email,
		Name:           req.Name,
	})
	if err != nil {
		return errorResponse(c, err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     usercontext.CookieCustomer,
		Value:    cus.ID,
		Path:     "/",
		Expires:  time.Now().Add(customerCookieTTL),
		HTTPOnly: true,
		Secure:   bc.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.JSON(fiber.Map{"customer": cus})
}

func (bc *BillingController) HandleConfig(c *fiber.Ctx) error {
	cfg, err := bc.service.Config(c.UserContext())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(cfg)
}

func (bc *BillingController) HandlePublishableKey(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"publishableKey": bc.service.PublishableKey()})
}

func (bc *BillingController) HandlePlans(c *fiber.Ctx) error {
	plans, err := bc.service.ListPlans(c.UserContext())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"plans": plans})
}

type createSubscriptionRequest struct {
	Customer      string `json:"customer"`
	CustomerID    string `json:"customer_id"`
	CustomerIDAlt string `json:"customerId"`
	PriceID       string `json:"price_id"`
	PriceIDAlt    string `json:"priceId"`
}

// HandleCreateSubscription starts an incomplete subscription and returns
// the client secret the storefront confirms.
func (bc *BillingController) HandleCreateSubscription(c *fiber.Ctx) error {
	var req createSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	created, err := bc.service.CreateSubscription(c.UserContext(), billing.CreateSubscriptionInput{
		CustomerID: usercontext.CustomerOr(c, firstNonEmpty(req.Customer, req.CustomerID, req.CustomerIDAlt)),
		PriceID:    firstNonEmpty(req.PriceID, req.PriceIDAlt),
	})
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(created)
}

// HandleCheckoutSession redirects to a hosted subscription checkout.
func (bc *BillingController) HandleCheckoutSession(c *fiber.Ctx) error {
	customerID := usercontext.CustomerOr(c, firstNonEmpty(c.Query("customer"), c.Query("customer_id")))
	cs, err := bc.service.StartSubscriptionCheckout(c.UserContext(), customerID, c.Query("price_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Redirect(cs.URL, fiber.StatusSeeOther)
}

// HandleCheckoutSuccess returns the completed checkout session.
func (bc *BillingController) HandleCheckoutSuccess(c *fiber.Ctx) error {
	cs, err := bc.service.ResolveCheckout(c.UserContext(), c.Query("session_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(cs)
}

// HandleSetupCheckoutSession starts the payment method replacement by
// redirecting to a hosted setup-mode checkout.
func (bc *BillingController) HandleSetupCheckoutSession(c *fiber.Ctx) error {
	cs, err := bc.service.StartPaymentMethodUpdate(c.UserContext(), billing.PaymentMethodUpdateInput{
		CustomerID:     usercontext.CustomerOr(c, firstNonEmpty(c.Query("customer"), c.Query("customer_id"))),
		SubscriptionID: c.Query("subscription_id"),
	})
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Redirect(cs.URL, fiber.StatusSeeOther)
}

// HandleSetupSuccess commits the payment method captured by a completed
// setup session to the customer and the subscription.
func (bc *BillingController) HandleSetupSuccess(c *fiber.Ctx) error {
	res, err := bc.service.CompletePaymentMethodUpdate(c.UserContext(), c.Query("session_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	logger.FromCtx(c).Info("payment method replaced",
		zap.String("subscription_id", res.SubscriptionID),
		zap.Strings("steps", res.Steps))
	return c.JSON(res)
}

func (bc *BillingController) HandleGetSubscription(c *fiber.Ctx) error {
	sub, err := bc.service.RetrieveSubscription(c.UserContext(), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(sub)
}

func (bc *BillingController) HandleListCustomerSubscriptions(c *fiber.Ctx) error {
	subs, err := bc.service.ListCustomerSubscriptions(c.UserContext(), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"subscriptions": subs})
}

type modifySubscriptionRequest struct {
	SubscriptionID  string `json:"subscription_id"`
	PaymentMethodID string `json:"payment_method_id"`
	CustomerID      string `json:"customer_id"`
}

// HandleModifySubscription replaces the default payment method of a
// subscription with one the storefront collected itself.
func (bc *BillingController) HandleModifySubscription(c *fiber.Ctx) error {
	var req modifySubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	sub, err := bc.service.ModifyDefaultPaymentMethod(c.UserContext(), billing.ModifyPaymentMethodInput{
		SubscriptionID:  req.SubscriptionID,
		PaymentMethodID: req.PaymentMethodID,
		CustomerID:      usercontext.CustomerOr(c, req.CustomerID),
	})
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(sub)
}

type cancelSubscriptionRequest struct {
	SubscriptionID string `json:"subscription_id"`
}

func (bc *BillingController) HandleCancelSubscription(c *fiber.Ctx) error {
	var req cancelSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := bc.service.CancelSubscription(c.UserContext(), req.SubscriptionID)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(res)
}

// HandleCustomerEntitlement reports the effective plan of a customer.
func (bc *BillingController) HandleCustomerEntitlement(c *fiber.Ctx) error {
	ent, err := bc.service.Entitlement(c.UserContext(), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(ent)
}

// HandleCurrentEntitlement reports the plan of the calling customer.
func (bc *BillingController) HandleCurrentEntitlement(c *fiber.Ctx) error {
	ent, err := bc.service.Entitlement(c.UserContext(), usercontext.GetCustomerID(c))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(ent)
}
