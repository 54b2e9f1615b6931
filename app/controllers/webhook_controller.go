package controllers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ManuelReschke/FoxPay/internal/pkg/logger"
	"github.com/ManuelReschke/FoxPay/internal/pkg/webhook"
)

const (
	headerStripeSignature = "Stripe-Signature"
	headerSignature       = "signature"
)

// WebhookController receives ledger event deliveries.
type WebhookController struct {
	pipeline *webhook.Pipeline
}

func NewWebhookController(pipeline *webhook.Pipeline) *WebhookController {
	return &WebhookController{pipeline: pipeline}
}

// HandleWebhook verifies and applies one delivery. Non-2xx answers make the
// processor redeliver; a permanently rejected event is still acknowledged.
func (wc *WebhookController) HandleWebhook(c *fiber.Ctx) error {
	// fasthttp reuses the request buffer after the handler returns.
	payload := append([]byte(nil), c.Body()...)
	signature := firstNonEmpty(c.Get(headerStripeSignature), c.Get(headerSignature))

	res, err := wc.pipeline.Ingest(c.UserContext(), payload, signature)
	if err != nil {
		return errorResponse(c, err)
	}

	if res.HandlerError != nil {
		logger.FromCtx(c).Warn("webhook acknowledged without effect",
			zap.String("event_id", res.EventID),
			zap.String("event_type", res.EventType),
			zap.Error(res.HandlerError))
	}
	return c.Status(res.Status).JSON(fiber.Map{"status": "success"})
}
