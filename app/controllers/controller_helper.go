package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ManuelReschke/FoxPay/internal/pkg/apperr"
	"github.com/ManuelReschke/FoxPay/internal/pkg/logger"
)

// errorResponse writes err as {"error": {"message", "code"}} with the
// status of its kind. Only public messages leave the service.
func errorResponse(c *fiber.Ctx, err error) error {
	status := apperr.HTTPStatus(err)
	body := fiber.Map{
		"message": apperr.PublicMessage(err),
		"code":    string(apperr.KindOf(err)),
	}
	if e, ok := apperr.As(err); ok {
		if e.Code != "" {
			body["ledger_code"] = e.Code
		}
		if len(e.Steps) > 0 {
			body["completed_steps"] = e.Steps
		}
	}

	log := logger.FromCtx(c)
	if status >= fiber.StatusInternalServerError {
		log.Error("request failed", zap.Int("status", status), zap.Error(err))
	} else {
		log.Info("request rejected", zap.Int("status", status), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{"error": body})
}

// badRequest reports a malformed request body or query.
func badRequest(c *fiber.Ctx, message string) error {
	return errorResponse(c, apperr.Validation(message))
}

// firstNonEmpty returns the first value that is not blank. Clients send
// both snake_case and camelCase names for the same field.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
