package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Ghepes/checkout-ui-app/internal/client"
	"github.com/Ghepes/checkout-ui-app/internal/service"
)

type WebhookHandler struct {
	gateway           client.Gateway
	settlementService service.SettlementService
}

func NewWebhookHandler(gateway client.Gateway, settlementService service.SettlementService) *WebhookHandler {
	return &WebhookHandler{
		gateway:           gateway,
		settlementService: settlementService,
	}
}

// HandleWebhook verifies the notification signature first; an invalid
// signature aborts with no side effects. A verified notification is always
// acknowledged with 200 regardless of the settlement outcome, since
// fund-transfer failures need out-of-band remediation, not redelivery.
func (h *WebhookHandler) HandleWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Unable to read request body",
		})
	}

	sigHeader := c.Request().Header.Get("Stripe-Signature")
	if sigHeader == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Missing signature header",
		})
	}

	event, err := h.gateway.VerifyEvent(body, sigHeader)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid signature",
		})
	}

	if err := h.settlementService.HandleEvent(ctx, event); err != nil {
		slog.Error("settlement failed", "event", event.ID, "err", err)
	}

	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}
