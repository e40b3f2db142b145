package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Ghepes/checkout-ui-app/internal/dto"
	"github.com/Ghepes/checkout-ui-app/internal/service"
)

type CheckoutHandler struct {
	checkoutService service.CheckoutService
}

func NewCheckoutHandler(checkoutService service.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService: checkoutService,
	}
}

func (h *CheckoutHandler) CreateCheckout(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request payload",
		})
	}

	resp, err := h.checkoutService.CreateSession(ctx, &req)
	if err != nil {
		if errors.Is(err, service.ErrEmptyCart) {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "Cart is empty",
			})
		}

		var scErr *service.SessionCreationError
		if errors.As(err, &scErr) {
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error":   "Unable to create checkout session",
				"details": scErr.Unwrap().Error(),
			})
		}

		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, resp)
}
