package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Ghepes/checkout-ui-app/internal/repository"
)

// SettlementHandler exposes the operator remediation surface: transfer
// attempts that failed and need manual follow-up.
type SettlementHandler struct {
	attemptRepo repository.TransferAttemptRepository
}

func NewSettlementHandler(attemptRepo repository.TransferAttemptRepository) *SettlementHandler {
	return &SettlementHandler{
		attemptRepo: attemptRepo,
	}
}

func (h *SettlementHandler) ListFailedTransfers(c echo.Context) error {
	ctx := c.Request().Context()

	attempts, err := h.attemptRepo.ListFailed(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list transfer attempts")
	}

	return c.JSON(http.StatusOK, attempts)
}
