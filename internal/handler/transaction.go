package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/escrow-room-service/internal/escrow"
	"github.com/iliyamo/escrow-room-service/internal/model"
	"github.com/iliyamo/escrow-room-service/internal/repository"
)

// TransactionHandler serves transaction status reads, the buyer's
// receipt confirmation and the arbiter's release/cancel/dispute
// operations.
type TransactionHandler struct {
	Lifecycle *escrow.LifecycleService
	Release   *escrow.ReleaseAuthority
	Arbiters  *repository.ArbiterRepo
}

func NewTransactionHandler(lifecycle *escrow.LifecycleService, release *escrow.ReleaseAuthority,
	arbiters *repository.ArbiterRepo) *TransactionHandler {
	return &TransactionHandler{Lifecycle: lifecycle, Release: release, Arbiters: arbiters}
}

func (h *TransactionHandler) arbiterFromCtx(c echo.Context) (model.Arbiter, error) {
	aid, err := getUserID(c)
	if err != nil {
		return model.Arbiter{}, err
	}
	return h.Arbiters.GetByID(c.Request().Context(), aid)
}

// MyStatus handles GET /v1/session/status (occupant).
func (h *TransactionHandler) MyStatus(c echo.Context) error {
	occ, ok := occupantFromCtx(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	view, err := h.Lifecycle.Status(c.Request().Context(), occ.RoomID)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// RoomStatus handles GET /v1/rooms/:id/status (arbiter).
func (h *TransactionHandler) RoomStatus(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	view, err := h.Lifecycle.Status(c.Request().Context(), id)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// ConfirmReceipt handles POST /v1/session/confirm-receipt (occupant).
// Only the buyer of a SHIPPED transaction gets past the guards.
func (h *TransactionHandler) ConfirmReceipt(c echo.Context) error {
	occ, ok := occupantFromCtx(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		Notes string `json:"notes"`
	}
	_ = c.Bind(&body)
	txn, err := h.Lifecycle.ConfirmReceipt(c.Request().Context(), occ.RoomID, occ, body.Notes)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"transaction_id": txn.ID, "status": txn.Status})
}

// ReleaseFunds handles POST /v1/rooms/:id/release (arbiter).  A second
// release attempt fails on the status guard, never pays twice.
func (h *TransactionHandler) ReleaseFunds(c echo.Context) error {
	aid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := paramID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var body struct {
		Notes string `json:"notes"`
	}
	_ = c.Bind(&body)
	txn, err := h.Release.Release(c.Request().Context(), id, aid, body.Notes)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"transaction_id":   txn.ID,
		"status":           txn.Status,
		"amount_cents":     txn.AmountCents,
		"commission_cents": txn.CommissionCents,
		"fee_cents":        txn.FeeCents,
		"total_cents":      txn.TotalCents,
		"currency":         txn.Currency,
	})
}

// Cancel handles POST /v1/rooms/:id/cancel (arbiter).
func (h *TransactionHandler) Cancel(c echo.Context) error {
	return h.terminate(c, h.Lifecycle.Cancel)
}

// Dispute handles POST /v1/rooms/:id/dispute (arbiter).
func (h *TransactionHandler) Dispute(c echo.Context) error {
	return h.terminate(c, h.Lifecycle.Dispute)
}

// terminate factors the shared shape of cancel and dispute: resolve the
// arbiter, demand a reason, run the lifecycle operation.
func (h *TransactionHandler) terminate(c echo.Context,
	op func(ctx context.Context, roomID uint64, arbiter model.Arbiter, reason string) (*model.Transaction, error)) error {
	arbiter, err := h.arbiterFromCtx(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := paramID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil || strings.TrimSpace(body.Reason) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reason is required"})
	}
	txn, err := op(c.Request().Context(), id, arbiter, body.Reason)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"transaction_id": txn.ID, "status": txn.Status})
}
