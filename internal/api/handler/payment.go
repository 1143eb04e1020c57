package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hansol-dev/marketpay/internal/gateway"
	"github.com/hansol-dev/marketpay/internal/models"
	"github.com/hansol-dev/marketpay/internal/service"
)

type PaymentHandler struct {
	svc *service.PaymentService
}

func NewPaymentHandler(svc *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

// ConfirmPayment captures payment for an order. Safe to retry: a replay
// returns the already-recorded payment.
func (h *PaymentHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	var req struct {
		OrderID    string `json:"order_id"`
		PaymentKey string `json:"payment_key"`
		Amount     int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid order_id")
		return
	}
	if req.PaymentKey == "" {
		RespondError(w, r, http.StatusBadRequest, "payment/missing-key", "payment_key is required")
		return
	}

	payment, err := h.svc.Confirm(r.Context(), service.ConfirmPaymentRequest{
		OrderID:    orderID,
		PaymentKey: req.PaymentKey,
		Amount:     req.Amount,
	}, actorID)
	if err != nil {
		h.respondConfirmError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusCreated, payment)
}

func (h *PaymentHandler) respondConfirmError(w http.ResponseWriter, r *http.Request, err error) {
	var gwErr *gateway.Error
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		RespondError(w, r, http.StatusNotFound, "order/not-found", "order not found")
	case errors.Is(err, service.ErrOrderNotOwned):
		RespondError(w, r, http.StatusForbidden, "order/forbidden", "not your order")
	case errors.Is(err, service.ErrOrderNotPayable):
		RespondError(w, r, http.StatusConflict, "payment/order-not-payable", "order is not in a payable state")
	case errors.Is(err, service.ErrAmountMismatch):
		RespondError(w, r, http.StatusBadRequest, "payment/amount-mismatch", "amount does not match order total")
	case errors.Is(err, models.ErrInsufficientBalance):
		RespondError(w, r, http.StatusBadRequest, "payment/insufficient-balance", "insufficient deposit balance")
	case errors.Is(err, service.ErrChargeReversed):
		RespondError(w, r, http.StatusBadGateway, "payment/charge-reversed",
			"the charge could not be recorded and was reversed; no money moved")
	case errors.As(err, &gwErr):
		RespondError(w, r, http.StatusBadGateway, "payment/gateway-declined",
			"the payment gateway declined the charge; nothing was captured")
	default:
		RespondError(w, r, http.StatusInternalServerError, "payment/confirm-failed", "payment confirmation failed")
	}
}

// Refund reverses a successful payment.
func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid order id")
		return
	}

	payment, err := h.svc.Refund(r.Context(), orderID, actorID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPaymentNotFound):
			RespondError(w, r, http.StatusNotFound, "payment/not-found", "payment not found")
		case errors.Is(err, service.ErrOrderNotOwned):
			RespondError(w, r, http.StatusForbidden, "payment/forbidden", "not your payment")
		case errors.Is(err, service.ErrPaymentNotRefundable):
			RespondError(w, r, http.StatusConflict, "payment/not-refundable", "payment is not refundable")
		default:
			RespondError(w, r, http.StatusInternalServerError, "payment/refund-failed", "refund failed")
		}
		return
	}

	RespondJSON(w, http.StatusOK, payment)
}

func (h *PaymentHandler) GetByOrder(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid order id")
		return
	}

	payment, err := h.svc.GetByOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			RespondError(w, r, http.StatusNotFound, "payment/not-found", "payment not found")
			return
		}
		RespondError(w, r, http.StatusInternalServerError, "payment/lookup-failed", "could not load payment")
		return
	}
	if payment.BuyerID != actorID && !isAdmin {
		RespondError(w, r, http.StatusForbidden, "payment/forbidden", "not your payment")
		return
	}

	RespondJSON(w, http.StatusOK, payment)
}
