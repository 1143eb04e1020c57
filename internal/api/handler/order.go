package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hansol-dev/marketpay/internal/service"
)

type OrderHandler struct {
	svc *service.OrderService
}

func NewOrderHandler(svc *service.OrderService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	var req struct {
		Items []service.OrderItemInput `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	order, err := h.svc.Create(r.Context(), actorID, req.Items)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyOrder), errors.Is(err, service.ErrInvalidAmount):
			RespondError(w, r, http.StatusBadRequest, "order/invalid", err.Error())
		default:
			RespondError(w, r, http.StatusInternalServerError, "order/create-failed", "could not create order")
		}
		return
	}

	RespondJSON(w, http.StatusCreated, order)
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid order id")
		return
	}

	order, err := h.svc.Get(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			RespondError(w, r, http.StatusNotFound, "order/not-found", "order not found")
			return
		}
		RespondError(w, r, http.StatusInternalServerError, "order/lookup-failed", "could not load order")
		return
	}
	if order.BuyerID != actorID && !isAdmin {
		RespondError(w, r, http.StatusForbidden, "order/forbidden", "not your order")
		return
	}

	RespondJSON(w, http.StatusOK, order)
}

// ConfirmPurchase marks a paid order as received by the buyer, which queues
// seller settlements.
func (h *OrderHandler) ConfirmPurchase(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid order id")
		return
	}

	order, err := h.svc.ConfirmPurchase(r.Context(), orderID, actorID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			RespondError(w, r, http.StatusNotFound, "order/not-found", "order not found")
		case errors.Is(err, service.ErrOrderNotOwned):
			RespondError(w, r, http.StatusForbidden, "order/forbidden", "not your order")
		case errors.Is(err, service.ErrInvalidTransition):
			RespondError(w, r, http.StatusConflict, "order/invalid-state", "order cannot be confirmed in its current state")
		default:
			RespondError(w, r, http.StatusInternalServerError, "order/confirm-failed", "could not confirm purchase")
		}
		return
	}

	RespondJSON(w, http.StatusOK, order)
}
