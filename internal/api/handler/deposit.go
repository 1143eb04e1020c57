package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hansol-dev/marketpay/internal/models"
	"github.com/hansol-dev/marketpay/internal/service"
)

type DepositHandler struct {
	svc *service.DepositService
}

func NewDepositHandler(svc *service.DepositService) *DepositHandler {
	return &DepositHandler{svc: svc}
}

func (h *DepositHandler) Charge(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	entry, err := h.svc.Charge(r.Context(), actorID, req.Amount)
	if err != nil {
		if errors.Is(err, service.ErrInvalidAmount) {
			RespondError(w, r, http.StatusBadRequest, "deposit/invalid-amount", "amount must be positive")
			return
		}
		RespondError(w, r, http.StatusInternalServerError, "deposit/charge-failed", "could not charge deposit")
		return
	}

	RespondJSON(w, http.StatusCreated, entry)
}

func (h *DepositHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	entry, err := h.svc.Withdraw(r.Context(), actorID, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount):
			RespondError(w, r, http.StatusBadRequest, "deposit/invalid-amount", "amount must be positive")
		case errors.Is(err, models.ErrInsufficientBalance):
			RespondError(w, r, http.StatusBadRequest, "deposit/insufficient-balance", "insufficient balance")
		case errors.Is(err, service.ErrDepositAccountNotFound):
			RespondError(w, r, http.StatusNotFound, "deposit/not-found", "deposit account not found")
		default:
			RespondError(w, r, http.StatusInternalServerError, "deposit/withdraw-failed", "could not withdraw")
		}
		return
	}

	RespondJSON(w, http.StatusCreated, entry)
}

func (h *DepositHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	balance, err := h.svc.AvailableBalance(r.Context(), actorID)
	if err != nil {
		RespondError(w, r, http.StatusInternalServerError, "deposit/lookup-failed", "could not load balance")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

// GetStatement returns the ledger history for the caller's deposit account.
func (h *DepositHandler) GetStatement(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	limit := queryInt32(r, "limit", 100)
	offset := queryInt32(r, "offset", 0)
	entries, err := h.svc.ListEntries(r.Context(), actorID, limit, offset)
	if err != nil {
		if errors.Is(err, service.ErrDepositAccountNotFound) {
			RespondError(w, r, http.StatusNotFound, "deposit/not-found", "deposit account not found")
			return
		}
		RespondError(w, r, http.StatusInternalServerError, "deposit/lookup-failed", "could not load statement")
		return
	}

	RespondJSON(w, http.StatusOK, entries)
}
