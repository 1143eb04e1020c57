package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hansol-dev/marketpay/internal/service"
)

type SettlementHandler struct {
	svc *service.SettlementService
}

func NewSettlementHandler(svc *service.SettlementService) *SettlementHandler {
	return &SettlementHandler{svc: svc}
}

func (h *SettlementHandler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid settlement id")
		return
	}

	stl, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrSettlementNotFound) {
			RespondError(w, r, http.StatusNotFound, "settlement/not-found", "settlement not found")
			return
		}
		RespondError(w, r, http.StatusInternalServerError, "settlement/lookup-failed", "could not load settlement")
		return
	}
	if stl.PartyID != actorID && !isAdmin {
		RespondError(w, r, http.StatusForbidden, "settlement/forbidden", "not your settlement")
		return
	}

	RespondJSON(w, http.StatusOK, stl)
}

// ListMine returns the caller's settlements, paginated.
func (h *SettlementHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	limit := queryInt32(r, "limit", 100)
	offset := queryInt32(r, "offset", 0)
	settlements, err := h.svc.ListByParty(r.Context(), actorID, limit, offset)
	if err != nil {
		RespondError(w, r, http.StatusInternalServerError, "settlement/lookup-failed", "could not list settlements")
		return
	}

	RespondJSON(w, http.StatusOK, settlements)
}

// TriggerBatch runs the settlement batch immediately, optionally restricted
// to a creation-date range. Admin only.
func (h *SettlementHandler) TriggerBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From *time.Time `json:"from,omitempty"`
		To   *time.Time `json:"to,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
			return
		}
	}
	if req.From != nil && req.To != nil && req.To.Before(*req.From) {
		RespondError(w, r, http.StatusBadRequest, "settlement/invalid-range", "to must not precede from")
		return
	}

	result, err := h.svc.ProcessPending(r.Context(), req.From, req.To)
	if err != nil {
		RespondError(w, r, http.StatusInternalServerError, "settlement/batch-failed", "settlement batch failed")
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

// TriggerRecovery re-queues FAILED settlements immediately. Admin only.
func (h *SettlementHandler) TriggerRecovery(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.RecoverFailed(r.Context())
	if err != nil {
		RespondError(w, r, http.StatusInternalServerError, "settlement/recovery-failed", "settlement recovery failed")
		return
	}

	RespondJSON(w, http.StatusOK, result)
}
