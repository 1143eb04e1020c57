package handler

import (
	"net/http"

	"github.com/hansol-dev/marketpay/internal/service"
)

// AdminHandler groups operational endpoints that do not belong to a single
// business resource.
type AdminHandler struct {
	reconciliation *service.ReconciliationService
}

func NewAdminHandler(reconciliation *service.ReconciliationService) *AdminHandler {
	return &AdminHandler{reconciliation: reconciliation}
}

// RunReconciliation checks every deposit balance against its ledger entries
// and returns the drifted accounts.
func (h *AdminHandler) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	drift, err := h.reconciliation.Check(r.Context())
	if err != nil {
		RespondError(w, r, http.StatusInternalServerError, "reconciliation/failed", "reconciliation run failed")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"drifted_accounts": drift,
		"count":            len(drift),
	})
}
