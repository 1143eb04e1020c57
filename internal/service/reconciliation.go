package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/hansol-dev/marketpay/internal/observability"
	"github.com/hansol-dev/marketpay/internal/repository"
)

// ReconciliationService cross-checks every cached deposit balance against the
// net sum of its ledger entries. Drift means a balance was mutated without its
// entry, or vice versa; it is reported, never auto-corrected.
type ReconciliationService struct {
	store QueryStore
}

func NewReconciliationService(store QueryStore) *ReconciliationService {
	return &ReconciliationService{store: store}
}

func (s *ReconciliationService) Check(ctx context.Context) ([]repository.LedgerDrift, error) {
	drift, err := s.store.Queries().ListLedgerDrift(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range drift {
		observability.IncrementLedgerImbalance()
		zap.L().Error("ledger balance drift detected",
			zap.String("account_id", d.AccountID.String()),
			zap.Int64("cached_balance", d.Balance),
			zap.Int64("entry_net", d.EntryNet))
	}
	return drift, nil
}
