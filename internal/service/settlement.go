package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hansol-dev/marketpay/internal/bus"
	"github.com/hansol-dev/marketpay/internal/domain"
	"github.com/hansol-dev/marketpay/internal/models"
	"github.com/hansol-dev/marketpay/internal/repository"
)

var ErrSettlementNotFound = errors.New("settlement not found")

// SettlementReadyEvent tells the deposit consumer to credit a seller.
// Messages are keyed by party id so one seller's credits arrive in order.
type SettlementReadyEvent struct {
	SettlementID uuid.UUID `json:"settlement_id"`
	PartyID      uuid.UUID `json:"party_id"`
	Amount       int64     `json:"amount"`
}

// BatchResult summarizes one batch pass.
type BatchResult struct {
	Processed int `json:"processed"`
	Promoted  int `json:"promoted"`
	Failed    int `json:"failed"`
}

// SettlementService drives settlements from PENDING to READY by handing
// settlement-ready events to the bus, and recovers FAILED ones on a separate
// pass. Crediting the ledger belongs to the deposit consumer, which marks
// READY settlements COMPLETED.
type SettlementService struct {
	store     QueryStore
	publisher bus.Publisher
	batchSize int32
}

func NewSettlementService(store QueryStore, publisher bus.Publisher, batchSize int32) *SettlementService {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &SettlementService{store: store, publisher: publisher, batchSize: batchSize}
}

// ProcessPending drains the PENDING backlog one bounded page at a time,
// oldest first, until a page comes back empty. One settlement's failure marks
// that settlement FAILED and never aborts the pass.
func (s *SettlementService) ProcessPending(ctx context.Context, from, to *time.Time) (BatchResult, error) {
	var result BatchResult
	for {
		page, err := s.store.Queries().ListSettlementsByStatus(ctx, repository.ListSettlementsByStatusParams{
			Status: domain.SettlementStatusPending,
			From:   from,
			To:     to,
			Limit:  s.batchSize,
		})
		if err != nil {
			return result, fmt.Errorf("list pending settlements: %w", err)
		}
		if len(page) == 0 {
			return result, nil
		}
		stuck := 0
		for i := range page {
			result.Processed++
			if s.promote(ctx, &page[i]) {
				result.Promoted++
			} else {
				result.Failed++
				if page[i].Status == domain.SettlementStatusPending {
					stuck++
				}
			}
		}
		// Items we could neither promote nor mark FAILED would be refetched
		// forever; stop the pass instead.
		if stuck == len(page) {
			return result, errors.New("settlement batch made no progress")
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
	}
}

// RecoverFailed resets every FAILED settlement to PENDING and re-attempts the
// promotion individually. A settlement that fails again is re-marked FAILED;
// the pass keeps going.
func (s *SettlementService) RecoverFailed(ctx context.Context) (BatchResult, error) {
	var result BatchResult
	attempted := make(map[uuid.UUID]struct{})
	for {
		page, err := s.store.Queries().ListSettlementsByStatus(ctx, repository.ListSettlementsByStatusParams{
			Status: domain.SettlementStatusFailed,
			Limit:  s.batchSize,
		})
		if err != nil {
			return result, fmt.Errorf("list failed settlements: %w", err)
		}
		progressed := false
		for i := range page {
			stl := &page[i]
			// A settlement that failed again this pass comes back FAILED;
			// retrying it belongs to the next scheduled run.
			if _, seen := attempted[stl.ID]; seen {
				continue
			}
			attempted[stl.ID] = struct{}{}
			progressed = true
			result.Processed++
			if err := transitionSettlementState(ctx, s.store.Queries(), stl.ID, stl.Status, domain.SettlementStatusPending); err != nil {
				zap.L().Error("settlement recovery reset failed",
					zap.String("settlement_id", stl.ID.String()),
					zap.Error(err))
				result.Failed++
				continue
			}
			stl.Status = domain.SettlementStatusPending
			if s.promote(ctx, stl) {
				result.Promoted++
			} else {
				result.Failed++
			}
		}
		if len(page) == 0 || !progressed {
			return result, nil
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
	}
}

// promote publishes the settlement-ready event and marks the settlement READY.
// Reports false after marking the settlement FAILED.
func (s *SettlementService) promote(ctx context.Context, stl *models.Settlement) bool {
	err := s.publish(ctx, stl)
	if err == nil {
		err = transitionSettlementState(ctx, s.store.Queries(), stl.ID, stl.Status, domain.SettlementStatusReady)
	}
	if err != nil {
		zap.L().Warn("settlement promotion failed",
			zap.String("settlement_id", stl.ID.String()),
			zap.String("party_id", stl.PartyID.String()),
			zap.Error(err))
		if markErr := transitionSettlementState(ctx, s.store.Queries(), stl.ID, stl.Status, domain.SettlementStatusFailed); markErr != nil {
			zap.L().Error("could not mark settlement FAILED",
				zap.String("settlement_id", stl.ID.String()),
				zap.Error(markErr))
		} else {
			stl.Status = domain.SettlementStatusFailed
		}
		return false
	}
	stl.Status = domain.SettlementStatusReady
	return true
}

func (s *SettlementService) publish(ctx context.Context, stl *models.Settlement) error {
	payload, err := json.Marshal(SettlementReadyEvent{
		SettlementID: stl.ID,
		PartyID:      stl.PartyID,
		Amount:       stl.NetAmount,
	})
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, domain.TopicSettlementReady, stl.PartyID.String(), payload)
}

func (s *SettlementService) Get(ctx context.Context, id uuid.UUID) (*models.Settlement, error) {
	stl, err := s.store.Queries().GetSettlement(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSettlementNotFound
		}
		return nil, err
	}
	return stl, nil
}

func (s *SettlementService) ListByParty(ctx context.Context, partyID uuid.UUID, limit, offset int32) ([]models.Settlement, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.Queries().ListSettlementsByParty(ctx, partyID, limit, offset)
}
