package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hansol-dev/marketpay/internal/bus"
	"github.com/hansol-dev/marketpay/internal/domain"
	"github.com/hansol-dev/marketpay/internal/observability"
	"github.com/hansol-dev/marketpay/internal/repository"
	"github.com/hansol-dev/marketpay/internal/service"
)

// DepositConsumer handles settlement-ready messages: credit the seller's
// ledger once, then mark the settlement COMPLETED. The SETTLEMENT ledger
// entry referencing the settlement id is the dedupe record; a redelivery
// finds it and only re-attempts the status flip.
type DepositConsumer struct {
	store    service.QueryStore
	deposits *service.DepositService
}

func NewDepositConsumer(store service.QueryStore, deposits *service.DepositService) *DepositConsumer {
	return &DepositConsumer{store: store, deposits: deposits}
}

func (c *DepositConsumer) Handle(ctx context.Context, msg bus.Message) error {
	var event service.SettlementReadyEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		zap.L().Error("settlement-ready payload unreadable, discarding",
			zap.String("key", msg.Key),
			zap.Error(err))
		return nil
	}
	if event.SettlementID == uuid.Nil || event.PartyID == uuid.Nil || event.Amount <= 0 {
		zap.L().Error("settlement-ready payload invalid, discarding",
			zap.String("key", msg.Key),
			zap.ByteString("payload", msg.Value))
		return nil
	}

	duplicate := false
	err := c.deposits.CreditSettlement(ctx, event.PartyID, event.Amount, event.SettlementID)
	if err != nil {
		if !errors.Is(err, service.ErrDuplicateCredit) {
			return fmt.Errorf("credit settlement %s: %w", event.SettlementID, err)
		}
		duplicate = true
	}

	if err := c.complete(ctx, event.SettlementID); err != nil {
		return err
	}
	if duplicate {
		return fmt.Errorf("settlement %s: %w", event.SettlementID, bus.ErrDuplicateEvent)
	}
	zap.L().Info("settlement credited",
		zap.String("settlement_id", event.SettlementID.String()),
		zap.String("party_id", event.PartyID.String()),
		zap.Int64("amount", event.Amount))
	return nil
}

func (c *DepositConsumer) complete(ctx context.Context, settlementID uuid.UUID) error {
	q := c.store.Queries()
	stl, err := q.GetSettlement(ctx, settlementID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// The credit is recorded; a missing settlement row is an
			// operational problem, not a reason to redeliver.
			zap.L().Error("credited settlement row missing",
				zap.String("settlement_id", settlementID.String()))
			return nil
		}
		return err
	}
	if stl.Status == domain.SettlementStatusCompleted {
		return nil
	}
	rows, err := q.UpdateSettlementStatus(ctx, settlementID, domain.SettlementStatusCompleted)
	if err != nil {
		return err
	}
	if rows == 0 {
		zap.L().Warn("settlement already completed by a concurrent delivery",
			zap.String("settlement_id", settlementID.String()))
		return nil
	}
	observability.IncrementSettlementTransition(domain.SettlementStatusCompleted)
	return nil
}
