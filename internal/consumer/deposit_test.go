package consumer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hansol-dev/marketpay/internal/bus"
	"github.com/hansol-dev/marketpay/internal/domain"
	"github.com/hansol-dev/marketpay/internal/models"
	"github.com/hansol-dev/marketpay/internal/service"
	"github.com/hansol-dev/marketpay/internal/testutil/memstore"
)

func seedReadySettlement(t *testing.T, store *memstore.Store, partyID uuid.UUID, net int64) *models.Settlement {
	t.Helper()
	ctx := context.Background()
	stl := &models.Settlement{
		ID:          uuid.New(),
		OrderItemID: uuid.New(),
		PartyID:     partyID,
		GrossAmount: net + 500,
		Fee:         500,
		NetAmount:   net,
		Status:      domain.SettlementStatusPending,
	}
	require.NoError(t, store.CreateSettlement(ctx, stl))
	_, err := store.UpdateSettlementStatus(ctx, stl.ID, domain.SettlementStatusReady)
	require.NoError(t, err)
	stl.Status = domain.SettlementStatusReady
	return stl
}

func readyMessage(t *testing.T, stl *models.Settlement) bus.Message {
	t.Helper()
	payload, err := json.Marshal(service.SettlementReadyEvent{
		SettlementID: stl.ID,
		PartyID:      stl.PartyID,
		Amount:       stl.NetAmount,
	})
	require.NoError(t, err)
	return bus.Message{Key: stl.PartyID.String(), Value: payload}
}

func TestDepositConsumerCreditsAndCompletes(t *testing.T) {
	store := memstore.New()
	deposits := service.NewDepositService(store)
	c := NewDepositConsumer(store, deposits)
	ctx := context.Background()
	partyID := uuid.New()
	stl := seedReadySettlement(t, store, partyID, 9_500)

	require.NoError(t, c.Handle(ctx, readyMessage(t, stl)))

	balance, err := deposits.AvailableBalance(ctx, partyID)
	require.NoError(t, err)
	require.Equal(t, int64(9_500), balance)

	got, ok := store.Settlement(stl.ID)
	require.True(t, ok)
	require.Equal(t, domain.SettlementStatusCompleted, got.Status)
}

func TestDepositConsumerRedeliveryCreditsOnce(t *testing.T) {
	store := memstore.New()
	deposits := service.NewDepositService(store)
	c := NewDepositConsumer(store, deposits)
	ctx := context.Background()
	partyID := uuid.New()
	stl := seedReadySettlement(t, store, partyID, 9_500)
	msg := readyMessage(t, stl)

	require.NoError(t, c.Handle(ctx, msg))

	err := c.Handle(ctx, msg)
	require.ErrorIs(t, err, bus.ErrDuplicateEvent)

	balance, err := deposits.AvailableBalance(ctx, partyID)
	require.NoError(t, err)
	require.Equal(t, int64(9_500), balance)

	acc, err := deposits.GetAccount(ctx, partyID)
	require.NoError(t, err)
	require.Len(t, store.LedgerEntries(acc.ID), 1)
}

func TestDepositConsumerCompletesAfterPartialFailure(t *testing.T) {
	store := memstore.New()
	deposits := service.NewDepositService(store)
	c := NewDepositConsumer(store, deposits)
	ctx := context.Background()
	partyID := uuid.New()
	stl := seedReadySettlement(t, store, partyID, 1_000)
	msg := readyMessage(t, stl)

	// The credit lands but the status flip fails; the message is not acked
	// and comes back.
	store.FailNext("UpdateSettlementStatus", context.DeadlineExceeded)
	require.Error(t, c.Handle(ctx, msg))
	got, ok := store.Settlement(stl.ID)
	require.True(t, ok)
	require.Equal(t, domain.SettlementStatusReady, got.Status)

	// The redelivery skips the credit and finishes the status flip.
	err := c.Handle(ctx, msg)
	require.ErrorIs(t, err, bus.ErrDuplicateEvent)

	got, ok = store.Settlement(stl.ID)
	require.True(t, ok)
	require.Equal(t, domain.SettlementStatusCompleted, got.Status)

	balance, err := deposits.AvailableBalance(ctx, partyID)
	require.NoError(t, err)
	require.Equal(t, int64(1_000), balance)
}

func TestDepositConsumerDiscardsInvalidPayloads(t *testing.T) {
	store := memstore.New()
	c := NewDepositConsumer(store, service.NewDepositService(store))
	ctx := context.Background()

	require.NoError(t, c.Handle(ctx, bus.Message{Key: "k", Value: []byte("{broken")}))

	payload, err := json.Marshal(service.SettlementReadyEvent{
		SettlementID: uuid.New(),
		PartyID:      uuid.New(),
		Amount:       0,
	})
	require.NoError(t, err)
	require.NoError(t, c.Handle(ctx, bus.Message{Key: "k", Value: payload}))
}
