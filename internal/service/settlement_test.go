package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hansol-dev/marketpay/internal/domain"
	"github.com/hansol-dev/marketpay/internal/models"
	"github.com/hansol-dev/marketpay/internal/testutil/memstore"
)

func seedSettlement(t *testing.T, store *memstore.Store, partyID uuid.UUID, net int64, status string) *models.Settlement {
	t.Helper()
	stl := &models.Settlement{
		ID:          uuid.New(),
		OrderItemID: uuid.New(),
		PartyID:     partyID,
		GrossAmount: net + net/19, // gross is informational here
		Fee:         net / 19,
		NetAmount:   net,
		Status:      status,
	}
	require.NoError(t, store.CreateSettlement(context.Background(), stl))
	return stl
}

func TestProcessPendingPromotesPage(t *testing.T) {
	store := memstore.New()
	pub := &capturePublisher{}
	svc := NewSettlementService(store, pub, 10)
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 25; i++ {
		stl := seedSettlement(t, store, uuid.New(), 9_500, domain.SettlementStatusPending)
		ids = append(ids, stl.ID)
	}

	result, err := svc.ProcessPending(ctx, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 25, result.Processed)
	require.Equal(t, 25, result.Promoted)
	require.Zero(t, result.Failed)

	for _, id := range ids {
		stl, ok := store.Settlement(id)
		require.True(t, ok)
		require.Equal(t, domain.SettlementStatusReady, stl.Status)
	}
	require.Len(t, pub.published(), 25)
}

func TestProcessPendingIsolatesFailures(t *testing.T) {
	store := memstore.New()
	poisonedParty := uuid.New()
	pub := &capturePublisher{errFor: func(topic, key string) error {
		if key == poisonedParty.String() {
			return errors.New("broker rejected message")
		}
		return nil
	}}
	svc := NewSettlementService(store, pub, 100)
	ctx := context.Background()

	var ids []uuid.UUID
	var poisonedID uuid.UUID
	for i := 0; i < 100; i++ {
		party := uuid.New()
		if i == 49 {
			party = poisonedParty
		}
		stl := seedSettlement(t, store, party, 9_500, domain.SettlementStatusPending)
		ids = append(ids, stl.ID)
		if i == 49 {
			poisonedID = stl.ID
		}
	}

	result, err := svc.ProcessPending(ctx, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 100, result.Processed)
	require.Equal(t, 99, result.Promoted)
	require.Equal(t, 1, result.Failed)

	for _, id := range ids {
		stl, _ := store.Settlement(id)
		if id == poisonedID {
			require.Equal(t, domain.SettlementStatusFailed, stl.Status)
			continue
		}
		require.Equal(t, domain.SettlementStatusReady, stl.Status)
	}
}

func TestRecoverFailedRetriesOnlyFailed(t *testing.T) {
	store := memstore.New()
	pub := &capturePublisher{}
	svc := NewSettlementService(store, pub, 10)
	ctx := context.Background()

	failed := seedSettlement(t, store, uuid.New(), 9_500, domain.SettlementStatusFailed)
	ready := seedSettlement(t, store, uuid.New(), 4_750, domain.SettlementStatusReady)
	completed := seedSettlement(t, store, uuid.New(), 1_900, domain.SettlementStatusCompleted)

	result, err := svc.RecoverFailed(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.Equal(t, 1, result.Promoted)

	stl, _ := store.Settlement(failed.ID)
	require.Equal(t, domain.SettlementStatusReady, stl.Status)

	stl, _ = store.Settlement(ready.ID)
	require.Equal(t, domain.SettlementStatusReady, stl.Status, "READY settlements are untouched")
	stl, _ = store.Settlement(completed.ID)
	require.Equal(t, domain.SettlementStatusCompleted, stl.Status)

	require.Len(t, pub.published(), 1)
}

func TestRecoverFailedReMarksFailures(t *testing.T) {
	store := memstore.New()
	pub := &capturePublisher{errFor: func(topic, key string) error {
		return errors.New("broker still down")
	}}
	svc := NewSettlementService(store, pub, 10)
	ctx := context.Background()

	stl := seedSettlement(t, store, uuid.New(), 9_500, domain.SettlementStatusFailed)

	result, err := svc.RecoverFailed(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.Equal(t, 1, result.Failed)

	stored, _ := store.Settlement(stl.ID)
	require.Equal(t, domain.SettlementStatusFailed, stored.Status, "a failed retry goes back to FAILED, not stuck PENDING")
}

func TestProcessPendingPublishesSettlementReady(t *testing.T) {
	store := memstore.New()
	pub := &capturePublisher{}
	svc := NewSettlementService(store, pub, 10)
	ctx := context.Background()

	partyID := uuid.New()
	stl := seedSettlement(t, store, partyID, 9_500, domain.SettlementStatusPending)

	_, err := svc.ProcessPending(ctx, nil, nil)
	require.NoError(t, err)

	msgs := pub.published()
	require.Len(t, msgs, 1)
	require.Equal(t, domain.TopicSettlementReady, msgs[0].Topic)
	require.Equal(t, partyID.String(), msgs[0].Key, "keyed by party for per-seller ordering")

	var event SettlementReadyEvent
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &event))
	require.Equal(t, stl.ID, event.SettlementID)
	require.Equal(t, partyID, event.PartyID)
	require.Equal(t, int64(9_500), event.Amount)
}

func TestProcessPendingWindowExcludesUpperBound(t *testing.T) {
	store := memstore.New()
	pub := &capturePublisher{}
	svc := NewSettlementService(store, pub, 10)
	ctx := context.Background()

	early := seedSettlement(t, store, uuid.New(), 1_000, domain.SettlementStatusPending)
	late := seedSettlement(t, store, uuid.New(), 2_000, domain.SettlementStatusPending)

	lateRow, ok := store.Settlement(late.ID)
	require.True(t, ok)

	// The window is half-open: a settlement created exactly at the upper
	// bound stays out of this pass.
	to := lateRow.CreatedAt
	result, err := svc.ProcessPending(ctx, nil, &to)
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.Equal(t, 1, result.Promoted)

	earlyRow, ok := store.Settlement(early.ID)
	require.True(t, ok)
	require.Equal(t, domain.SettlementStatusReady, earlyRow.Status)

	lateRow, ok = store.Settlement(late.ID)
	require.True(t, ok)
	require.Equal(t, domain.SettlementStatusPending, lateRow.Status)
}
