package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hansol-dev/marketpay/internal/domain"
	"github.com/hansol-dev/marketpay/internal/models"
	"github.com/hansol-dev/marketpay/internal/testutil/memstore"
)

func TestOrderTransitionTable(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{domain.OrderStatusPending, domain.OrderStatusPaid, true},
		{domain.OrderStatusPending, domain.OrderStatusCancelled, true},
		{domain.OrderStatusPaid, domain.OrderStatusConfirmed, true},
		{domain.OrderStatusPaid, domain.OrderStatusRefunded, true},
		{domain.OrderStatusConfirmed, domain.OrderStatusSettled, true},
		{domain.OrderStatusPending, domain.OrderStatusConfirmed, false},
		{domain.OrderStatusPaid, domain.OrderStatusPending, false},
		{domain.OrderStatusRefunded, domain.OrderStatusPaid, false},
		{domain.OrderStatusSettled, domain.OrderStatusRefunded, false},
	}
	for _, tc := range cases {
		require.Equalf(t, tc.ok, canTransition(orderTransitions, tc.from, tc.to),
			"order %s -> %s", tc.from, tc.to)
	}
}

func TestSettlementTransitionTable(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{domain.SettlementStatusPending, domain.SettlementStatusReady, true},
		{domain.SettlementStatusPending, domain.SettlementStatusFailed, true},
		{domain.SettlementStatusReady, domain.SettlementStatusCompleted, true},
		{domain.SettlementStatusFailed, domain.SettlementStatusPending, true},
		{domain.SettlementStatusReady, domain.SettlementStatusPending, false},
		{domain.SettlementStatusCompleted, domain.SettlementStatusPending, false},
		{domain.SettlementStatusPending, domain.SettlementStatusCompleted, false},
	}
	for _, tc := range cases {
		require.Equalf(t, tc.ok, canTransition(settlementTransitions, tc.from, tc.to),
			"settlement %s -> %s", tc.from, tc.to)
	}
}

func TestTransitionNormalizesState(t *testing.T) {
	require.True(t, canTransition(orderTransitions, " pending ", "paid"))
}

func TestSameStateTransitionIsNoOp(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	order := &models.Order{ID: uuid.New(), BuyerID: uuid.New(), Status: domain.OrderStatusPending, TotalAmount: 100}
	require.NoError(t, store.CreateOrder(ctx, order))

	require.NoError(t, transitionOrderState(ctx, store, order.ID, domain.OrderStatusPending, domain.OrderStatusPending))
	got, ok := store.Order(order.ID)
	require.True(t, ok)
	require.Equal(t, domain.OrderStatusPending, got.Status)
}

func TestInvalidTransitionIsRejected(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	order := &models.Order{ID: uuid.New(), BuyerID: uuid.New(), Status: domain.OrderStatusPending, TotalAmount: 100}
	require.NoError(t, store.CreateOrder(ctx, order))

	err := transitionOrderState(ctx, store, order.ID, order.Status, domain.OrderStatusSettled)
	require.ErrorIs(t, err, ErrInvalidTransition)
}
