package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/hansol-dev/marketpay/internal/domain"
	"github.com/hansol-dev/marketpay/internal/models"
	"github.com/hansol-dev/marketpay/internal/testutil/memstore"
)

func newOrderFixture(t *testing.T) (*OrderService, *memstore.Store, *capturePublisher) {
	t.Helper()
	store := memstore.New()
	pub := &capturePublisher{}
	outbox := NewOutboxService(store, pub)
	svc := NewOrderService(store, outbox, decimal.RequireFromString("0.05"))
	return svc, store, pub
}

func TestCreateOrderSumsItemAmounts(t *testing.T) {
	svc, store, _ := newOrderFixture(t)
	ctx := context.Background()
	buyerID := uuid.New()

	order, err := svc.Create(ctx, buyerID, []OrderItemInput{
		{SellerID: uuid.New(), Amount: 10_000},
		{SellerID: uuid.New(), Amount: 2_500},
	})
	require.NoError(t, err)
	require.Equal(t, int64(12_500), order.TotalAmount)
	require.Equal(t, domain.OrderStatusPending, order.Status)

	items, err := store.ListOrderItems(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestCreateOrderRejectsEmptyAndNonPositive(t *testing.T) {
	svc, _, _ := newOrderFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, uuid.New(), nil)
	require.ErrorIs(t, err, ErrEmptyOrder)

	_, err = svc.Create(ctx, uuid.New(), []OrderItemInput{{SellerID: uuid.New(), Amount: 0}})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestConfirmPurchaseCreatesSettlementsWithFee(t *testing.T) {
	svc, store, pub := newOrderFixture(t)
	ctx := context.Background()
	buyerID := uuid.New()
	sellerA := uuid.New()
	sellerB := uuid.New()

	order, err := svc.Create(ctx, buyerID, []OrderItemInput{
		{SellerID: sellerA, Amount: 10_000},
		{SellerID: sellerB, Amount: 333},
	})
	require.NoError(t, err)
	_, err = store.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusPaid)
	require.NoError(t, err)

	confirmed, err := svc.ConfirmPurchase(ctx, order.ID, buyerID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusConfirmed, confirmed.Status)

	items, err := store.ListOrderItems(ctx, order.ID)
	require.NoError(t, err)
	byParty := map[uuid.UUID]models.Settlement{}
	for _, item := range items {
		stls, err := store.ListSettlementsByParty(ctx, item.SellerID, 10, 0)
		require.NoError(t, err)
		require.Len(t, stls, 1)
		byParty[item.SellerID] = stls[0]
	}

	// 5% fee, rounded half up to whole currency units.
	require.Equal(t, int64(500), byParty[sellerA].Fee)
	require.Equal(t, int64(9_500), byParty[sellerA].NetAmount)
	require.Equal(t, int64(17), byParty[sellerB].Fee)
	require.Equal(t, int64(316), byParty[sellerB].NetAmount)
	for _, stl := range byParty {
		require.Equal(t, domain.SettlementStatusPending, stl.Status)
	}

	events := store.OutboxEvents()
	require.Len(t, events, 1)
	require.Equal(t, domain.EventTypePurchaseConfirmed, events[0].EventType)
	require.True(t, events[0].Published)
	require.Len(t, pub.published(), 1)
}

func TestConfirmPurchaseRequiresPaidOrder(t *testing.T) {
	svc, _, _ := newOrderFixture(t)
	ctx := context.Background()
	buyerID := uuid.New()

	order, err := svc.Create(ctx, buyerID, []OrderItemInput{{SellerID: uuid.New(), Amount: 1_000}})
	require.NoError(t, err)

	_, err = svc.ConfirmPurchase(ctx, order.ID, buyerID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestConfirmPurchaseRejectsWrongBuyer(t *testing.T) {
	svc, store, _ := newOrderFixture(t)
	ctx := context.Background()
	buyerID := uuid.New()

	order, err := svc.Create(ctx, buyerID, []OrderItemInput{{SellerID: uuid.New(), Amount: 1_000}})
	require.NoError(t, err)
	_, err = store.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusPaid)
	require.NoError(t, err)

	_, err = svc.ConfirmPurchase(ctx, order.ID, uuid.New())
	require.ErrorIs(t, err, ErrOrderNotOwned)

	got, ok := store.Order(order.ID)
	require.True(t, ok)
	require.Equal(t, domain.OrderStatusPaid, got.Status)
}
