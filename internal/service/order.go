package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hansol-dev/marketpay/internal/domain"
	"github.com/hansol-dev/marketpay/internal/models"
	"github.com/hansol-dev/marketpay/internal/repository"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrOrderNotOwned   = errors.New("order does not belong to requester")
	ErrEmptyOrder      = errors.New("order has no items")
	ErrOrderNotPayable = errors.New("order is not in a payable state")
)

type OrderItemInput struct {
	SellerID uuid.UUID `json:"seller_id"`
	Amount   int64     `json:"amount"`
}

// PurchaseConfirmedEvent is the outbox payload written when a buyer confirms
// receipt of an order.
type PurchaseConfirmedEvent struct {
	OrderID uuid.UUID `json:"order_id"`
	BuyerID uuid.UUID `json:"buyer_id"`
}

type OrderService struct {
	store   QueryStore
	outbox  *OutboxService
	feeRate decimal.Decimal
}

func NewOrderService(store QueryStore, outbox *OutboxService, feeRate decimal.Decimal) *OrderService {
	return &OrderService{store: store, outbox: outbox, feeRate: feeRate}
}

// Create persists a new PENDING order with its items.
func (s *OrderService) Create(ctx context.Context, buyerID uuid.UUID, items []OrderItemInput) (*models.Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}
	var total int64
	for _, item := range items {
		if item.Amount <= 0 {
			return nil, ErrInvalidAmount
		}
		total += item.Amount
	}

	order := &models.Order{
		ID:          uuid.New(),
		BuyerID:     buyerID,
		Status:      domain.OrderStatusPending,
		TotalAmount: total,
	}
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		if err := q.CreateOrder(ctx, order); err != nil {
			return err
		}
		for _, item := range items {
			oi := &models.OrderItem{
				ID:       uuid.New(),
				OrderID:  order.ID,
				SellerID: item.SellerID,
				Amount:   item.Amount,
			}
			if err := q.CreateOrderItem(ctx, oi); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.store.Queries().GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

func (s *OrderService) ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	return s.store.Queries().ListOrderItems(ctx, orderID)
}

// ConfirmPurchase moves a PAID order to CONFIRMED, creates a PENDING
// settlement per order item, and records the confirmation event in the outbox
// inside the same transaction. The event is published after commit; the relay
// sweep covers a publish failure.
func (s *OrderService) ConfirmPurchase(ctx context.Context, orderID, buyerID uuid.UUID) (*models.Order, error) {
	var (
		order *models.Order
		event *models.OutboxEvent
	)
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		var err error
		order, err = q.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		if order.BuyerID != buyerID {
			return ErrOrderNotOwned
		}
		if err := transitionOrderState(ctx, q, order.ID, order.Status, domain.OrderStatusConfirmed); err != nil {
			return err
		}
		order.Status = domain.OrderStatusConfirmed

		items, err := q.ListOrderItems(ctx, orderID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrEmptyOrder
		}
		for _, item := range items {
			fee, net := domain.SettlementAmounts(item.Amount, s.feeRate)
			stl := &models.Settlement{
				ID:          uuid.New(),
				OrderItemID: item.ID,
				PartyID:     item.SellerID,
				GrossAmount: item.Amount,
				Fee:         fee,
				NetAmount:   net,
				Status:      domain.SettlementStatusPending,
			}
			if err := q.CreateSettlement(ctx, stl); err != nil {
				return fmt.Errorf("create settlement for item %s: %w", item.ID, err)
			}
		}

		event, err = s.outbox.Append(ctx, q, order.ID, domain.EventTypePurchaseConfirmed, PurchaseConfirmedEvent{
			OrderID: order.ID,
			BuyerID: order.BuyerID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.outbox.Dispatch(ctx, event)
	zap.L().Info("purchase confirmed",
		zap.String("order_id", order.ID.String()),
		zap.String("buyer_id", buyerID.String()))
	return order, nil
}
