package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hansol-dev/marketpay/internal/domain"
	"github.com/hansol-dev/marketpay/internal/gateway"
	"github.com/hansol-dev/marketpay/internal/models"
	"github.com/hansol-dev/marketpay/internal/repository"
)

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentNotRefundable = errors.New("payment is not refundable")
	ErrAmountMismatch       = errors.New("requested amount does not match order total")

	// ErrChargeReversed marks failures where the external charge succeeded but
	// local persistence did not, and the charge was cancelled before the error
	// was surfaced. Callers can tell the buyer no money moved.
	ErrChargeReversed = errors.New("captured charge was reversed")
)

type ConfirmPaymentRequest struct {
	OrderID    uuid.UUID `json:"order_id"`
	PaymentKey string    `json:"payment_key"`
	Amount     int64     `json:"amount"`
}

// OrderPaidEvent is the outbox payload written when a payment succeeds.
type OrderPaidEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	BuyerID       uuid.UUID `json:"buyer_id"`
	PaymentID     uuid.UUID `json:"payment_id"`
	LedgerAmount  int64     `json:"ledger_amount"`
	GatewayAmount int64     `json:"gateway_amount"`
}

// PaymentService coordinates a capture across the deposit ledger and the
// external gateway. The unique constraint on payment.order_id is the
// idempotency guard: concurrent or replayed confirmations collapse onto one
// payment row and at most one external charge.
type PaymentService struct {
	store    QueryStore
	gateway  gateway.Client
	deposits *DepositService
	outbox   *OutboxService
}

func NewPaymentService(store QueryStore, gw gateway.Client, deposits *DepositService, outbox *OutboxService) *PaymentService {
	return &PaymentService{store: store, gateway: gw, deposits: deposits, outbox: outbox}
}

// Confirm captures payment for an order. Replayed requests for an order that
// already has a payment return the existing record unchanged.
func (s *PaymentService) Confirm(ctx context.Context, req ConfirmPaymentRequest, buyerID uuid.UUID) (*models.Payment, error) {
	if existing, err := s.store.Queries().GetPaymentByOrderID(ctx, req.OrderID); err == nil {
		zap.L().Info("payment confirm replayed, returning existing record",
			zap.String("order_id", req.OrderID.String()))
		return existing, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	order, err := s.store.Queries().GetOrder(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, ErrOrderNotOwned
	}
	if order.Status != domain.OrderStatusPending {
		return nil, ErrOrderNotPayable
	}
	if req.Amount != order.TotalAmount {
		return nil, ErrAmountMismatch
	}

	balance, err := s.deposits.AvailableBalance(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	ledgerAmount, gatewayAmount := domain.SplitPayment(req.Amount, balance)

	// External capture happens before the local transaction. If anything
	// after a successful approval fails, the charge is cancelled before the
	// error is surfaced.
	var captured *gateway.Approval
	if gatewayAmount > 0 {
		captured, err = s.gateway.Approve(ctx, req.PaymentKey, req.OrderID.String(), gatewayAmount)
		if err != nil {
			zap.L().Warn("gateway approval failed",
				zap.String("order_id", req.OrderID.String()),
				zap.Error(err))
			var gwErr *gateway.Error
			if errors.As(err, &gwErr) && gwErr.PossiblyCaptured {
				// The processor may have placed the charge even though the
				// approval was unreadable. Reverse it before surfacing.
				if cancelErr := s.gateway.Cancel(ctx, req.PaymentKey, "unreadable approval response"); cancelErr != nil {
					zap.L().Error("compensating cancel failed",
						zap.String("payment_key", req.PaymentKey),
						zap.Error(cancelErr))
				} else {
					zap.L().Warn("possibly captured charge reversed",
						zap.String("payment_key", req.PaymentKey))
					return nil, fmt.Errorf("%w: %v", ErrChargeReversed, err)
				}
			}
			return nil, fmt.Errorf("gateway approval: %w", err)
		}
	}

	payment := &models.Payment{
		ID:              uuid.New(),
		OrderID:         order.ID,
		BuyerID:         buyerID,
		PaymentKey:      req.PaymentKey,
		RequestedAmount: req.Amount,
		CapturedAmount:  gatewayAmount,
		LedgerAmount:    ledgerAmount,
		Status:          domain.PaymentStatusSuccess,
	}

	var event *models.OutboxEvent
	txErr := s.store.RunInTx(ctx, func(q repository.Querier) error {
		if err := q.CreatePayment(ctx, payment); err != nil {
			return err
		}
		if ledgerAmount > 0 {
			ref := payment.ID
			if _, err := applyMutation(ctx, q, buyerID, domain.EntryTypePurchase, ledgerAmount, &ref); err != nil {
				return err
			}
		}
		if err := transitionOrderState(ctx, q, order.ID, order.Status, domain.OrderStatusPaid); err != nil {
			return err
		}
		var err error
		event, err = s.outbox.Append(ctx, q, order.ID, domain.EventTypeOrderPaid, OrderPaidEvent{
			OrderID:       order.ID,
			BuyerID:       buyerID,
			PaymentID:     payment.ID,
			LedgerAmount:  ledgerAmount,
			GatewayAmount: gatewayAmount,
		})
		return err
	})
	if txErr != nil {
		if errors.Is(txErr, repository.ErrUniqueViolation) {
			// Lost a concurrent confirm race. Our capture, if any, is now a
			// duplicate and must be reversed before we hand back the winner's
			// record.
			s.compensate(ctx, captured, "duplicate payment confirmation")
			existing, err := s.store.Queries().GetPaymentByOrderID(ctx, req.OrderID)
			if err != nil {
				return nil, err
			}
			return existing, nil
		}
		if captured != nil {
			s.compensate(ctx, captured, "payment persistence failed")
			return nil, fmt.Errorf("%w: %v", ErrChargeReversed, txErr)
		}
		return nil, txErr
	}

	s.outbox.Dispatch(ctx, event)
	zap.L().Info("payment confirmed",
		zap.String("order_id", order.ID.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.Int64("ledger_amount", ledgerAmount),
		zap.Int64("gateway_amount", gatewayAmount))
	return payment, nil
}

// Refund reverses a successful payment: the gateway portion through a cancel
// call, the ledger portion through a REFUND entry.
func (s *PaymentService) Refund(ctx context.Context, orderID, buyerID uuid.UUID) (*models.Payment, error) {
	payment, err := s.store.Queries().GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if payment.BuyerID != buyerID {
		return nil, ErrOrderNotOwned
	}
	if payment.Status != domain.PaymentStatusSuccess {
		return nil, ErrPaymentNotRefundable
	}

	// Reverse the external portion first. If the cancel fails nothing local
	// has changed and the caller can retry.
	if payment.CapturedAmount > 0 {
		if err := s.gateway.Cancel(ctx, payment.PaymentKey, "buyer refund"); err != nil {
			return nil, fmt.Errorf("gateway cancel: %w", err)
		}
	}

	err = s.store.RunInTx(ctx, func(q repository.Querier) error {
		if payment.LedgerAmount > 0 {
			ref := payment.ID
			if _, err := applyMutation(ctx, q, buyerID, domain.EntryTypeRefund, payment.LedgerAmount, &ref); err != nil {
				return err
			}
		}
		rows, err := q.UpdatePaymentStatus(ctx, payment.ID, domain.PaymentStatusRefunded, nil)
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "update payment status"); err != nil {
			return err
		}
		order, err := q.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		return transitionOrderState(ctx, q, orderID, order.Status, domain.OrderStatusRefunded)
	})
	if err != nil {
		// The external reversal already happened; surface loudly so operators
		// can reconcile the ledger side.
		zap.L().Error("refund persistence failed after gateway cancel",
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err))
		return nil, err
	}

	payment.Status = domain.PaymentStatusRefunded
	zap.L().Info("payment refunded",
		zap.String("order_id", orderID.String()),
		zap.String("payment_id", payment.ID.String()))
	return payment, nil
}

// GetByOrder returns the payment for an order.
func (s *PaymentService) GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	payment, err := s.store.Queries().GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return payment, nil
}

func (s *PaymentService) compensate(ctx context.Context, captured *gateway.Approval, reason string) {
	if captured == nil {
		return
	}
	if err := s.gateway.Cancel(ctx, captured.PaymentKey, reason); err != nil {
		// Worst case for reconciliation: money captured, cancel failed.
		zap.L().Error("compensating cancel failed",
			zap.String("payment_key", captured.PaymentKey),
			zap.String("reason", reason),
			zap.Error(err))
		return
	}
	zap.L().Warn("captured charge reversed",
		zap.String("payment_key", captured.PaymentKey),
		zap.String("reason", reason))
}
