package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/hansol-dev/marketpay/internal/models"
)

// CreatePayment inserts the payment row. The unique index on order_id is the
// idempotency guard against double charges; a conflicting insert surfaces as
// ErrUniqueViolation.
func (q *Queries) CreatePayment(ctx context.Context, p *models.Payment) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO payments (id, order_id, buyer_id, payment_key, requested_amount,
			captured_amount, ledger_amount, status, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING created_at, updated_at`,
		p.ID, p.OrderID, p.BuyerID, p.PaymentKey, p.RequestedAmount,
		p.CapturedAmount, p.LedgerAmount, p.Status, p.FailureReason,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return wrapErr("create payment", err)
}

func (q *Queries) GetPaymentByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	err := q.db.QueryRow(ctx, `
		SELECT id, order_id, buyer_id, payment_key, requested_amount,
			captured_amount, ledger_amount, status, failure_reason, created_at, updated_at
		FROM payments WHERE order_id = $1`,
		orderID,
	).Scan(
		&p.ID, &p.OrderID, &p.BuyerID, &p.PaymentKey, &p.RequestedAmount,
		&p.CapturedAmount, &p.LedgerAmount, &p.Status, &p.FailureReason,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, wrapErr("get payment by order", err)
	}
	return &p, nil
}

func (q *Queries) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status string, failureReason *string) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE payments SET status = $1, failure_reason = $2, updated_at = NOW() WHERE id = $3`,
		status, failureReason, id,
	)
	if err != nil {
		return 0, wrapErr("update payment status", err)
	}
	return tag.RowsAffected(), nil
}
