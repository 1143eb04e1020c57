package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/hansol-dev/marketpay/internal/models"
)

func (q *Queries) CreateOrder(ctx context.Context, o *models.Order) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO orders (id, buyer_id, status, total_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING created_at, updated_at`,
		o.ID, o.BuyerID, o.Status, o.TotalAmount,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	return wrapErr("create order", err)
}

func (q *Queries) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO order_items (id, order_id, seller_id, amount)
		VALUES ($1, $2, $3, $4)`,
		item.ID, item.OrderID, item.SellerID, item.Amount,
	)
	return wrapErr("create order item", err)
}

const orderColumns = `id, buyer_id, status, total_amount, created_at, updated_at`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return q.scanOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return q.scanOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (q *Queries) scanOrder(ctx context.Context, sql string, id uuid.UUID) (*models.Order, error) {
	var o models.Order
	err := q.db.QueryRow(ctx, sql, id).Scan(
		&o.ID, &o.BuyerID, &o.Status, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, wrapErr("get order", err)
	}
	return &o, nil
}

func (q *Queries) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, order_id, seller_id, amount
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, wrapErr("list order items", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.SellerID, &it.Amount); err != nil {
			return nil, wrapErr("scan order item", err)
		}
		items = append(items, it)
	}
	return items, wrapErr("list order items", rows.Err())
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status string) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return 0, wrapErr("update order status", err)
	}
	return tag.RowsAffected(), nil
}
