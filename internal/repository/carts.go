package repository

import (
	"context"

	"github.com/hansol-dev/marketpay/internal/models"
)

// CreateCart provisions a cart for a user. The unique index on user_id makes
// redelivered cart-create commands surface as ErrUniqueViolation.
func (q *Queries) CreateCart(ctx context.Context, c *models.Cart) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO carts (id, user_id, created_at)
		VALUES ($1, $2, NOW())
		RETURNING created_at`,
		c.ID, c.UserID,
	).Scan(&c.CreatedAt)
	return wrapErr("create cart", err)
}
