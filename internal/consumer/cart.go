package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hansol-dev/marketpay/internal/bus"
	"github.com/hansol-dev/marketpay/internal/models"
	"github.com/hansol-dev/marketpay/internal/repository"
	"github.com/hansol-dev/marketpay/internal/service"
)

// CartCreateCommand provisions a cart for a freshly signed-up user.
type CartCreateCommand struct {
	UserID uuid.UUID `json:"user_id"`
}

// CartConsumer handles cart-create-command messages. The unique constraint on
// cart.user_id makes the handler idempotent: a redelivered command hits the
// constraint and is acknowledged as a duplicate.
type CartConsumer struct {
	store service.QueryStore
}

func NewCartConsumer(store service.QueryStore) *CartConsumer {
	return &CartConsumer{store: store}
}

func (c *CartConsumer) Handle(ctx context.Context, msg bus.Message) error {
	var cmd CartCreateCommand
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		// A payload that never parses would be redelivered forever.
		zap.L().Error("cart command payload unreadable, discarding",
			zap.String("key", msg.Key),
			zap.Error(err))
		return nil
	}
	if cmd.UserID == uuid.Nil {
		zap.L().Error("cart command missing user id, discarding", zap.String("key", msg.Key))
		return nil
	}

	cart := &models.Cart{ID: uuid.New(), UserID: cmd.UserID}
	if err := c.store.Queries().CreateCart(ctx, cart); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return fmt.Errorf("cart for user %s: %w", cmd.UserID, bus.ErrDuplicateEvent)
		}
		return err
	}

	zap.L().Info("cart provisioned",
		zap.String("cart_id", cart.ID.String()),
		zap.String("user_id", cmd.UserID.String()))
	return nil
}
