package consumer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hansol-dev/marketpay/internal/bus"
	"github.com/hansol-dev/marketpay/internal/testutil/memstore"
)

func cartMessage(t *testing.T, userID uuid.UUID) bus.Message {
	t.Helper()
	payload, err := json.Marshal(CartCreateCommand{UserID: userID})
	require.NoError(t, err)
	return bus.Message{Key: userID.String(), Value: payload}
}

func TestCartConsumerCreatesCartOnce(t *testing.T) {
	store := memstore.New()
	c := NewCartConsumer(store)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, c.Handle(ctx, cartMessage(t, userID)))
	require.Equal(t, 1, store.CartCount())

	// A redelivered command hits the unique constraint and is surfaced as a
	// duplicate so the loop still commits the offset.
	err := c.Handle(ctx, cartMessage(t, userID))
	require.ErrorIs(t, err, bus.ErrDuplicateEvent)
	require.Equal(t, 1, store.CartCount())
}

func TestCartConsumerDiscardsUnreadablePayload(t *testing.T) {
	store := memstore.New()
	c := NewCartConsumer(store)

	require.NoError(t, c.Handle(context.Background(), bus.Message{Key: "k", Value: []byte("not-json")}))
	require.Zero(t, store.CartCount())
}

func TestCartConsumerDiscardsMissingUserID(t *testing.T) {
	store := memstore.New()
	c := NewCartConsumer(store)

	require.NoError(t, c.Handle(context.Background(), cartMessage(t, uuid.Nil)))
	require.Zero(t, store.CartCount())
}
