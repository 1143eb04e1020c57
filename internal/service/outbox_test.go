package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hansol-dev/marketpay/internal/domain"
	"github.com/hansol-dev/marketpay/internal/testutil/memstore"
)

func TestOutboxDispatchMarksPublished(t *testing.T) {
	store := memstore.New()
	pub := &capturePublisher{}
	svc := NewOutboxService(store, pub)
	ctx := context.Background()

	event, err := svc.Append(ctx, store.Queries(), uuid.New(), domain.EventTypeOrderPaid, map[string]string{"hello": "world"})
	require.NoError(t, err)

	svc.Dispatch(ctx, event)

	events := store.OutboxEvents()
	require.Len(t, events, 1)
	require.True(t, events[0].Published)
	require.NotNil(t, events[0].PublishedAt)
	require.Len(t, pub.published(), 1)
}

func TestOutboxSweepRepublishesStuckEvents(t *testing.T) {
	store := memstore.New()
	pub := &capturePublisher{errFor: func(topic, key string) error {
		return errors.New("broker down")
	}}
	svc := NewOutboxService(store, pub)
	ctx := context.Background()

	event, err := svc.Append(ctx, store.Queries(), uuid.New(), domain.EventTypeOrderPaid, map[string]string{"k": "v"})
	require.NoError(t, err)

	// The immediate dispatch fails; the row stays unpublished.
	svc.Dispatch(ctx, event)
	require.False(t, store.OutboxEvents()[0].Published)

	// Broker comes back, the row ages past the grace period, sweep picks
	// it up.
	pub.errFor = nil
	store.BackdateOutbox(5 * time.Minute)

	republished, err := svc.Sweep(ctx, time.Minute, 100)
	require.NoError(t, err)
	require.Equal(t, 1, republished)
	require.True(t, store.OutboxEvents()[0].Published)
	require.Len(t, pub.published(), 1)
}

func TestOutboxSweepSkipsFreshAndPublishedEvents(t *testing.T) {
	store := memstore.New()
	pub := &capturePublisher{}
	svc := NewOutboxService(store, pub)
	ctx := context.Background()

	dispatched, err := svc.Append(ctx, store.Queries(), uuid.New(), domain.EventTypeOrderPaid, map[string]string{"n": "1"})
	require.NoError(t, err)
	svc.Dispatch(ctx, dispatched)

	_, err = svc.Append(ctx, store.Queries(), uuid.New(), domain.EventTypePurchaseConfirmed, map[string]string{"n": "2"})
	require.NoError(t, err)

	// The second event is unpublished but younger than the grace period.
	republished, err := svc.Sweep(ctx, time.Minute, 100)
	require.NoError(t, err)
	require.Zero(t, republished)
	require.Len(t, pub.published(), 1, "an already-published event is never sent twice by the normal path")
}
