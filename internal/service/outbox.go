package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hansol-dev/marketpay/internal/bus"
	"github.com/hansol-dev/marketpay/internal/models"
	"github.com/hansol-dev/marketpay/internal/observability"
	"github.com/hansol-dev/marketpay/internal/repository"
)

// OutboxService implements the transactional outbox: events are appended in
// the same local transaction as the state change they describe, published
// after commit, and swept periodically when a publish never happened.
type OutboxService struct {
	store     QueryStore
	publisher bus.Publisher
}

func NewOutboxService(store QueryStore, publisher bus.Publisher) *OutboxService {
	return &OutboxService{store: store, publisher: publisher}
}

// Append writes a write-ahead event row through the given transactional
// querier. The caller passes the returned event to Dispatch once the
// surrounding transaction commits.
func (s *OutboxService) Append(ctx context.Context, qtx repository.Querier, subjectID uuid.UUID, eventType string, payload any) (*models.OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal outbox payload: %w", err)
	}

	event := &models.OutboxEvent{
		ID:        uuid.New(),
		SubjectID: subjectID,
		EventType: eventType,
		Payload:   raw,
	}
	if err := qtx.CreateOutboxEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("append outbox event: %w", err)
	}
	observability.IncrementOutboxEvent("appended")
	return event, nil
}

// Dispatch publishes committed events and marks them published. A failed
// publish is logged and left for the sweep; the business transaction has
// already committed, so the error is not surfaced to the caller.
func (s *OutboxService) Dispatch(ctx context.Context, events ...*models.OutboxEvent) {
	for _, event := range events {
		if event == nil {
			continue
		}
		if err := s.publishAndMark(ctx, event); err != nil {
			zap.L().Warn("outbox dispatch failed, leaving for sweep",
				zap.String("event_id", event.ID.String()),
				zap.String("event_type", event.EventType),
				zap.Error(err),
			)
		}
	}
}

// Sweep republishes events that were durably recorded but never confirmed
// published. Only rows older than the grace period are touched so the sweep
// does not race a dispatch that is still in flight.
func (s *OutboxService) Sweep(ctx context.Context, grace time.Duration, limit int32) (int, error) {
	cutoff := time.Now().Add(-grace)
	events, err := s.store.Queries().ListUnpublishedOutboxEvents(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("load unpublished outbox events: %w", err)
	}

	published := 0
	for _, event := range events {
		event := event
		if err := s.publishAndMark(ctx, &event); err != nil {
			zap.L().Warn("outbox sweep publish failed",
				zap.String("event_id", event.ID.String()),
				zap.String("event_type", event.EventType),
				zap.Error(err),
			)
			continue
		}
		observability.IncrementOutboxEvent("swept")
		published++
	}
	return published, nil
}

func (s *OutboxService) publishAndMark(ctx context.Context, event *models.OutboxEvent) error {
	if err := s.publisher.Publish(ctx, event.EventType, event.SubjectID.String(), event.Payload); err != nil {
		return err
	}

	rows, err := s.store.Queries().MarkOutboxEventPublished(ctx, event.ID, time.Now())
	if err != nil {
		return fmt.Errorf("mark outbox event published: %w", err)
	}
	// rows == 0 means another publisher won the race; the event went out at
	// least once either way.
	if rows == 1 {
		observability.IncrementOutboxEvent("published")
	}
	return nil
}
