package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hansol-dev/marketpay/internal/models"
)

// CreateOutboxEvent appends a write-ahead event row. Callers invoke this on a
// transactional Querier so the row commits atomically with the state change.
func (q *Queries) CreateOutboxEvent(ctx context.Context, e *models.OutboxEvent) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO outbox_events (id, subject_id, event_type, payload, published, created_at)
		VALUES ($1, $2, $3, $4, FALSE, NOW())
		RETURNING created_at`,
		e.ID, e.SubjectID, e.EventType, e.Payload,
	).Scan(&e.CreatedAt)
	return wrapErr("create outbox event", err)
}

func (q *Queries) MarkOutboxEventPublished(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE outbox_events SET published = TRUE, published_at = $1
		WHERE id = $2 AND published = FALSE`,
		at, id,
	)
	if err != nil {
		return 0, wrapErr("mark outbox event published", err)
	}
	return tag.RowsAffected(), nil
}

// ListUnpublishedOutboxEvents returns events that were durably recorded but
// never confirmed published, oldest first. The grace cutoff keeps the sweep
// from racing the publish hook of a transaction that just committed.
func (q *Queries) ListUnpublishedOutboxEvents(ctx context.Context, olderThan time.Time, limit int32) ([]models.OutboxEvent, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, subject_id, event_type, payload, published, published_at, created_at
		FROM outbox_events
		WHERE published = FALSE AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`,
		olderThan, limit,
	)
	if err != nil {
		return nil, wrapErr("list unpublished outbox events", err)
	}
	defer rows.Close()

	var events []models.OutboxEvent
	for rows.Next() {
		var e models.OutboxEvent
		if err := rows.Scan(&e.ID, &e.SubjectID, &e.EventType, &e.Payload, &e.Published, &e.PublishedAt, &e.CreatedAt); err != nil {
			return nil, wrapErr("scan outbox event", err)
		}
		events = append(events, e)
	}
	return events, wrapErr("list unpublished outbox events", rows.Err())
}
