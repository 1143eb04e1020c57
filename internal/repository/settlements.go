package repository

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	"github.com/hansol-dev/marketpay/internal/models"
)

const settlementColumns = `id, order_item_id, party_id, gross_amount, fee, net_amount, status, created_at, updated_at`

func (q *Queries) CreateSettlement(ctx context.Context, s *models.Settlement) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO settlements (id, order_item_id, party_id, gross_amount, fee, net_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING created_at, updated_at`,
		s.ID, s.OrderItemID, s.PartyID, s.GrossAmount, s.Fee, s.NetAmount, s.Status,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	return wrapErr("create settlement", err)
}

func (q *Queries) GetSettlement(ctx context.Context, id uuid.UUID) (*models.Settlement, error) {
	row := q.db.QueryRow(ctx, `SELECT `+settlementColumns+` FROM settlements WHERE id = $1`, id)
	s, err := scanSettlementRow(row)
	if err != nil {
		return nil, wrapErr("get settlement", err)
	}
	return s, nil
}

func (q *Queries) ListSettlementsByParty(ctx context.Context, partyID uuid.UUID, limit, offset int32) ([]models.Settlement, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+settlementColumns+` FROM settlements
		WHERE party_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		partyID, limit, offset,
	)
	if err != nil {
		return nil, wrapErr("list settlements by party", err)
	}
	return collectSettlements(rows)
}

// ListSettlementsByStatus pages settlements oldest-first so the batch runner
// drains the backlog in creation order.
func (q *Queries) ListSettlementsByStatus(ctx context.Context, params ListSettlementsByStatusParams) ([]models.Settlement, error) {
	sql := `SELECT ` + settlementColumns + ` FROM settlements WHERE status = $1`
	args := []any{params.Status}
	if params.From != nil {
		args = append(args, *params.From)
		sql += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if params.To != nil {
		args = append(args, *params.To)
		sql += ` AND created_at < $` + strconv.Itoa(len(args))
	}
	args = append(args, params.Limit)
	sql += ` ORDER BY created_at ASC LIMIT $` + strconv.Itoa(len(args))

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapErr("list settlements by status", err)
	}
	return collectSettlements(rows)
}

func (q *Queries) UpdateSettlementStatus(ctx context.Context, id uuid.UUID, status string) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE settlements SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return 0, wrapErr("update settlement status", err)
	}
	return tag.RowsAffected(), nil
}

type settlementRow interface {
	Scan(dest ...any) error
}

func scanSettlementRow(row settlementRow) (*models.Settlement, error) {
	var s models.Settlement
	err := row.Scan(
		&s.ID, &s.OrderItemID, &s.PartyID, &s.GrossAmount, &s.Fee, &s.NetAmount,
		&s.Status, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func collectSettlements(rows interface {
	settlementRow
	Next() bool
	Close()
	Err() error
}) ([]models.Settlement, error) {
	defer rows.Close()
	var out []models.Settlement
	for rows.Next() {
		s, err := scanSettlementRow(rows)
		if err != nil {
			return nil, wrapErr("scan settlement", err)
		}
		out = append(out, *s)
	}
	return out, wrapErr("collect settlements", rows.Err())
}
