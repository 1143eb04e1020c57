package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/hansol-dev/marketpay/internal/models"
)

const depositColumns = `id, party_id, balance, created_at, updated_at`

func (q *Queries) CreateDepositAccount(ctx context.Context, acc *models.DepositAccount) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO deposit_accounts (id, party_id, balance, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING created_at, updated_at`,
		acc.ID, acc.PartyID, acc.Balance,
	).Scan(&acc.CreatedAt, &acc.UpdatedAt)
	return wrapErr("create deposit account", err)
}

func (q *Queries) GetDepositAccountByParty(ctx context.Context, partyID uuid.UUID) (*models.DepositAccount, error) {
	return q.scanDeposit(ctx, `SELECT `+depositColumns+` FROM deposit_accounts WHERE party_id = $1`, partyID)
}

// GetDepositAccountByPartyForUpdate locks the party's account row so that
// concurrent balance arithmetic serializes.
func (q *Queries) GetDepositAccountByPartyForUpdate(ctx context.Context, partyID uuid.UUID) (*models.DepositAccount, error) {
	return q.scanDeposit(ctx, `SELECT `+depositColumns+` FROM deposit_accounts WHERE party_id = $1 FOR UPDATE`, partyID)
}

func (q *Queries) scanDeposit(ctx context.Context, sql string, partyID uuid.UUID) (*models.DepositAccount, error) {
	var acc models.DepositAccount
	err := q.db.QueryRow(ctx, sql, partyID).Scan(
		&acc.ID, &acc.PartyID, &acc.Balance, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		return nil, wrapErr("get deposit account", err)
	}
	return &acc, nil
}

func (q *Queries) UpdateDepositBalance(ctx context.Context, accountID uuid.UUID, balance int64) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE deposit_accounts SET balance = $1, updated_at = NOW() WHERE id = $2`,
		balance, accountID,
	)
	if err != nil {
		return 0, wrapErr("update deposit balance", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) CreateLedgerEntry(ctx context.Context, e *models.LedgerEntry) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO ledger_entries (id, account_id, type, amount, before_balance, after_balance, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at`,
		e.ID, e.AccountID, e.Type, e.Amount, e.BeforeBalance, e.AfterBalance, e.ReferenceID,
	).Scan(&e.CreatedAt)
	return wrapErr("create ledger entry", err)
}

func (q *Queries) ListLedgerEntries(ctx context.Context, accountID uuid.UUID, limit, offset int32) ([]models.LedgerEntry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, account_id, type, amount, before_balance, after_balance, reference_id, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, wrapErr("list ledger entries", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Type, &e.Amount, &e.BeforeBalance, &e.AfterBalance, &e.ReferenceID, &e.CreatedAt); err != nil {
			return nil, wrapErr("scan ledger entry", err)
		}
		entries = append(entries, e)
	}
	return entries, wrapErr("list ledger entries", rows.Err())
}

// HasLedgerEntry reports whether a mutation with this reference was already
// applied. Used by the deposit consumer to collapse duplicate deliveries.
func (q *Queries) HasLedgerEntry(ctx context.Context, accountID uuid.UUID, entryType string, referenceID uuid.UUID) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ledger_entries
			WHERE account_id = $1 AND type = $2 AND reference_id = $3
		)`,
		accountID, entryType, referenceID,
	).Scan(&exists)
	if err != nil {
		return false, wrapErr("has ledger entry", err)
	}
	return exists, nil
}

// ListLedgerDrift returns accounts whose cached balance no longer equals the
// signed sum of their entries.
func (q *Queries) ListLedgerDrift(ctx context.Context) ([]LedgerDrift, error) {
	rows, err := q.db.Query(ctx, `
		SELECT a.id, a.balance, COALESCE(SUM(
			CASE WHEN e.type IN ('CHARGE', 'REFUND', 'SETTLEMENT') THEN e.amount
			     WHEN e.type IN ('PURCHASE', 'WITHDRAW', 'SETTLEMENT_FAIL') THEN -e.amount
			     ELSE 0 END
		), 0) AS entry_net
		FROM deposit_accounts a
		LEFT JOIN ledger_entries e ON e.account_id = a.id
		GROUP BY a.id, a.balance
		HAVING a.balance <> COALESCE(SUM(
			CASE WHEN e.type IN ('CHARGE', 'REFUND', 'SETTLEMENT') THEN e.amount
			     WHEN e.type IN ('PURCHASE', 'WITHDRAW', 'SETTLEMENT_FAIL') THEN -e.amount
			     ELSE 0 END
		), 0)`)
	if err != nil {
		return nil, wrapErr("list ledger drift", err)
	}
	defer rows.Close()

	var drift []LedgerDrift
	for rows.Next() {
		var d LedgerDrift
		if err := rows.Scan(&d.AccountID, &d.Balance, &d.EntryNet); err != nil {
			return nil, wrapErr("scan ledger drift", err)
		}
		drift = append(drift, d)
	}
	return drift, wrapErr("list ledger drift", rows.Err())
}
