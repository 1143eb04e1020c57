package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hansol-dev/marketpay/internal/models"
)

// Store-agnostic errors. Services branch on these instead of inspecting
// driver error types directly.
var (
	ErrNotFound        = errors.New("record not found")
	ErrUniqueViolation = errors.New("unique constraint violation")
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type ListSettlementsByStatusParams struct {
	Status string
	From   *time.Time
	To     *time.Time
	Limit  int32
}

// LedgerDrift reports an account whose cached balance disagrees with the
// net sum of its ledger entries.
type LedgerDrift struct {
	AccountID uuid.UUID
	Balance   int64
	EntryNet  int64
}

// Querier is the data access contract shared by the Postgres queries and the
// in-memory store used in tests.
type Querier interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status string) (int64, error)

	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPaymentByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status string, failureReason *string) (int64, error)

	CreateDepositAccount(ctx context.Context, acc *models.DepositAccount) error
	GetDepositAccountByParty(ctx context.Context, partyID uuid.UUID) (*models.DepositAccount, error)
	GetDepositAccountByPartyForUpdate(ctx context.Context, partyID uuid.UUID) (*models.DepositAccount, error)
	UpdateDepositBalance(ctx context.Context, accountID uuid.UUID, balance int64) (int64, error)
	CreateLedgerEntry(ctx context.Context, e *models.LedgerEntry) error
	ListLedgerEntries(ctx context.Context, accountID uuid.UUID, limit, offset int32) ([]models.LedgerEntry, error)
	HasLedgerEntry(ctx context.Context, accountID uuid.UUID, entryType string, referenceID uuid.UUID) (bool, error)
	ListLedgerDrift(ctx context.Context) ([]LedgerDrift, error)

	CreateSettlement(ctx context.Context, s *models.Settlement) error
	GetSettlement(ctx context.Context, id uuid.UUID) (*models.Settlement, error)
	ListSettlementsByParty(ctx context.Context, partyID uuid.UUID, limit, offset int32) ([]models.Settlement, error)
	ListSettlementsByStatus(ctx context.Context, params ListSettlementsByStatusParams) ([]models.Settlement, error)
	UpdateSettlementStatus(ctx context.Context, id uuid.UUID, status string) (int64, error)

	CreateOutboxEvent(ctx context.Context, e *models.OutboxEvent) error
	MarkOutboxEventPublished(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)
	ListUnpublishedOutboxEvents(ctx context.Context, olderThan time.Time, limit int32) ([]models.OutboxEvent, error)

	CreateCart(ctx context.Context, c *models.Cart) error
}

// wrapErr maps driver errors onto the store-agnostic sentinels.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%s: %w", op, ErrUniqueViolation)
	}
	return fmt.Errorf("%s: %w", op, err)
}
