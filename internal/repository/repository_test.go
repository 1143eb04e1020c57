package repository

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/hansol-dev/marketpay/internal/db"
	"github.com/hansol-dev/marketpay/internal/domain"
	"github.com/hansol-dev/marketpay/internal/models"
)

func init() {
	_ = godotenv.Load("../../.env") // Load from root
}

func testStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}
	pool, err := db.Connect(context.Background(), os.Getenv("DATABASE_URL"))
	if err != nil {
		t.Fatalf("Failed to connect to DB: %v", err)
	}
	t.Cleanup(pool.Close)
	return NewStore(pool)
}

func TestCreateOrderAndPayment(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	order := &models.Order{
		ID:          uuid.New(),
		BuyerID:     uuid.New(),
		Status:      domain.OrderStatusPending,
		TotalAmount: 10_000,
	}
	if err := store.Queries().CreateOrder(ctx, order); err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	got, err := store.Queries().GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if got.TotalAmount != order.TotalAmount {
		t.Errorf("Expected total %d, got %d", order.TotalAmount, got.TotalAmount)
	}

	payment := &models.Payment{
		ID:              uuid.New(),
		OrderID:         order.ID,
		BuyerID:         order.BuyerID,
		PaymentKey:      "pk_" + order.ID.String()[:8],
		Status:          domain.PaymentStatusSuccess,
		RequestedAmount: 10_000,
		CapturedAmount:  10_000,
	}
	if err := store.Queries().CreatePayment(ctx, payment); err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}

	// A second payment for the same order must hit the unique constraint.
	dup := &models.Payment{
		ID:              uuid.New(),
		OrderID:         order.ID,
		BuyerID:         order.BuyerID,
		PaymentKey:      "pk_dup",
		Status:          domain.PaymentStatusSuccess,
		RequestedAmount: 10_000,
	}
	err = store.Queries().CreatePayment(ctx, dup)
	if !errors.Is(err, ErrUniqueViolation) {
		t.Errorf("Expected ErrUniqueViolation, got %v", err)
	}
}

func TestDepositAccountBalanceCheck(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	acc := &models.DepositAccount{
		ID:      uuid.New(),
		PartyID: uuid.New(),
		Balance: 0,
	}
	if err := store.Queries().CreateDepositAccount(ctx, acc); err != nil {
		t.Fatalf("CreateDepositAccount failed: %v", err)
	}

	// The schema rejects negative balances.
	if _, err := store.Queries().UpdateDepositBalance(ctx, acc.ID, -1); err == nil {
		t.Error("Expected negative balance to be rejected")
	}

	got, err := store.Queries().GetDepositAccountByParty(ctx, acc.PartyID)
	if err != nil {
		t.Fatalf("GetDepositAccountByParty failed: %v", err)
	}
	if got.Balance != 0 {
		t.Errorf("Expected balance 0, got %d", got.Balance)
	}
}
