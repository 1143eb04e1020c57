package models

import (
	"time"

	"github.com/google/uuid"
)

type Order struct {
	ID          uuid.UUID `json:"id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	Status      string    `json:"status"` // PENDING, PAID, FAILED, REFUNDED, CONFIRMED, SETTLED, CANCELLED
	TotalAmount int64     `json:"total_amount"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type OrderItem struct {
	ID       uuid.UUID `json:"id"`
	OrderID  uuid.UUID `json:"order_id"`
	SellerID uuid.UUID `json:"seller_id"`
	Amount   int64     `json:"amount"`
}

// Payment records the single capture attempt for an order. The unique
// constraint on OrderID collapses retried confirmations into one row.
type Payment struct {
	ID              uuid.UUID `json:"id"`
	OrderID         uuid.UUID `json:"order_id"`
	BuyerID         uuid.UUID `json:"buyer_id"`
	PaymentKey      string    `json:"payment_key"`
	RequestedAmount int64     `json:"requested_amount"`
	CapturedAmount  int64     `json:"captured_amount"` // charged via the external gateway
	LedgerAmount    int64     `json:"ledger_amount"`   // drawn from the deposit ledger
	Status          string    `json:"status"`          // PENDING, SUCCESS, FAILED, REFUNDED
	FailureReason   *string   `json:"failure_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DepositAccount holds the cached balance for a party. The balance is derived;
// the ledger entries are the source of truth.
type DepositAccount struct {
	ID        uuid.UUID `json:"id"`
	PartyID   uuid.UUID `json:"party_id"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type LedgerEntry struct {
	ID            uuid.UUID  `json:"id"`
	AccountID     uuid.UUID  `json:"account_id"`
	Type          string     `json:"type"` // CHARGE, PURCHASE, WITHDRAW, REFUND, SETTLEMENT, SETTLEMENT_FAIL
	Amount        int64      `json:"amount"`
	BeforeBalance int64      `json:"before_balance"`
	AfterBalance  int64      `json:"after_balance"`
	ReferenceID   *uuid.UUID `json:"reference_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type Settlement struct {
	ID          uuid.UUID `json:"id"`
	OrderItemID uuid.UUID `json:"order_item_id"`
	PartyID     uuid.UUID `json:"party_id"` // seller receiving the payout
	GrossAmount int64     `json:"gross_amount"`
	Fee         int64     `json:"fee"`
	NetAmount   int64     `json:"net_amount"`
	Status      string    `json:"status"` // PENDING, READY, FAILED, COMPLETED
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OutboxEvent is written in the same transaction as the state change it
// describes and marked published only after the bus acknowledged it.
type OutboxEvent struct {
	ID          uuid.UUID  `json:"id"`
	SubjectID   uuid.UUID  `json:"subject_id"`
	EventType   string     `json:"event_type"`
	Payload     []byte     `json:"payload"`
	Published   bool       `json:"published"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type Cart struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
