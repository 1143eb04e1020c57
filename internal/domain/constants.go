package domain

const (
	// Order statuses
	OrderStatusPending   = "PENDING"
	OrderStatusPaid      = "PAID"
	OrderStatusFailed    = "FAILED"
	OrderStatusRefunded  = "REFUNDED"
	OrderStatusConfirmed = "CONFIRMED"
	OrderStatusSettled   = "SETTLED"
	OrderStatusCancelled = "CANCELLED"

	// Payment statuses
	PaymentStatusPending  = "PENDING"
	PaymentStatusSuccess  = "SUCCESS"
	PaymentStatusFailed   = "FAILED"
	PaymentStatusRefunded = "REFUNDED"

	// Settlement statuses
	SettlementStatusPending   = "PENDING"
	SettlementStatusReady     = "READY"
	SettlementStatusFailed    = "FAILED"
	SettlementStatusCompleted = "COMPLETED"

	// Ledger entry types
	EntryTypeCharge         = "CHARGE"
	EntryTypePurchase       = "PURCHASE"
	EntryTypeWithdraw       = "WITHDRAW"
	EntryTypeRefund         = "REFUND"
	EntryTypeSettlement     = "SETTLEMENT"
	EntryTypeSettlementFail = "SETTLEMENT_FAIL"
)

// Message bus topics. Keys are chosen so per-order and per-user delivery
// order is preserved within a partition.
const (
	TopicCartCreateCommand = "cart-create-command"
	TopicSettlementReady   = "settlement-ready"
	TopicOrderPaid         = "order-paid"
	TopicPurchaseConfirmed = "order-purchase-confirmed"
)

// Outbox event types mirror the topic the relay publishes them to.
const (
	EventTypeOrderPaid         = TopicOrderPaid
	EventTypePurchaseConfirmed = TopicPurchaseConfirmed
	EventTypeCartCreate        = TopicCartCreateCommand
)
