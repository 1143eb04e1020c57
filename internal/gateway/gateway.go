package gateway

import (
	"context"
	"fmt"
	"time"
)

// Client wraps the external payment processor.
type Client interface {
	// Approve captures the given amount against a payment key issued by the
	// processor's checkout widget. Exhausted retries and terminal rejections
	// surface as *Error so callers can decide on compensation.
	Approve(ctx context.Context, paymentKey, orderID string, amount int64) (*Approval, error)

	// Cancel issues a compensating reversal for a previously approved payment.
	// It is never called by the client on its own: reversal is an orchestration
	// decision, made only when the surrounding transaction fails after approval.
	Cancel(ctx context.Context, paymentKey, reason string) error
}

// Approval is the processor's confirmation of a captured payment.
type Approval struct {
	PaymentKey string    `json:"paymentKey"`
	OrderID    string    `json:"orderId"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	ApprovedAt time.Time `json:"approvedAt"`
}

// Error is the tagged failure type for gateway calls. Retryable reports
// whether the failure was transient (5xx or transport); terminal rejections
// (4xx, validation) are not retried.
type Error struct {
	Code       string
	Message    string
	HTTPStatus int
	Retryable  bool
	Attempts   int

	// PossiblyCaptured marks failures where the processor may have placed the
	// charge anyway, such as a 2xx whose body could not be read. Callers must
	// issue a Cancel before surfacing the error.
	PossiblyCaptured bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway: %s (code=%s, status=%d, attempts=%d)", e.Message, e.Code, e.HTTPStatus, e.Attempts)
}
