package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hansol-dev/marketpay/internal/domain"
	"github.com/hansol-dev/marketpay/internal/observability"
	"github.com/hansol-dev/marketpay/internal/repository"
)

// ErrInvalidTransition rejects a state change the transition tables do not
// allow.
var ErrInvalidTransition = errors.New("invalid state transition")

// Order transitions are monotonic except for the explicit cancel and refund
// edges.
var orderTransitions = map[string]map[string]struct{}{
	domain.OrderStatusPending: {
		domain.OrderStatusPaid:      {},
		domain.OrderStatusFailed:    {},
		domain.OrderStatusCancelled: {},
	},
	domain.OrderStatusPaid: {
		domain.OrderStatusConfirmed: {},
		domain.OrderStatusRefunded:  {},
	},
	domain.OrderStatusConfirmed: {
		domain.OrderStatusSettled: {},
	},
	domain.OrderStatusFailed: {
		domain.OrderStatusCancelled: {},
	},
	domain.OrderStatusSettled:   {},
	domain.OrderStatusRefunded:  {},
	domain.OrderStatusCancelled: {},
}

// Settlement success path is PENDING -> READY -> COMPLETED; the retry path
// cycles FAILED back to PENDING.
var settlementTransitions = map[string]map[string]struct{}{
	domain.SettlementStatusPending: {
		domain.SettlementStatusReady:  {},
		domain.SettlementStatusFailed: {},
	},
	domain.SettlementStatusFailed: {
		domain.SettlementStatusPending: {},
	},
	domain.SettlementStatusReady: {
		domain.SettlementStatusCompleted: {},
	},
	domain.SettlementStatusCompleted: {},
}

func normalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}

func canTransition(table map[string]map[string]struct{}, current, next string) bool {
	nextStates, ok := table[normalizeState(current)]
	if !ok {
		return false
	}
	_, ok = nextStates[normalizeState(next)]
	return ok
}

func transitionOrderState(ctx context.Context, q repository.Querier, orderID uuid.UUID, current, next string) error {
	if normalizeState(current) == normalizeState(next) {
		return nil
	}
	if !canTransition(orderTransitions, current, next) {
		return fmt.Errorf("%w: order %s -> %s", ErrInvalidTransition, current, next)
	}
	rows, err := q.UpdateOrderStatus(ctx, orderID, next)
	if err != nil {
		return fmt.Errorf("update order state: %w", err)
	}
	return requireExactlyOne(rows, "update order state")
}

func transitionSettlementState(ctx context.Context, q repository.Querier, settlementID uuid.UUID, current, next string) error {
	if normalizeState(current) == normalizeState(next) {
		return nil
	}
	if !canTransition(settlementTransitions, current, next) {
		return fmt.Errorf("%w: settlement %s -> %s", ErrInvalidTransition, current, next)
	}
	rows, err := q.UpdateSettlementStatus(ctx, settlementID, next)
	if err != nil {
		return fmt.Errorf("update settlement state: %w", err)
	}
	if err := requireExactlyOne(rows, "update settlement state"); err != nil {
		return err
	}
	observability.IncrementSettlementTransition(next)
	return nil
}

func requireExactlyOne(rows int64, operation string) error {
	if rows != 1 {
		return fmt.Errorf("%s affected %d rows", operation, rows)
	}
	return nil
}
