package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// SimulatedClient stands in for the external processor in local development.
// It approves everything after a short delay and remembers cancellations so
// compensation paths can be exercised end to end.
type SimulatedClient struct {
	// FailureRate is the probability a confirm fails with a retryable error.
	FailureRate float64

	mu        sync.Mutex
	cancelled map[string]string // paymentKey -> reason
}

func NewSimulatedClient() *SimulatedClient {
	return &SimulatedClient{
		cancelled: make(map[string]string),
	}
}

func (c *SimulatedClient) Approve(ctx context.Context, paymentKey, orderID string, amount int64) (*Approval, error) {
	delay := time.Duration(20+rand.Intn(80)) * time.Millisecond
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return nil, &Error{Code: "TRANSPORT_ERROR", Message: fmt.Sprintf("call canceled: %v", ctx.Err()), Retryable: true, Attempts: 1}
	}

	if rand.Float64() < c.FailureRate {
		return nil, &Error{Code: "PROVIDER_ERROR", Message: "simulated processor unavailable", HTTPStatus: 503, Retryable: true, Attempts: 1}
	}

	return &Approval{
		PaymentKey: paymentKey,
		OrderID:    orderID,
		Amount:     amount,
		Currency:   "KRW",
		ApprovedAt: time.Now(),
	}, nil
}

func (c *SimulatedClient) Cancel(ctx context.Context, paymentKey, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled[paymentKey] = reason
	return nil
}

// Cancelled reports whether a payment key was reversed.
func (c *SimulatedClient) Cancelled(paymentKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.cancelled[paymentKey]
	return ok
}
