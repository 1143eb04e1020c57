package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hansol-dev/marketpay/internal/domain"
	"github.com/hansol-dev/marketpay/internal/gateway"
	"github.com/hansol-dev/marketpay/internal/models"
	"github.com/hansol-dev/marketpay/internal/repository"
	"github.com/hansol-dev/marketpay/internal/testutil/memstore"
)

type stubGateway struct {
	mu           sync.Mutex
	approveCalls int
	approveErr   error
	cancelled    map[string]string
}

func newStubGateway() *stubGateway {
	return &stubGateway{cancelled: make(map[string]string)}
}

func (g *stubGateway) Approve(ctx context.Context, paymentKey, orderID string, amount int64) (*gateway.Approval, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.approveCalls++
	if g.approveErr != nil {
		return nil, g.approveErr
	}
	return &gateway.Approval{PaymentKey: paymentKey, OrderID: orderID, Amount: amount, Currency: "KRW", ApprovedAt: time.Now()}, nil
}

func (g *stubGateway) Cancel(ctx context.Context, paymentKey, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled[paymentKey] = reason
	return nil
}

func (g *stubGateway) cancelledReason(paymentKey string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	reason, ok := g.cancelled[paymentKey]
	return reason, ok
}

type capturePublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
	errFor   func(topic, key string) error
}

type publishedMessage struct {
	Topic   string
	Key     string
	Payload []byte
}

func (p *capturePublisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.errFor != nil {
		if err := p.errFor(topic, key); err != nil {
			return err
		}
	}
	p.messages = append(p.messages, publishedMessage{Topic: topic, Key: key, Payload: payload})
	return nil
}

func (p *capturePublisher) published() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

type paymentFixture struct {
	store    *memstore.Store
	gateway  *stubGateway
	bus      *capturePublisher
	deposits *DepositService
	payments *PaymentService
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	store := memstore.New()
	gw := newStubGateway()
	pub := &capturePublisher{}
	deposits := NewDepositService(store)
	outbox := NewOutboxService(store, pub)
	payments := NewPaymentService(store, gw, deposits, outbox)
	return &paymentFixture{store: store, gateway: gw, bus: pub, deposits: deposits, payments: payments}
}

func (f *paymentFixture) createOrder(t *testing.T, buyerID uuid.UUID, total int64) *models.Order {
	t.Helper()
	order := &models.Order{ID: uuid.New(), BuyerID: buyerID, Status: domain.OrderStatusPending, TotalAmount: total}
	require.NoError(t, f.store.CreateOrder(context.Background(), order))
	return order
}

func TestConfirmSplitsLedgerAndGateway(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	buyerID := uuid.New()

	_, err := f.deposits.Charge(ctx, buyerID, 10_000)
	require.NoError(t, err)

	order := f.createOrder(t, buyerID, 10_500)

	payment, err := f.payments.Confirm(ctx, ConfirmPaymentRequest{
		OrderID:    order.ID,
		PaymentKey: "pk-split",
		Amount:     10_500,
	}, buyerID)
	require.NoError(t, err)

	require.Equal(t, domain.PaymentStatusSuccess, payment.Status)
	require.Equal(t, int64(10_000), payment.LedgerAmount)
	require.Equal(t, int64(500), payment.CapturedAmount)
	require.Equal(t, payment.RequestedAmount, payment.CapturedAmount+payment.LedgerAmount)
	require.Equal(t, 1, f.gateway.approveCalls)

	balance, err := f.deposits.AvailableBalance(ctx, buyerID)
	require.NoError(t, err)
	require.Zero(t, balance)

	stored, ok := f.store.Order(order.ID)
	require.True(t, ok)
	require.Equal(t, domain.OrderStatusPaid, stored.Status)

	events := f.store.OutboxEvents()
	require.Len(t, events, 1)
	require.Equal(t, domain.EventTypeOrderPaid, events[0].EventType)
	require.True(t, events[0].Published, "committed event should be dispatched right away")
}

func TestConfirmSkipsGatewayWhenBalanceCovers(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	buyerID := uuid.New()

	_, err := f.deposits.Charge(ctx, buyerID, 20_000)
	require.NoError(t, err)

	order := f.createOrder(t, buyerID, 10_500)

	payment, err := f.payments.Confirm(ctx, ConfirmPaymentRequest{
		OrderID:    order.ID,
		PaymentKey: "pk-ledger-only",
		Amount:     10_500,
	}, buyerID)
	require.NoError(t, err)

	require.Zero(t, f.gateway.approveCalls, "fully covered payment must not touch the gateway")
	require.Equal(t, int64(10_500), payment.LedgerAmount)
	require.Zero(t, payment.CapturedAmount)
}

func TestConfirmReplayReturnsExistingPayment(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	buyerID := uuid.New()
	order := f.createOrder(t, buyerID, 5_000)

	req := ConfirmPaymentRequest{OrderID: order.ID, PaymentKey: "pk-replay", Amount: 5_000}
	first, err := f.payments.Confirm(ctx, req, buyerID)
	require.NoError(t, err)

	second, err := f.payments.Confirm(ctx, req, buyerID)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 1, f.store.PaymentCount(), "exactly one payment row per order")
	require.Equal(t, 1, f.gateway.approveCalls, "gateway charged at most once")
}

func TestConfirmCompensatesAfterApproval(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	buyerID := uuid.New()
	order := f.createOrder(t, buyerID, 5_000)

	persistErr := errors.New("disk on fire")
	f.store.FailNext("CreatePayment", persistErr)

	_, err := f.payments.Confirm(ctx, ConfirmPaymentRequest{
		OrderID:    order.ID,
		PaymentKey: "pk-comp",
		Amount:     5_000,
	}, buyerID)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrChargeReversed)

	reason, cancelled := f.gateway.cancelledReason("pk-comp")
	require.True(t, cancelled, "approved charge must be reversed before the error surfaces")
	require.Equal(t, "payment persistence failed", reason)
	require.Zero(t, f.store.PaymentCount())
}

func TestConfirmReversesPossiblyCapturedCharge(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	buyerID := uuid.New()
	order := f.createOrder(t, buyerID, 5_000)

	f.gateway.approveErr = &gateway.Error{
		Code:             "MALFORMED_RESPONSE",
		Message:          "unexpected EOF",
		HTTPStatus:       200,
		PossiblyCaptured: true,
	}

	_, err := f.payments.Confirm(ctx, ConfirmPaymentRequest{
		OrderID:    order.ID,
		PaymentKey: "pk-malformed",
		Amount:     5_000,
	}, buyerID)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrChargeReversed)

	reason, cancelled := f.gateway.cancelledReason("pk-malformed")
	require.True(t, cancelled, "a charge the processor may have placed must be reversed before the error surfaces")
	require.Equal(t, "unreadable approval response", reason)
	require.Zero(t, f.store.PaymentCount())

	got, ok := f.store.Order(order.ID)
	require.True(t, ok)
	require.Equal(t, domain.OrderStatusPending, got.Status)
}

func TestConfirmGatewayFailureLeavesNoState(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	buyerID := uuid.New()
	order := f.createOrder(t, buyerID, 5_000)

	f.gateway.approveErr = &gateway.Error{Code: "PROVIDER_ERROR", HTTPStatus: 503, Retryable: true, Attempts: 3}

	_, err := f.payments.Confirm(ctx, ConfirmPaymentRequest{
		OrderID:    order.ID,
		PaymentKey: "pk-down",
		Amount:     5_000,
	}, buyerID)
	require.Error(t, err)

	var gwErr *gateway.Error
	require.True(t, errors.As(err, &gwErr))
	require.Zero(t, f.store.PaymentCount())
	_, cancelled := f.gateway.cancelledReason("pk-down")
	require.False(t, cancelled, "nothing was captured, nothing to reverse")

	stored, _ := f.store.Order(order.ID)
	require.Equal(t, domain.OrderStatusPending, stored.Status, "order stays payable for a retry")
}

func TestConfirmDuplicateRaceReversesLoserCharge(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	buyerID := uuid.New()
	order := f.createOrder(t, buyerID, 5_000)

	winner, err := f.payments.Confirm(ctx, ConfirmPaymentRequest{
		OrderID:    order.ID,
		PaymentKey: "pk-winner",
		Amount:     5_000,
	}, buyerID)
	require.NoError(t, err)

	// Force the loser past the fast-path check so it charges and then hits
	// the unique constraint, as a true concurrent race would.
	f.store.FailNext("GetPaymentByOrderID", repository.ErrNotFound)
	_, err = f.store.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusPending)
	require.NoError(t, err)

	loser, err := f.payments.Confirm(ctx, ConfirmPaymentRequest{
		OrderID:    order.ID,
		PaymentKey: "pk-loser",
		Amount:     5_000,
	}, buyerID)
	require.NoError(t, err)

	require.Equal(t, winner.ID, loser.ID, "loser gets the winner's record back")
	require.Equal(t, 1, f.store.PaymentCount())
	_, cancelled := f.gateway.cancelledReason("pk-loser")
	require.True(t, cancelled, "the duplicate capture must be reversed")
}

func TestRefundSplitPayment(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	buyerID := uuid.New()

	_, err := f.deposits.Charge(ctx, buyerID, 10_000)
	require.NoError(t, err)
	order := f.createOrder(t, buyerID, 10_500)

	_, err = f.payments.Confirm(ctx, ConfirmPaymentRequest{
		OrderID:    order.ID,
		PaymentKey: "pk-refund",
		Amount:     10_500,
	}, buyerID)
	require.NoError(t, err)

	refunded, err := f.payments.Refund(ctx, order.ID, buyerID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusRefunded, refunded.Status)

	_, cancelled := f.gateway.cancelledReason("pk-refund")
	require.True(t, cancelled, "gateway portion reversed through cancel")

	balance, err := f.deposits.AvailableBalance(ctx, buyerID)
	require.NoError(t, err)
	require.Equal(t, int64(10_000), balance, "ledger portion credited back")

	stored, _ := f.store.Order(order.ID)
	require.Equal(t, domain.OrderStatusRefunded, stored.Status)
}

func TestRefundRejectsNonSuccess(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	buyerID := uuid.New()
	order := f.createOrder(t, buyerID, 5_000)

	_, err := f.payments.Refund(ctx, order.ID, buyerID)
	require.ErrorIs(t, err, ErrPaymentNotFound)
}
