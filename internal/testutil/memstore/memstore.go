// Package memstore provides an in-memory Querier for unit tests that should
// not need a live database. It mirrors the Postgres layer's behavior where
// the services depend on it: unique constraints report
// repository.ErrUniqueViolation and missing rows report repository.ErrNotFound.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hansol-dev/marketpay/internal/models"
	"github.com/hansol-dev/marketpay/internal/repository"
)

// Store keeps all records behind one mutex. Transactions are not rolled back:
// tests that need a mid-transaction failure inject one with FailNext before
// any writes happen.
type Store struct {
	mu sync.Mutex

	orders      map[uuid.UUID]models.Order
	orderItems  []models.OrderItem
	payments    map[uuid.UUID]models.Payment
	accounts    map[uuid.UUID]models.DepositAccount
	entries     []models.LedgerEntry
	settlements map[uuid.UUID]models.Settlement
	outbox      map[uuid.UUID]models.OutboxEvent
	carts       map[uuid.UUID]models.Cart

	failures map[string]error
	clock    time.Time
}

func New() *Store {
	return &Store{
		orders:      make(map[uuid.UUID]models.Order),
		payments:    make(map[uuid.UUID]models.Payment),
		accounts:    make(map[uuid.UUID]models.DepositAccount),
		settlements: make(map[uuid.UUID]models.Settlement),
		outbox:      make(map[uuid.UUID]models.OutboxEvent),
		carts:       make(map[uuid.UUID]models.Cart),
		failures:    make(map[string]error),
		clock:       time.Now(),
	}
}

// FailNext makes the named Querier method return err on its next call.
func (s *Store) FailNext(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = err
}

func (s *Store) fail(method string) error {
	if err, ok := s.failures[method]; ok {
		delete(s.failures, method)
		return err
	}
	return nil
}

// tick hands out strictly increasing timestamps so creation-order queries are
// deterministic.
func (s *Store) tick() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

// Queries satisfies service.QueryStore.
func (s *Store) Queries() repository.Querier { return s }

// RunInTx satisfies service.QueryStore. The callback runs against the same
// store; a returned error is propagated but already-applied writes stay.
func (s *Store) RunInTx(ctx context.Context, fn func(q repository.Querier) error) error {
	return fn(s)
}

// --- orders ---

func (s *Store) CreateOrder(ctx context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateOrder"); err != nil {
		return err
	}
	now := s.tick()
	o.CreatedAt, o.UpdatedAt = now, now
	s.orders[o.ID] = *o
	return nil
}

func (s *Store) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateOrderItem"); err != nil {
		return err
	}
	s.orderItems = append(s.orderItems, *item)
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetOrder"); err != nil {
		return nil, err
	}
	o, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &o, nil
}

func (s *Store) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.GetOrder(ctx, id)
}

func (s *Store) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListOrderItems"); err != nil {
		return nil, err
	}
	var out []models.OrderItem
	for _, item := range s.orderItems {
		if item.OrderID == orderID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateOrderStatus"); err != nil {
		return 0, err
	}
	o, ok := s.orders[id]
	if !ok {
		return 0, nil
	}
	o.Status = status
	o.UpdatedAt = s.tick()
	s.orders[id] = o
	return 1, nil
}

// --- payments ---

func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreatePayment"); err != nil {
		return err
	}
	for _, existing := range s.payments {
		if existing.OrderID == p.OrderID {
			return fmt.Errorf("payments.order_id: %w", repository.ErrUniqueViolation)
		}
	}
	now := s.tick()
	p.CreatedAt, p.UpdatedAt = now, now
	s.payments[p.ID] = *p
	return nil
}

func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetPaymentByOrderID"); err != nil {
		return nil, err
	}
	for _, p := range s.payments {
		if p.OrderID == orderID {
			found := p
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status string, failureReason *string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdatePaymentStatus"); err != nil {
		return 0, err
	}
	p, ok := s.payments[id]
	if !ok {
		return 0, nil
	}
	p.Status = status
	p.FailureReason = failureReason
	p.UpdatedAt = s.tick()
	s.payments[id] = p
	return 1, nil
}

// --- deposits and ledger ---

func (s *Store) CreateDepositAccount(ctx context.Context, acc *models.DepositAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateDepositAccount"); err != nil {
		return err
	}
	for _, existing := range s.accounts {
		if existing.PartyID == acc.PartyID {
			return fmt.Errorf("deposit_accounts.party_id: %w", repository.ErrUniqueViolation)
		}
	}
	now := s.tick()
	acc.CreatedAt, acc.UpdatedAt = now, now
	s.accounts[acc.ID] = *acc
	return nil
}

func (s *Store) GetDepositAccountByParty(ctx context.Context, partyID uuid.UUID) (*models.DepositAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetDepositAccountByParty"); err != nil {
		return nil, err
	}
	return s.accountByPartyLocked(partyID)
}

func (s *Store) GetDepositAccountByPartyForUpdate(ctx context.Context, partyID uuid.UUID) (*models.DepositAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetDepositAccountByPartyForUpdate"); err != nil {
		return nil, err
	}
	return s.accountByPartyLocked(partyID)
}

func (s *Store) accountByPartyLocked(partyID uuid.UUID) (*models.DepositAccount, error) {
	for _, acc := range s.accounts {
		if acc.PartyID == partyID {
			found := acc
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) UpdateDepositBalance(ctx context.Context, accountID uuid.UUID, balance int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateDepositBalance"); err != nil {
		return 0, err
	}
	acc, ok := s.accounts[accountID]
	if !ok {
		return 0, nil
	}
	acc.Balance = balance
	acc.UpdatedAt = s.tick()
	s.accounts[accountID] = acc
	return 1, nil
}

func (s *Store) CreateLedgerEntry(ctx context.Context, e *models.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateLedgerEntry"); err != nil {
		return err
	}
	e.CreatedAt = s.tick()
	s.entries = append(s.entries, *e)
	return nil
}

func (s *Store) ListLedgerEntries(ctx context.Context, accountID uuid.UUID, limit, offset int32) ([]models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListLedgerEntries"); err != nil {
		return nil, err
	}
	var out []models.LedgerEntry
	for _, e := range s.entries {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, limit, offset), nil
}

func (s *Store) HasLedgerEntry(ctx context.Context, accountID uuid.UUID, entryType string, referenceID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("HasLedgerEntry"); err != nil {
		return false, err
	}
	for _, e := range s.entries {
		if e.AccountID == accountID && e.Type == entryType && e.ReferenceID != nil && *e.ReferenceID == referenceID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListLedgerDrift(ctx context.Context) ([]repository.LedgerDrift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListLedgerDrift"); err != nil {
		return nil, err
	}
	nets := make(map[uuid.UUID]int64)
	for _, e := range s.entries {
		switch e.Type {
		case "CHARGE", "REFUND", "SETTLEMENT":
			nets[e.AccountID] += e.Amount
		case "PURCHASE", "WITHDRAW", "SETTLEMENT_FAIL":
			nets[e.AccountID] -= e.Amount
		}
	}
	var drift []repository.LedgerDrift
	for id, acc := range s.accounts {
		if acc.Balance != nets[id] {
			drift = append(drift, repository.LedgerDrift{AccountID: id, Balance: acc.Balance, EntryNet: nets[id]})
		}
	}
	return drift, nil
}

// --- settlements ---

func (s *Store) CreateSettlement(ctx context.Context, stl *models.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateSettlement"); err != nil {
		return err
	}
	now := s.tick()
	stl.CreatedAt, stl.UpdatedAt = now, now
	s.settlements[stl.ID] = *stl
	return nil
}

func (s *Store) GetSettlement(ctx context.Context, id uuid.UUID) (*models.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetSettlement"); err != nil {
		return nil, err
	}
	stl, ok := s.settlements[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &stl, nil
}

func (s *Store) ListSettlementsByParty(ctx context.Context, partyID uuid.UUID, limit, offset int32) ([]models.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListSettlementsByParty"); err != nil {
		return nil, err
	}
	var out []models.Settlement
	for _, stl := range s.settlements {
		if stl.PartyID == partyID {
			out = append(out, stl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, limit, offset), nil
}

func (s *Store) ListSettlementsByStatus(ctx context.Context, params repository.ListSettlementsByStatusParams) ([]models.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListSettlementsByStatus"); err != nil {
		return nil, err
	}
	var out []models.Settlement
	for _, stl := range s.settlements {
		if stl.Status != params.Status {
			continue
		}
		if params.From != nil && stl.CreatedAt.Before(*params.From) {
			continue
		}
		if params.To != nil && !stl.CreatedAt.Before(*params.To) {
			continue
		}
		out = append(out, stl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if params.Limit > 0 && int32(len(out)) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

func (s *Store) UpdateSettlementStatus(ctx context.Context, id uuid.UUID, status string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateSettlementStatus"); err != nil {
		return 0, err
	}
	stl, ok := s.settlements[id]
	if !ok {
		return 0, nil
	}
	stl.Status = status
	stl.UpdatedAt = s.tick()
	s.settlements[id] = stl
	return 1, nil
}

// --- outbox ---

func (s *Store) CreateOutboxEvent(ctx context.Context, e *models.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateOutboxEvent"); err != nil {
		return err
	}
	e.CreatedAt = s.tick()
	s.outbox[e.ID] = *e
	return nil
}

func (s *Store) MarkOutboxEventPublished(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("MarkOutboxEventPublished"); err != nil {
		return 0, err
	}
	e, ok := s.outbox[id]
	if !ok || e.Published {
		return 0, nil
	}
	e.Published = true
	e.PublishedAt = &at
	s.outbox[id] = e
	return 1, nil
}

func (s *Store) ListUnpublishedOutboxEvents(ctx context.Context, olderThan time.Time, limit int32) ([]models.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListUnpublishedOutboxEvents"); err != nil {
		return nil, err
	}
	var out []models.OutboxEvent
	for _, e := range s.outbox {
		if !e.Published && e.CreatedAt.Before(olderThan) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && int32(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- carts ---

func (s *Store) CreateCart(ctx context.Context, c *models.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateCart"); err != nil {
		return err
	}
	for _, existing := range s.carts {
		if existing.UserID == c.UserID {
			return fmt.Errorf("carts.user_id: %w", repository.ErrUniqueViolation)
		}
	}
	c.CreatedAt = s.tick()
	s.carts[c.ID] = *c
	return nil
}

// --- test inspection helpers ---

// Order returns a copy of the stored order.
func (s *Store) Order(id uuid.UUID) (models.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	return o, ok
}

// Settlement returns a copy of the stored settlement.
func (s *Store) Settlement(id uuid.UUID) (models.Settlement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stl, ok := s.settlements[id]
	return stl, ok
}

// PaymentCount reports how many payment rows exist.
func (s *Store) PaymentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payments)
}

// CartCount reports how many carts exist.
func (s *Store) CartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.carts)
}

// LedgerEntries returns copies of all entries for an account, oldest first.
func (s *Store) LedgerEntries(accountID uuid.UUID) []models.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range s.entries {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out
}

// OutboxEvents returns copies of all outbox rows, oldest first.
func (s *Store) OutboxEvents() []models.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.OutboxEvent, 0, len(s.outbox))
	for _, e := range s.outbox {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// BackdateOutbox shifts every outbox row's creation time into the past so
// sweep grace periods elapse in tests.
func (s *Store) BackdateOutbox(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.outbox {
		e.CreatedAt = e.CreatedAt.Add(-d)
		s.outbox[id] = e
	}
}

func paginate[T any](items []T, limit, offset int32) []T {
	if offset >= int32(len(items)) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && int32(len(items)) > limit {
		items = items[:limit]
	}
	return items
}
