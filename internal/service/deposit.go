package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hansol-dev/marketpay/internal/domain"
	"github.com/hansol-dev/marketpay/internal/models"
	"github.com/hansol-dev/marketpay/internal/repository"
)

var (
	ErrDepositAccountNotFound = errors.New("deposit account not found")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrDuplicateCredit        = errors.New("settlement already credited")
)

// creditTypes and debitTypes fix the sign of each ledger entry type.
var creditTypes = map[string]struct{}{
	domain.EntryTypeCharge:     {},
	domain.EntryTypeRefund:     {},
	domain.EntryTypeSettlement: {},
}

var debitTypes = map[string]struct{}{
	domain.EntryTypePurchase:       {},
	domain.EntryTypeWithdraw:       {},
	domain.EntryTypeSettlementFail: {},
}

// DepositService owns the balance ledger. Every balance mutation goes through
// applyMutation, which locks the party's account row and appends exactly one
// ledger entry in the same transaction. The cached balance is never touched
// any other way.
type DepositService struct {
	store QueryStore
}

func NewDepositService(store QueryStore) *DepositService {
	return &DepositService{store: store}
}

// Charge tops up a party's deposit balance, creating the account on first use.
func (s *DepositService) Charge(ctx context.Context, partyID uuid.UUID, amount int64) (*models.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var entry *models.LedgerEntry
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		if err := s.ensureAccount(ctx, q, partyID); err != nil {
			return err
		}
		var err error
		entry, err = applyMutation(ctx, q, partyID, domain.EntryTypeCharge, amount, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Withdraw draws funds out of the deposit balance.
func (s *DepositService) Withdraw(ctx context.Context, partyID uuid.UUID, amount int64) (*models.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var entry *models.LedgerEntry
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		var err error
		entry, err = applyMutation(ctx, q, partyID, domain.EntryTypeWithdraw, amount, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// CreditSettlement credits a seller's ledger for a settlement exactly once.
// The settlement id is the idempotency reference: a duplicate delivery finds
// the existing entry and reports ErrDuplicateCredit.
func (s *DepositService) CreditSettlement(ctx context.Context, partyID uuid.UUID, amount int64, settlementID uuid.UUID) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	return s.store.RunInTx(ctx, func(q repository.Querier) error {
		if err := s.ensureAccount(ctx, q, partyID); err != nil {
			return err
		}

		acc, err := q.GetDepositAccountByPartyForUpdate(ctx, partyID)
		if err != nil {
			return fmt.Errorf("lock deposit account: %w", err)
		}
		applied, err := q.HasLedgerEntry(ctx, acc.ID, domain.EntryTypeSettlement, settlementID)
		if err != nil {
			return err
		}
		if applied {
			return ErrDuplicateCredit
		}

		ref := settlementID
		_, err = applyMutationLocked(ctx, q, acc, domain.EntryTypeSettlement, amount, &ref)
		return err
	})
}

// GetAccount returns the party's deposit account.
func (s *DepositService) GetAccount(ctx context.Context, partyID uuid.UUID) (*models.DepositAccount, error) {
	acc, err := s.store.Queries().GetDepositAccountByParty(ctx, partyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDepositAccountNotFound
		}
		return nil, err
	}
	return acc, nil
}

// AvailableBalance returns the party's current balance; a missing account
// reads as zero.
func (s *DepositService) AvailableBalance(ctx context.Context, partyID uuid.UUID) (int64, error) {
	acc, err := s.GetAccount(ctx, partyID)
	if err != nil {
		if errors.Is(err, ErrDepositAccountNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return acc.Balance, nil
}

// ListEntries returns the party's ledger history, newest first.
func (s *DepositService) ListEntries(ctx context.Context, partyID uuid.UUID, limit, offset int32) ([]models.LedgerEntry, error) {
	acc, err := s.GetAccount(ctx, partyID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.Queries().ListLedgerEntries(ctx, acc.ID, limit, offset)
}

func (s *DepositService) ensureAccount(ctx context.Context, q repository.Querier, partyID uuid.UUID) error {
	_, err := q.GetDepositAccountByParty(ctx, partyID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	acc := &models.DepositAccount{ID: uuid.New(), PartyID: partyID}
	if err := q.CreateDepositAccount(ctx, acc); err != nil {
		// A concurrent request may have created it first.
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil
		}
		return err
	}
	return nil
}

// applyMutation locks the party's account and applies one signed balance
// change plus its ledger entry. Must run inside a transaction.
func applyMutation(ctx context.Context, q repository.Querier, partyID uuid.UUID, entryType string, amount int64, referenceID *uuid.UUID) (*models.LedgerEntry, error) {
	acc, err := q.GetDepositAccountByPartyForUpdate(ctx, partyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDepositAccountNotFound
		}
		return nil, fmt.Errorf("lock deposit account: %w", err)
	}
	return applyMutationLocked(ctx, q, acc, entryType, amount, referenceID)
}

func applyMutationLocked(ctx context.Context, q repository.Querier, acc *models.DepositAccount, entryType string, amount int64, referenceID *uuid.UUID) (*models.LedgerEntry, error) {
	before := acc.Balance
	var after int64
	switch {
	case hasKey(creditTypes, entryType):
		after = before + amount
	case hasKey(debitTypes, entryType):
		after = before - amount
	default:
		return nil, fmt.Errorf("unknown ledger entry type: %s", entryType)
	}
	if after < 0 {
		return nil, models.ErrInsufficientBalance
	}

	rows, err := q.UpdateDepositBalance(ctx, acc.ID, after)
	if err != nil {
		return nil, fmt.Errorf("update deposit balance: %w", err)
	}
	if err := requireExactlyOne(rows, "update deposit balance"); err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     acc.ID,
		Type:          entryType,
		Amount:        amount,
		BeforeBalance: before,
		AfterBalance:  after,
		ReferenceID:   referenceID,
	}
	if err := q.CreateLedgerEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}
	acc.Balance = after
	return entry, nil
}

func hasKey(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
