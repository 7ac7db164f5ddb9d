// Package bank implements the transfer core: validated, atomic, idempotent
// movement of funds between two named accounts, recorded in an append-only
// ledger. It talks to storage through the Store interface only.
package bank

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/nupay/banking-service/internal/model"
)

var logger = log.With().Str("pkg", "bank").Logger()

// Tx is one storage unit of work. All writes of a transfer go through a
// single Tx so they commit or roll back together.
type Tx interface {
	Commit() error
	Rollback() error
}

// Store is the persistence contract the service needs. Implementations must
// make AccountForUpdate block concurrent transfers touching the same row
// until the Tx finishes (row lock or equivalent).
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	AccountByEmail(ctx context.Context, email string) (*model.Account, error)
	AccountByName(ctx context.Context, name string) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)
	InsertAccount(ctx context.Context, a *model.Account) error
	UpdateProfile(ctx context.Context, email string, fields ProfileUpdate) (*model.Account, error)

	CardsByEmail(ctx context.Context, email string) ([]model.Card, error)
	InsertCard(ctx context.Context, email string, c model.Card) error

	AccountForUpdate(ctx context.Context, tx Tx, name string) (*model.Account, error)
	UpdateBalance(ctx context.Context, tx Tx, name string, balance decimal.Decimal) error
	AppendEntry(ctx context.Context, tx Tx, e *model.LedgerEntry) error
	EntryByIdempotencyKey(ctx context.Context, tx Tx, key string) (*model.LedgerEntry, error)

	EntriesByAccount(ctx context.Context, name string) ([]model.LedgerEntry, error)
}

// ProfileUpdate carries the mutable profile fields. Nil pointers leave the
// stored value untouched.
type ProfileUpdate struct {
	Name   *string
	Email  *string
	Phone  *string
	CardNo *string
	AccNo  *string
}

// TransferResult is returned to the caller after a transfer is applied (or
// replayed via its idempotency key).
type TransferResult struct {
	SenderBalance   decimal.Decimal
	ReceiverBalance decimal.Decimal
	Entry           model.LedgerEntry
}

// Service is the transfer core plus the small account operations around it.
type Service struct {
	store          Store
	defaultBalance decimal.Decimal
}

func NewService(store Store, defaultBalance decimal.Decimal) *Service {
	return &Service{store: store, defaultBalance: defaultBalance}
}

// Register creates an account with the default starting balance. The store
// reports ErrConflict when the email or name is already taken.
func (s *Service) Register(ctx context.Context, a *model.Account) error {
	a.Balance = s.defaultBalance
	a.CreatedAt = time.Now().UTC()
	if err := s.store.InsertAccount(ctx, a); err != nil {
		return storeErr(err)
	}
	return nil
}

// AccountByEmail resolves a login identity to its account.
func (s *Service) AccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	a, err := s.store.AccountByEmail(ctx, email)
	if err != nil {
		return nil, storeErr(err)
	}
	return a, nil
}

// ListAccounts returns every account summary, for the admin dashboard.
func (s *Service) ListAccounts(ctx context.Context) ([]model.Account, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	return accounts, nil
}

// UpdateProfile applies the given profile fields to the account.
func (s *Service) UpdateProfile(ctx context.Context, email string, fields ProfileUpdate) (*model.Account, error) {
	a, err := s.store.UpdateProfile(ctx, email, fields)
	if err != nil {
		return nil, storeErr(err)
	}
	return a, nil
}

// AddCard binds a hashed NFC card to the account. A card already bound to
// the account is rejected with ErrConflict.
func (s *Service) AddCard(ctx context.Context, email string, c model.Card) ([]model.Card, error) {
	if err := s.store.InsertCard(ctx, email, c); err != nil {
		return nil, storeErr(err)
	}
	cards, err := s.store.CardsByEmail(ctx, email)
	if err != nil {
		return nil, storeErr(err)
	}
	return cards, nil
}

// storeErr passes domain sentinels through and wraps anything else as
// ErrUnavailable so callers never see raw store errors.
func storeErr(err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Transfer moves amount from the caller's account to the destination.
//
// All preconditions are checked before any mutation: the caller must be the
// source account, source and destination must differ, the amount must be
// strictly positive, both accounts must exist and the source must cover the
// amount. The two balance updates and the ledger insert are applied in one
// store transaction with both account rows locked, so concurrent transfers
// over the same accounts serialize and the books always balance.
//
// When idempotencyKey matches an already-recorded entry with the same
// parameters, the stored entry and the current balances are returned without
// moving funds again. The same key with different parameters is ErrConflict.
func (s *Service) Transfer(ctx context.Context, caller, fromName, toName string, amount decimal.Decimal, idempotencyKey string) (*TransferResult, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if fromName == toName {
		return nil, ErrSameAccount
	}
	if caller != fromName {
		return nil, ErrForbidden
	}
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ErrUnavailable, err)
	}
	res, err := s.transferTx(ctx, tx, fromName, toName, amount, idempotencyKey)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", ErrUnavailable, err)
	}

	logger.Info().
		Str("transfer_id", res.Entry.ID).
		Str("from", fromName).
		Str("to", toName).
		Str("amount", amount.String()).
		Msg("transfer applied")
	return res, nil
}

func (s *Service) transferTx(ctx context.Context, tx Tx, fromName, toName string, amount decimal.Decimal, idempotencyKey string) (*TransferResult, error) {
	prev, err := s.store.EntryByIdempotencyKey(ctx, tx, idempotencyKey)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: idempotency lookup: %v", ErrUnavailable, err)
	}
	if prev != nil {
		return s.replay(ctx, tx, prev, fromName, toName, amount)
	}

	// Lock rows in a fixed order so two opposite-direction transfers over
	// the same pair cannot deadlock.
	first, second := fromName, toName
	if second < first {
		first, second = second, first
	}
	locked := make(map[string]*model.Account, 2)
	for _, name := range []string{first, second} {
		a, err := s.store.AccountForUpdate(ctx, tx, name)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("%w: lock %s: %v", ErrUnavailable, name, err)
		}
		locked[name] = a
	}
	from, to := locked[fromName], locked[toName]

	if from.Balance.LessThan(amount) {
		return nil, ErrInsufficientFunds
	}

	senderBalance := from.Balance.Sub(amount)
	receiverBalance := to.Balance.Add(amount)
	if err := s.store.UpdateBalance(ctx, tx, fromName, senderBalance); err != nil {
		return nil, fmt.Errorf("%w: debit: %v", ErrUnavailable, err)
	}
	if err := s.store.UpdateBalance(ctx, tx, toName, receiverBalance); err != nil {
		return nil, fmt.Errorf("%w: credit: %v", ErrUnavailable, err)
	}

	entry := model.LedgerEntry{
		ID:             uuid.NewString(),
		FromName:       fromName,
		ToName:         toName,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.AppendEntry(ctx, tx, &entry); err != nil {
		return nil, fmt.Errorf("%w: ledger append: %v", ErrUnavailable, err)
	}

	return &TransferResult{
		SenderBalance:   senderBalance,
		ReceiverBalance: receiverBalance,
		Entry:           entry,
	}, nil
}

// replay answers a retried transfer from the recorded entry. The key is only
// honored when the retry carries the same parameters as the original.
func (s *Service) replay(ctx context.Context, tx Tx, prev *model.LedgerEntry, fromName, toName string, amount decimal.Decimal) (*TransferResult, error) {
	if prev.FromName != fromName || prev.ToName != toName || !prev.Amount.Equal(amount) {
		return nil, fmt.Errorf("%w: idempotency key already used", ErrConflict)
	}
	first, second := fromName, toName
	if second < first {
		first, second = second, first
	}
	locked := make(map[string]*model.Account, 2)
	for _, name := range []string{first, second} {
		a, err := s.store.AccountForUpdate(ctx, tx, name)
		if err != nil {
			return nil, fmt.Errorf("%w: replay read: %v", ErrUnavailable, err)
		}
		locked[name] = a
	}
	from, to := locked[fromName], locked[toName]
	logger.Debug().Str("transfer_id", prev.ID).Msg("idempotent replay")
	return &TransferResult{
		SenderBalance:   from.Balance,
		ReceiverBalance: to.Balance,
		Entry:           *prev,
	}, nil
}

// Statements returns every ledger entry touching the account, newest first.
func (s *Service) Statements(ctx context.Context, name string) ([]model.LedgerEntry, error) {
	entries, err := s.store.EntriesByAccount(ctx, name)
	if err != nil {
		return nil, storeErr(err)
	}
	return entries, nil
}
