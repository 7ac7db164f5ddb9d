// Package banktest provides an in-memory bank.Store for tests. Begin takes
// a global lock held until Commit/Rollback, matching the serialization the
// Postgres row locks provide; writes are staged per-tx and applied on Commit.
// The tx-scoped methods must only be called between Begin and Commit/Rollback
// and panic on a finished tx.
package banktest

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/nupay/banking-service/internal/bank"
	"github.com/nupay/banking-service/internal/model"
)

type Store struct {
	mu       sync.Mutex
	accounts map[string]*model.Account // keyed by name
	emails   map[string]string         // email -> name
	cards    map[string][]model.Card
	entries  []model.LedgerEntry
	failures map[string]error // op name -> injected error
}

func NewStore() *Store {
	return &Store{
		accounts: make(map[string]*model.Account),
		emails:   make(map[string]string),
		cards:    make(map[string][]model.Card),
		failures: make(map[string]error),
	}
}

// FailOn makes the named store operation ("Begin", "AccountForUpdate",
// "UpdateBalance", "AppendEntry", "EntryByIdempotencyKey") return err,
// simulating a store outage mid-write.
func (s *Store) FailOn(op string, err error) {
	s.failures[op] = err
}

func (s *Store) failure(op string) error {
	return s.failures[op]
}

// Seed inserts an account directly, bypassing registration.
func (s *Store) Seed(name, email string, balance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[name] = &model.Account{Email: email, Name: name, Balance: decimal.NewFromInt(balance)}
	s.emails[email] = name
}

// SeedAccount inserts a fully populated account directly.
func (s *Store) SeedAccount(a model.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := a
	s.accounts[a.Name] = &cp
	s.emails[a.Email] = a.Name
}

// Balance returns the committed balance of the named account.
func (s *Store) Balance(name string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[name].Balance
}

// EntryCount returns the number of committed ledger entries.
func (s *Store) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

type tx struct {
	s        *Store
	balances map[string]decimal.Decimal
	entries  []model.LedgerEntry
	done     bool
}

func (t *tx) Commit() error {
	if t.done {
		return errors.New("tx already finished")
	}
	for name, b := range t.balances {
		t.s.accounts[name].Balance = b
	}
	t.s.entries = append(t.s.entries, t.entries...)
	t.done = true
	t.s.mu.Unlock()
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.s.mu.Unlock()
	return nil
}

// assertActive guards the tx-scoped methods below: they touch shared state
// without taking s.mu because the Begin lock is still held. Using a finished
// tx would break that invariant, so it is a programming error.
func (t *tx) assertActive() {
	if t.done {
		panic("banktest: tx used after Commit/Rollback")
	}
}

func (s *Store) Begin(ctx context.Context) (bank.Tx, error) {
	if err := s.failure("Begin"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &tx{s: s, balances: make(map[string]decimal.Decimal)}, nil
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.emails[email]
	if !ok {
		return nil, bank.ErrNotFound
	}
	cp := *s.accounts[name]
	return &cp, nil
}

func (s *Store) AccountByName(ctx context.Context, name string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[name]
	if !ok {
		return nil, bank.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) InsertAccount(ctx context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.emails[a.Email]; dup {
		return bank.ErrConflict
	}
	if _, dup := s.accounts[a.Name]; dup {
		return bank.ErrConflict
	}
	cp := *a
	s.accounts[a.Name] = &cp
	s.emails[a.Email] = a.Name
	return nil
}

func (s *Store) UpdateProfile(ctx context.Context, email string, fields bank.ProfileUpdate) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.emails[email]
	if !ok {
		return nil, bank.ErrNotFound
	}
	a := s.accounts[name]
	if fields.Phone != nil {
		a.Phone = *fields.Phone
	}
	if fields.CardNo != nil {
		a.CardNo = *fields.CardNo
	}
	if fields.AccNo != nil {
		a.AccNo = *fields.AccNo
	}
	if fields.Name != nil && *fields.Name != a.Name {
		if _, dup := s.accounts[*fields.Name]; dup {
			return nil, bank.ErrConflict
		}
		delete(s.accounts, a.Name)
		a.Name = *fields.Name
		s.accounts[a.Name] = a
		s.emails[a.Email] = a.Name
	}
	if fields.Email != nil && *fields.Email != a.Email {
		if _, dup := s.emails[*fields.Email]; dup {
			return nil, bank.ErrConflict
		}
		delete(s.emails, a.Email)
		a.Email = *fields.Email
		s.emails[a.Email] = a.Name
	}
	cp := *a
	return &cp, nil
}

func (s *Store) CardsByEmail(ctx context.Context, email string) ([]model.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Card(nil), s.cards[email]...), nil
}

func (s *Store) InsertCard(ctx context.Context, email string, c model.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.cards[email] {
		if existing.NfcID == c.NfcID {
			return bank.ErrConflict
		}
	}
	s.cards[email] = append(s.cards[email], c)
	return nil
}

func (s *Store) AccountForUpdate(ctx context.Context, btx bank.Tx, name string) (*model.Account, error) {
	t := btx.(*tx)
	t.assertActive()
	if err := s.failure("AccountForUpdate"); err != nil {
		return nil, err
	}
	a, ok := s.accounts[name]
	if !ok {
		return nil, bank.ErrNotFound
	}
	cp := *a
	if staged, ok := t.balances[name]; ok {
		cp.Balance = staged
	}
	return &cp, nil
}

func (s *Store) UpdateBalance(ctx context.Context, btx bank.Tx, name string, balance decimal.Decimal) error {
	t := btx.(*tx)
	t.assertActive()
	if err := s.failure("UpdateBalance"); err != nil {
		return err
	}
	t.balances[name] = balance
	return nil
}

func (s *Store) AppendEntry(ctx context.Context, btx bank.Tx, e *model.LedgerEntry) error {
	t := btx.(*tx)
	t.assertActive()
	if err := s.failure("AppendEntry"); err != nil {
		return err
	}
	t.entries = append(t.entries, *e)
	return nil
}

func (s *Store) EntryByIdempotencyKey(ctx context.Context, btx bank.Tx, key string) (*model.LedgerEntry, error) {
	btx.(*tx).assertActive()
	if err := s.failure("EntryByIdempotencyKey"); err != nil {
		return nil, err
	}
	for i := range s.entries {
		if s.entries[i].IdempotencyKey == key {
			cp := s.entries[i]
			return &cp, nil
		}
	}
	return nil, bank.ErrNotFound
}

func (s *Store) EntriesByAccount(ctx context.Context, name string) ([]model.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.LedgerEntry
	for _, e := range s.entries {
		if e.FromName == name || e.ToName == name {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
