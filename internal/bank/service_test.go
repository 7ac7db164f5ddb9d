package bank_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/nupay/banking-service/internal/bank"
	"github.com/nupay/banking-service/internal/bank/banktest"
	"github.com/nupay/banking-service/internal/model"
)

func newTestService(store *banktest.Store) *bank.Service {
	return bank.NewService(store, decimal.NewFromInt(550))
}

func TestTransferMovesFundsAndRecordsEntry(t *testing.T) {
	store := banktest.NewStore()
	store.Seed("Alice", "alice@nu.edu", 100)
	store.Seed("Bob", "bob@nu.edu", 50)
	svc := newTestService(store)

	res, err := svc.Transfer(context.Background(), "Alice", "Alice", "Bob", decimal.NewFromInt(30), "")
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if !res.SenderBalance.Equal(decimal.NewFromInt(70)) {
		t.Errorf("sender balance = %s, want 70", res.SenderBalance)
	}
	if !res.ReceiverBalance.Equal(decimal.NewFromInt(80)) {
		t.Errorf("receiver balance = %s, want 80", res.ReceiverBalance)
	}

	// Conservation: the pair's total is unchanged.
	total := store.Balance("Alice").Add(store.Balance("Bob"))
	if !total.Equal(decimal.NewFromInt(150)) {
		t.Errorf("total balance = %s, want 150", total)
	}

	entries, err := svc.Statements(context.Background(), "Alice")
	if err != nil {
		t.Fatalf("statements failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d ledger entries, want 1", len(entries))
	}
	e := entries[0]
	if e.FromName != "Alice" || e.ToName != "Bob" || !e.Amount.Equal(decimal.NewFromInt(30)) {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.ID == "" {
		t.Error("entry ID not set")
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	store := banktest.NewStore()
	store.Seed("Alice", "alice@nu.edu", 100)
	store.Seed("Bob", "bob@nu.edu", 50)
	svc := newTestService(store)

	_, err := svc.Transfer(context.Background(), "Alice", "Alice", "Bob", decimal.NewFromInt(1000), "")
	if !errors.Is(err, bank.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if !store.Balance("Alice").Equal(decimal.NewFromInt(100)) {
		t.Errorf("sender balance changed: %s", store.Balance("Alice"))
	}
	if !store.Balance("Bob").Equal(decimal.NewFromInt(50)) {
		t.Errorf("receiver balance changed: %s", store.Balance("Bob"))
	}
	if store.EntryCount() != 0 {
		t.Errorf("ledger has %d entries, want 0", store.EntryCount())
	}
}

func TestTransferRejectsBadRequests(t *testing.T) {
	store := banktest.NewStore()
	store.Seed("Alice", "alice@nu.edu", 100)
	store.Seed("Bob", "bob@nu.edu", 50)
	svc := newTestService(store)
	ctx := context.Background()

	cases := []struct {
		name         string
		caller, from string
		to           string
		amount       decimal.Decimal
		want         error
	}{
		{"zero amount", "Alice", "Alice", "Bob", decimal.Zero, bank.ErrInvalidAmount},
		{"negative amount", "Alice", "Alice", "Bob", decimal.NewFromInt(-5), bank.ErrInvalidAmount},
		{"self transfer", "Alice", "Alice", "Alice", decimal.NewFromInt(5), bank.ErrSameAccount},
		{"caller mismatch", "Bob", "Alice", "Bob", decimal.NewFromInt(5), bank.ErrForbidden},
		{"unknown source", "Nobody", "Nobody", "Bob", decimal.NewFromInt(5), bank.ErrNotFound},
		{"unknown destination", "Alice", "Alice", "Nobody", decimal.NewFromInt(5), bank.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Transfer(ctx, tc.caller, tc.from, tc.to, tc.amount, "")
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
	if store.EntryCount() != 0 {
		t.Errorf("ledger has %d entries after rejected transfers, want 0", store.EntryCount())
	}
}

func TestTransferIdempotentReplay(t *testing.T) {
	store := banktest.NewStore()
	store.Seed("Alice", "alice@nu.edu", 100)
	store.Seed("Bob", "bob@nu.edu", 50)
	svc := newTestService(store)
	ctx := context.Background()

	first, err := svc.Transfer(ctx, "Alice", "Alice", "Bob", decimal.NewFromInt(30), "key-1")
	if err != nil {
		t.Fatalf("first transfer failed: %v", err)
	}
	second, err := svc.Transfer(ctx, "Alice", "Alice", "Bob", decimal.NewFromInt(30), "key-1")
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	if second.Entry.ID != first.Entry.ID {
		t.Errorf("replay returned a different entry: %s vs %s", second.Entry.ID, first.Entry.ID)
	}
	if !store.Balance("Alice").Equal(decimal.NewFromInt(70)) {
		t.Errorf("funds moved twice: sender balance = %s", store.Balance("Alice"))
	}
	if store.EntryCount() != 1 {
		t.Errorf("ledger has %d entries, want 1", store.EntryCount())
	}
}

func TestTransferIdempotencyKeyReuseIsConflict(t *testing.T) {
	store := banktest.NewStore()
	store.Seed("Alice", "alice@nu.edu", 100)
	store.Seed("Bob", "bob@nu.edu", 50)
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.Transfer(ctx, "Alice", "Alice", "Bob", decimal.NewFromInt(30), "key-1"); err != nil {
		t.Fatalf("first transfer failed: %v", err)
	}
	_, err := svc.Transfer(ctx, "Alice", "Alice", "Bob", decimal.NewFromInt(99), "key-1")
	if !errors.Is(err, bank.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestTransferStoreFailureIsUnavailableAndRollsBack(t *testing.T) {
	ops := []string{"Begin", "AccountForUpdate", "UpdateBalance", "AppendEntry", "EntryByIdempotencyKey"}
	for _, op := range ops {
		t.Run(op, func(t *testing.T) {
			store := banktest.NewStore()
			store.Seed("Alice", "alice@nu.edu", 100)
			store.Seed("Bob", "bob@nu.edu", 50)
			store.FailOn(op, errors.New("connection reset"))
			svc := newTestService(store)

			_, err := svc.Transfer(context.Background(), "Alice", "Alice", "Bob", decimal.NewFromInt(30), "key-1")
			if !errors.Is(err, bank.ErrUnavailable) {
				t.Fatalf("err = %v, want ErrUnavailable", err)
			}
			if !store.Balance("Alice").Equal(decimal.NewFromInt(100)) {
				t.Errorf("sender balance changed: %s", store.Balance("Alice"))
			}
			if !store.Balance("Bob").Equal(decimal.NewFromInt(50)) {
				t.Errorf("receiver balance changed: %s", store.Balance("Bob"))
			}
			if store.EntryCount() != 0 {
				t.Errorf("ledger has %d entries, want 0", store.EntryCount())
			}
		})
	}
}

func TestConcurrentTransfersCannotOverdraw(t *testing.T) {
	store := banktest.NewStore()
	store.Seed("Alice", "alice@nu.edu", 100)
	store.Seed("Bob", "bob@nu.edu", 0)
	store.Seed("Carol", "carol@nu.edu", 0)
	svc := newTestService(store)

	amounts := map[string]int64{"Bob": 70, "Carol": 60}
	errs := make(chan error, len(amounts))
	var wg sync.WaitGroup
	for to, amt := range amounts {
		wg.Add(1)
		go func(to string, amt int64) {
			defer wg.Done()
			_, err := svc.Transfer(context.Background(), "Alice", "Alice", to, decimal.NewFromInt(amt), "")
			errs <- err
		}(to, amt)
	}
	wg.Wait()
	close(errs)

	var ok, insufficient int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, bank.ErrInsufficientFunds):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || insufficient != 1 {
		t.Fatalf("got %d successes and %d rejections, want exactly 1 and 1", ok, insufficient)
	}
	if store.Balance("Alice").IsNegative() {
		t.Errorf("source overdrawn: %s", store.Balance("Alice"))
	}
	total := store.Balance("Alice").Add(store.Balance("Bob")).Add(store.Balance("Carol"))
	if !total.Equal(decimal.NewFromInt(100)) {
		t.Errorf("total balance = %s, want 100", total)
	}
}

func TestLedgerCompleteness(t *testing.T) {
	store := banktest.NewStore()
	store.Seed("Alice", "alice@nu.edu", 1000)
	store.Seed("Bob", "bob@nu.edu", 0)
	svc := newTestService(store)
	ctx := context.Background()

	const n = 5
	for i := 0; i < n; i++ {
		if _, err := svc.Transfer(ctx, "Alice", "Alice", "Bob", decimal.NewFromInt(int64(i+1)), ""); err != nil {
			t.Fatalf("transfer %d failed: %v", i, err)
		}
	}
	entries, err := svc.Statements(ctx, "Alice")
	if err != nil {
		t.Fatalf("statements failed: %v", err)
	}
	if len(entries) != n {
		t.Fatalf("got %d entries, want %d", len(entries), n)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].CreatedAt.After(entries[i-1].CreatedAt) {
			t.Errorf("entries not newest-first at index %d", i)
		}
	}
}

func TestRegisterDuplicateIsConflict(t *testing.T) {
	store := banktest.NewStore()
	svc := newTestService(store)
	ctx := context.Background()

	a := &model.Account{Email: "alice@nu.edu", Name: "Alice"}
	if err := svc.Register(ctx, a); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if !a.Balance.Equal(decimal.NewFromInt(550)) {
		t.Errorf("starting balance = %s, want 550", a.Balance)
	}
	err := svc.Register(ctx, &model.Account{Email: "alice@nu.edu", Name: "Alice Two"})
	if !errors.Is(err, bank.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}
