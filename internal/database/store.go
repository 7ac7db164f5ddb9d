// Package database is the Postgres persistence layer. Store implements the
// bank.Store contract on database/sql with lib/pq; transfers run inside a
// single sql.Tx with SELECT ... FOR UPDATE row locks.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/nupay/banking-service/internal/bank"
	"github.com/nupay/banking-service/internal/model"
)

const uniqueViolation = "23505"

// Store implements bank.Store against Postgres.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type pgTx struct {
	tx *sql.Tx
}

func (t pgTx) Commit() error   { return t.tx.Commit() }
func (t pgTx) Rollback() error { return t.tx.Rollback() }

func (s *Store) Begin(ctx context.Context) (bank.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return pgTx{tx: tx}, nil
}

const accountColumns = "email, password_hash, name, phone, card_no, acc_no, balance, created_at"

func scanAccount(row *sql.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(&a.Email, &a.PasswordHash, &a.Name, &a.Phone, &a.CardNo, &a.AccNo, &a.Balance, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bank.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE email = $1", email)
	return scanAccount(row)
}

func (s *Store) AccountByName(ctx context.Context, name string) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE name = $1", name)
	return scanAccount(row)
}

func (s *Store) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.Email, &a.PasswordHash, &a.Name, &a.Phone, &a.CardNo, &a.AccNo, &a.Balance, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) InsertAccount(ctx context.Context, a *model.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (email, password_hash, name, phone, card_no, acc_no, balance, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.Email, a.PasswordHash, a.Name, a.Phone, a.CardNo, a.AccNo, a.Balance, a.CreatedAt)
	if isUniqueViolation(err) {
		return bank.ErrConflict
	}
	return err
}

func (s *Store) UpdateProfile(ctx context.Context, email string, fields bank.ProfileUpdate) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE accounts SET
			name    = COALESCE($2, name),
			email   = COALESCE($3, email),
			phone   = COALESCE($4, phone),
			card_no = COALESCE($5, card_no),
			acc_no  = COALESCE($6, acc_no)
		 WHERE email = $1
		 RETURNING `+accountColumns,
		email, fields.Name, fields.Email, fields.Phone, fields.CardNo, fields.AccNo)
	a, err := scanAccount(row)
	if isUniqueViolation(err) {
		return nil, bank.ErrConflict
	}
	return a, err
}

func (s *Store) CardsByEmail(ctx context.Context, email string) ([]model.Card, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT nfc_id, pin_hash FROM cards WHERE account_email = $1 ORDER BY added_at", email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Card
	for rows.Next() {
		var c model.Card
		if err := rows.Scan(&c.NfcID, &c.PinHash); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) InsertCard(ctx context.Context, email string, c model.Card) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO cards (account_email, nfc_id, pin_hash) VALUES ($1, $2, $3)",
		email, c.NfcID, c.PinHash)
	if isUniqueViolation(err) {
		return bank.ErrConflict
	}
	return err
}

// AccountForUpdate reads the account and holds its row lock until the
// transaction ends, serializing concurrent transfers over the same account.
func (s *Store) AccountForUpdate(ctx context.Context, tx bank.Tx, name string) (*model.Account, error) {
	row := tx.(pgTx).tx.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE name = $1 FOR UPDATE", name)
	return scanAccount(row)
}

func (s *Store) UpdateBalance(ctx context.Context, tx bank.Tx, name string, balance decimal.Decimal) error {
	res, err := tx.(pgTx).tx.ExecContext(ctx,
		"UPDATE accounts SET balance = $1 WHERE name = $2", balance, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return bank.ErrNotFound
	}
	return nil
}

func (s *Store) AppendEntry(ctx context.Context, tx bank.Tx, e *model.LedgerEntry) error {
	_, err := tx.(pgTx).tx.ExecContext(ctx,
		`INSERT INTO ledger (id, from_name, to_name, amount, idempotency_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.FromName, e.ToName, e.Amount, e.IdempotencyKey, e.CreatedAt)
	if isUniqueViolation(err) {
		return bank.ErrConflict
	}
	return err
}

func (s *Store) EntryByIdempotencyKey(ctx context.Context, tx bank.Tx, key string) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	err := tx.(pgTx).tx.QueryRowContext(ctx,
		`SELECT id, from_name, to_name, amount, idempotency_key, created_at
		 FROM ledger WHERE idempotency_key = $1`, key).
		Scan(&e.ID, &e.FromName, &e.ToName, &e.Amount, &e.IdempotencyKey, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bank.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) EntriesByAccount(ctx context.Context, name string) ([]model.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, from_name, to_name, amount, idempotency_key, created_at
		 FROM ledger WHERE from_name = $1 OR to_name = $1
		 ORDER BY created_at DESC`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(&e.ID, &e.FromName, &e.ToName, &e.Amount, &e.IdempotencyKey, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecordAudit inserts one consumed transfer event into the audit table.
// Replayed events are skipped by the primary key.
func (s *Store) RecordAudit(ctx context.Context, ev model.TransferEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transfer_audit (transfer_id, from_name, to_name, amount)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (transfer_id) DO NOTHING`,
		ev.TransferID, ev.FromName, ev.ToName, ev.Amount)
	if err != nil {
		return fmt.Errorf("audit insert: %v", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
