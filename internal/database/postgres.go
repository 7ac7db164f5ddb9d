package database

import (
	"database/sql"
	"fmt"
	"log"
)

// NewClient opens and pings a Postgres connection.
func NewClient(host, port, user, password, dbname string) (*sql.DB, error) {
	pgInfo := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", pgInfo)
	if err != nil {
		return nil, fmt.Errorf("validation of db parameters failed due to error: %v", err)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to open db connection due to err: %v", err)
	}

	log.Println("postgres db connected successfully!")
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		email         TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		name          TEXT NOT NULL UNIQUE,
		phone         TEXT NOT NULL DEFAULT '',
		card_no       TEXT NOT NULL DEFAULT '',
		acc_no        TEXT NOT NULL DEFAULT '',
		balance       NUMERIC(18,2) NOT NULL DEFAULT 0,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS cards (
		account_email TEXT NOT NULL REFERENCES accounts(email) ON DELETE CASCADE,
		nfc_id        TEXT NOT NULL,
		pin_hash      TEXT NOT NULL,
		added_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (account_email, nfc_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ledger (
		id              UUID PRIMARY KEY,
		from_name       TEXT NOT NULL,
		to_name         TEXT NOT NULL,
		amount          NUMERIC(18,2) NOT NULL CHECK (amount > 0),
		idempotency_key TEXT NOT NULL UNIQUE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS ledger_from_name_idx ON ledger (from_name, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS ledger_to_name_idx ON ledger (to_name, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS transfer_audit (
		transfer_id UUID PRIMARY KEY,
		from_name   TEXT NOT NULL,
		to_name     TEXT NOT NULL,
		amount      NUMERIC(18,2) NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate creates the tables and indexes if they do not exist.
func Migrate(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %v", err)
		}
	}
	return nil
}
