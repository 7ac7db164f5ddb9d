// Package model holds the wire and storage types shared by the HTTP layer,
// the bank core and the event pipeline.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a registered user with a single balance. Email is the login
// identity; Name is the unique handle other users address transfers to.
type Account struct {
	Email        string          `json:"email"`
	PasswordHash string          `json:"-"`
	Name         string          `json:"name"`
	Phone        string          `json:"phone,omitempty"`
	CardNo       string          `json:"cardNo,omitempty"`
	AccNo        string          `json:"accNo,omitempty"`
	Balance      decimal.Decimal `json:"balance"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Card is a provisioned NFC card bound to an account. NfcID is a sha256
// digest of the raw tag data or the NU ID; the raw value is never stored.
type Card struct {
	NfcID   string `json:"nfcId"`
	PinHash string `json:"-"`
}

// LedgerEntry is the immutable record of one completed transfer.
type LedgerEntry struct {
	ID             string          `json:"id"`
	FromName       string          `json:"fromName"`
	ToName         string          `json:"toName"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"-"`
	CreatedAt      time.Time       `json:"date"`
}

// TransferEvent is the message published to the transfers topic after a
// transfer commits. The auditor consumes these into the audit table.
type TransferEvent struct {
	TransferID string          `json:"transfer_id"`
	FromName   string          `json:"from_name"`
	ToName     string          `json:"to_name"`
	Amount     decimal.Decimal `json:"amount"`
	CreatedAt  time.Time       `json:"created_at"`
}
