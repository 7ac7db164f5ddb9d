package bank

import "errors"

// Domain errors. Handlers map these to HTTP status codes with errors.Is;
// anything else coming out of the service is treated as a server fault.
var (
	// ErrNotFound means the source or destination account does not exist.
	ErrNotFound = errors.New("account not found")

	// ErrInvalidAmount means the amount is zero, negative or not a number.
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	// ErrSameAccount means source and destination are the same account.
	ErrSameAccount = errors.New("cannot transfer to the same account")

	// ErrInsufficientFunds means the source balance does not cover the amount.
	ErrInsufficientFunds = errors.New("insufficient balance")

	// ErrConflict means a uniqueness rule was violated: duplicate registration,
	// duplicate card, or an idempotency key reused with different parameters.
	ErrConflict = errors.New("conflict")

	// ErrUnauthenticated means the request carried no valid credential.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden means the authenticated caller is not the source account.
	ErrForbidden = errors.New("caller is not the source account")

	// ErrUnavailable means the store failed mid-operation; the caller must
	// treat the outcome as unknown and retry with the same idempotency key.
	ErrUnavailable = errors.New("store unavailable")
)
