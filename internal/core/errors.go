package core

import "errors"

// Validation errors are surfaced to the caller before any store
// interaction.
var (
	ErrEmptyName       = errors.New("empty transaction name")
	ErrNameTooLong     = errors.New("transaction name too long (max 120 characters)")
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrInvalidInterval = errors.New("invalid interval")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidDueDate  = errors.New("invalid due date")
)

var (
	// ErrUnauthenticated means no user identity was resolvable; nothing
	// is read or written.
	ErrUnauthenticated = errors.New("no authenticated user")

	// ErrNoBalance means the ledger was never bootstrapped with an
	// initial deposit. Callers must run the initial balance setup before
	// any paid-status mutation can compute a delta.
	ErrNoBalance = errors.New("no balance snapshot for user")

	ErrNotFound = errors.New("not found")

	// ErrConflict maps store-level unique or foreign-key violations.
	ErrConflict = errors.New("conflicting state in store")

	// ErrStoreUnavailable wraps connectivity or timeout failures. Ledger
	// appends must never be retried in isolation on top of this error: a
	// retried append could double-count a delta. Retry the whole
	// read-then-decide path instead.
	ErrStoreUnavailable = errors.New("store unavailable")
)
