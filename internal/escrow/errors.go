package escrow

import "errors"

// Error taxonomy surfaced to external collaborators. Every operation either
// fully applies or returns one of these with no state change.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrFundingMismatch   = errors.New("funding mismatch")
	ErrNotFound          = errors.New("not found")

	// ErrInternal covers invariant violations between the ledger and the
	// vault. Not a user error: it means the ledger believed a transfer was
	// valid and the vault disagreed.
	ErrInternal = errors.New("internal invariant violation")

	ErrAlreadyFunded           = errors.New("project already funded")
	ErrInsufficientLockedFunds = errors.New("insufficient locked funds")

	ErrLockTimeout = errors.New("project is busy")
)
