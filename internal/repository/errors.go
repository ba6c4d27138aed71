package repository

import "errors"

// Sentinel errors for expected ledger outcomes. Callers branch on these with
// errors.Is; anything else is a storage failure.
var (
	// ErrDuplicateMessage means an action already exists for the source
	// message id. Duplicate deliveries are a no-op.
	ErrDuplicateMessage = errors.New("action already recorded for message")

	// ErrInvalidStateTransition means the action was not in the expected
	// state, e.g. an attempt to complete an already-terminal action.
	ErrInvalidStateTransition = errors.New("invalid action state transition")

	// ErrInsufficientBalance means a debit would drive a balance negative.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrUserNotFound means no user is registered under the given name.
	ErrUserNotFound = errors.New("user not found")
)
