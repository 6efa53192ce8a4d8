package aggregate

import "errors"

var (
	// ErrInvalidTransition is wrapped by every rejected state machine move.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrCurrencyMismatch is returned when an amount set has no entry for the line currency.
	ErrCurrencyMismatch = errors.New("currency mismatch")
	// ErrInvalidRate marks a malformed commission rate configuration.
	ErrInvalidRate = errors.New("invalid commission rate")
)

// ErrInsufficientFunds is returned when a guarded debit would take a balance below zero.
var ErrInsufficientFunds = errors.New("insufficient balance")
