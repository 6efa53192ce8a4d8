package repository

import "errors"

var (
	// ErrNotFound is returned when a lookup matches nothing
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique key (seller, item line, payout id) already exists
	ErrDuplicate = errors.New("duplicate")
	// ErrTransactionConflict marks a serialization failure that is safe to retry from Begin
	ErrTransactionConflict = errors.New("transaction conflict")
)
