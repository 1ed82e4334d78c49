package shared

import "errors"

var (
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTxConflict indicates a serialization conflict that persisted after retry.
	ErrTxConflict = errors.New("transaction conflict")
)
