package errors

import "errors"

var (
	// ErrNotFound is returned when a referenced id does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument marks validation failures; nothing was mutated.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict marks uniqueness violations (duplicate external id).
	ErrConflict = errors.New("conflict")
)
