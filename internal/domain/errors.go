package domain

import "errors"

// Error kinds. Every failure of a business operation wraps exactly one of
// these so callers can classify it with errors.Is.
var (
	// ErrNotFound covers missing, not owned, and inactive records alike.
	ErrNotFound = errors.New("not found")

	// ErrConflict means the request is incompatible with the current state.
	ErrConflict = errors.New("conflict")

	// ErrValidation means the input itself is malformed.
	ErrValidation = errors.New("validation failed")
)
