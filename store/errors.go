package store

import "errors"

// Common store errors.
var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("record not found")
)
