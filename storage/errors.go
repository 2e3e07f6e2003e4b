package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when a label record is not found.
	ErrNotFound = errors.New("label record not found")
)
