package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when no archived run has the given ID.
	ErrNotFound = errors.New("run not found")
)
