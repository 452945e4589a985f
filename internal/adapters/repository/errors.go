package repository

import "errors"

// Sentinel errors for persistence.
var (
	// ErrPersist wraps every write failure.
	ErrPersist = errors.New("persistence failure")
	// ErrDropped is returned when the dispatch queue refuses a write.
	ErrDropped = errors.New("persistence write dropped")
)
