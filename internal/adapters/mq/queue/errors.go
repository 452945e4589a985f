package queue

import "errors"

// Sentinel errors for the dispatch queue.
var (
	ErrFull   = errors.New("dispatch queue full")
	ErrClosed = errors.New("dispatch queue closed")
)
