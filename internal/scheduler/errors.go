package scheduler

import "errors"

// Sentinel errors for the scheduler.
var (
	ErrClosed  = errors.New("scheduler closed")
	ErrRunning = errors.New("scheduler already running")
)
