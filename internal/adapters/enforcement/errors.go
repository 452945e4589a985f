package enforcement

import "errors"

var (
	// ErrEnforce wraps failures to deliver an enforcement command.
	ErrEnforce = errors.New("enforcement failed")
	// ErrDropped is returned when the dispatch queue refuses a command.
	ErrDropped = errors.New("enforcement command dropped")
)
