package statehistory

import "errors"

// ErrIncompleteState marks a capture that could not be taken. It is a skip,
// never a detection.
var ErrIncompleteState = errors.New("incomplete state")
