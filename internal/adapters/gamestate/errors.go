package gamestate

import "errors"

var (
	// ErrEntityUnavailable is returned when no fresh state exists for a player.
	ErrEntityUnavailable = errors.New("entity state unavailable")
	// ErrRaycast wraps every raycast transport failure.
	ErrRaycast = errors.New("raycast failed")
)
