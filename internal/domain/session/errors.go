package session

import "errors"

// Sentinel errors for session lifecycle.
var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidPlayerID = errors.New("invalid player id")

	// ErrBanned refuses a connect for a player with an active ban.
	ErrBanned = errors.New("player is banned")
)
