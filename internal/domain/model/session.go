package model

import "time"

// Token binds a client message to a player and an issue time.
type Token struct {
	IssuedAt  int64  `json:"issued_at"`
	Signature string `json:"signature"`
}

// IsZero reports whether either field is missing.
func (t Token) IsZero() bool {
	return t.IssuedAt == 0 || t.Signature == ""
}

// SessionSummary is what survives a session after disconnect.
type SessionSummary struct {
	PlayerID   int            `json:"player_id"`
	StartedAt  time.Time      `json:"started_at"`
	EndedAt    time.Time      `json:"ended_at"`
	FinalTrust float64        `json:"final_trust"`
	Detections int            `json:"detections"`
	Validated  int            `json:"validated"`
	Errors     map[string]int `json:"errors,omitempty"`
	Enforced   string         `json:"enforced,omitempty"`
}
