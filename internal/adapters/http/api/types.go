package api

import (
	"time"

	"github.com/okian/sentinel/internal/domain/model"
	"github.com/okian/sentinel/internal/domain/netmonitor"
	"github.com/okian/sentinel/internal/domain/statehistory"
)

// ClientReport is a detection a client-side probe claims to have seen.
type ClientReport struct {
	ID      string
	Type    model.DetectionType
	Reason  string
	Payload map[string]any
}

// SessionView is the read model for GET /v1/sessions/{id}.
type SessionView struct {
	PlayerID   int                   `json:"player_id"`
	TrustScore float64               `json:"trust_score"`
	CreatedAt  time.Time             `json:"created_at"`
	Enforced   string                `json:"enforced,omitempty"`
	Errors     map[string]int        `json:"errors,omitempty"`
	History    []model.Detection     `json:"history"`
	Snapshots  int                   `json:"snapshots"`
	Metrics    *statehistory.Metrics `json:"metrics,omitempty"`
	Network    *netmonitor.Counts    `json:"network,omitempty"`
}

type playerRequest struct {
	PlayerID int `json:"player_id" validate:"required,gt=0"`
}

type tokenBody struct {
	IssuedAt  int64  `json:"issued_at" validate:"required,gt=0"`
	Signature string `json:"signature" validate:"required"`
}

func (t tokenBody) model() model.Token {
	return model.Token{IssuedAt: t.IssuedAt, Signature: t.Signature}
}

type eventRequest struct {
	PlayerID int       `json:"player_id" validate:"required,gt=0"`
	Token    tokenBody `json:"token" validate:"required"`
	Event    string    `json:"event" validate:"required,max=128"`
	Source   string    `json:"source" validate:"max=128"`
}

type reportRequest struct {
	ID       string         `json:"id" validate:"max=64"`
	PlayerID int            `json:"player_id" validate:"required,gt=0"`
	Token    tokenBody      `json:"token" validate:"required"`
	Type     string         `json:"type" validate:"required,max=64"`
	Reason   string         `json:"reason" validate:"max=512"`
	Payload  map[string]any `json:"payload"`
}

type stateEntry struct {
	PlayerID int               `json:"player_id" validate:"required,gt=0"`
	State    model.PlayerState `json:"state"`
	// ObservedAt is the game server's unix-millisecond stamp; zero means now.
	ObservedAt int64 `json:"observed_at,omitempty" validate:"omitempty,gt=0"`
}

type gameStateRequest struct {
	States []stateEntry `json:"states" validate:"required,min=1,max=1024,dive"`
}

type tokenResponse struct {
	PlayerID int         `json:"player_id"`
	Token    model.Token `json:"token"`
}

type ackResponse struct {
	Status   string `json:"status"`
	Accepted bool   `json:"accepted"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
