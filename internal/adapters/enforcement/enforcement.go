// Package enforcement delivers ban and disconnect decisions to the game
// server and answers whether a player is currently banned.
package enforcement

import (
	"context"
	"time"

	"github.com/okian/sentinel/internal/adapters/mq/queue"
	"github.com/okian/sentinel/pkg/metrics"
)

// Action names carried in a Command.
const (
	ActionBan        = "ban"
	ActionDisconnect = "disconnect"
)

// Command is what the game server receives.
type Command struct {
	Action      string     `json:"action"`
	PlayerID    int        `json:"player_id"`
	Reason      string     `json:"reason"`
	Issuer      string     `json:"issuer,omitempty"`
	DurationSec int64      `json:"duration_sec,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	At          time.Time  `json:"at"`
}

// Enforcer carries out enforcement and remembers bans.
type Enforcer interface {
	Ban(ctx context.Context, playerID int, reason, issuer string, d time.Duration) error
	Disconnect(ctx context.Context, playerID int, msg string) error
	IsBanned(ctx context.Context, playerID int) (bool, error)
}

// Enqueuer accepts deferred jobs without blocking.
type Enqueuer interface {
	Enqueue(ctx context.Context, j queue.Job) bool
}

// Async runs Ban and Disconnect on the dispatch workers. IsBanned stays
// synchronous.
type Async struct {
	next Enforcer
	q    Enqueuer
}

// NewAsync wraps next.
func NewAsync(next Enforcer, q Enqueuer) *Async {
	return &Async{next: next, q: q}
}

func (a *Async) Ban(ctx context.Context, playerID int, reason, issuer string, d time.Duration) error {
	return a.submit(ctx, "enforcement.ban", func(ctx context.Context) error {
		return a.next.Ban(ctx, playerID, reason, issuer, d)
	})
}

func (a *Async) Disconnect(ctx context.Context, playerID int, msg string) error {
	return a.submit(ctx, "enforcement.disconnect", func(ctx context.Context) error {
		return a.next.Disconnect(ctx, playerID, msg)
	})
}

func (a *Async) IsBanned(ctx context.Context, playerID int) (bool, error) {
	return a.next.IsBanned(ctx, playerID)
}

func (a *Async) submit(ctx context.Context, name string, run func(context.Context) error) error {
	if !a.q.Enqueue(ctx, queue.Job{Name: name, Run: run}) {
		metrics.RecordCollaboratorFailure("enforcement")
		return ErrDropped
	}
	return nil
}
