package trust

import (
	"context"
	"time"

	"github.com/okian/sentinel/internal/domain/model"
	"github.com/okian/sentinel/internal/domain/session"
	"github.com/okian/sentinel/internal/scheduler"
)

// Alert channels.
const (
	ChannelDetections  = "detections"
	ChannelWarnings    = "warnings"
	ChannelEnforcement = "enforcement"
)

// Sessions resolves a player to its live session.
type Sessions interface {
	Get(playerID int) *session.Session
}

// Persister stores detections and session summaries. Calls must not block
// on I/O.
type Persister interface {
	StoreDetection(ctx context.Context, d model.Detection) error
	SaveSessionSummary(ctx context.Context, s model.SessionSummary) error
}

// Alerter delivers operator notifications. Best effort.
type Alerter interface {
	Notify(ctx context.Context, channel string, a model.Alert) error
}

// Enforcer carries out escalation decisions.
type Enforcer interface {
	Ban(ctx context.Context, playerID int, reason, issuer string, duration time.Duration) error
	Disconnect(ctx context.Context, playerID int, message string) error
}

// StateEvidence exposes the state tracker's view of a player.
type StateEvidence interface {
	LatestPair(playerID int) (previous, current *model.Snapshot)
	Validate(playerID int, current, previous *model.Snapshot) (bool, []model.Finding)
}

// NetworkEvidence exposes the network monitor's counters.
type NetworkEvidence interface {
	Exceeded(playerID int, eventName string) (perEvent, total bool)
	Evidence(playerID int, t model.DetectionType, eventName string) string
}

// RaycastRequest asks the game server whether the straight path between two
// points is obstructed.
type RaycastRequest struct {
	PlayerID int           `json:"player_id"`
	From     model.Vector3 `json:"from"`
	To       model.Vector3 `json:"to"`
}

// RaycastResult is the game server's answer.
type RaycastResult struct {
	Blocked bool  `json:"blocked"`
	Err     error `json:"-"`
}

// Raycaster issues a raycast and calls reply at most once, from any
// goroutine. It must not block.
type Raycaster interface {
	Raycast(ctx context.Context, req RaycastRequest, reply func(RaycastResult))
}

// Scheduler defers work onto the loop the processor runs on.
type Scheduler interface {
	After(delay time.Duration, fn scheduler.Func) (cancel func())
	Post(name string, fn scheduler.Func) bool
}

type nopPersister struct{}

func (nopPersister) StoreDetection(context.Context, model.Detection) error          { return nil }
func (nopPersister) SaveSessionSummary(context.Context, model.SessionSummary) error { return nil }

type nopAlerter struct{}

func (nopAlerter) Notify(context.Context, string, model.Alert) error { return nil }

type nopEnforcer struct{}

func (nopEnforcer) Ban(context.Context, int, string, string, time.Duration) error { return nil }
func (nopEnforcer) Disconnect(context.Context, int, string) error                 { return nil }
