package enforcement

import (
	"context"
	"sync"
	"time"

	"github.com/okian/sentinel/pkg/logger"
)

// LogEnforcer logs commands and keeps bans in process memory. Used when no
// Redis is configured; bans do not survive a restart.
type LogEnforcer struct {
	mu   sync.Mutex
	bans map[int]time.Time
	now  func() time.Time
	log  logger.Logger
}

// NewLogEnforcer returns an enforcer with no bans.
func NewLogEnforcer(now func() time.Time) *LogEnforcer {
	if now == nil {
		now = time.Now
	}
	return &LogEnforcer{bans: make(map[int]time.Time), now: now, log: logger.Get().Named("enforcement")}
}

func (e *LogEnforcer) Ban(ctx context.Context, playerID int, reason, issuer string, d time.Duration) error {
	var until time.Time
	if d > 0 {
		until = e.now().Add(d)
	}
	e.mu.Lock()
	e.bans[playerID] = until
	e.mu.Unlock()

	e.log.Warn(ctx, "player banned",
		logger.PlayerID(playerID),
		logger.String("reason", reason),
		logger.String("issuer", issuer),
		logger.Duration("duration", d),
	)
	return nil
}

func (e *LogEnforcer) Disconnect(ctx context.Context, playerID int, msg string) error {
	e.log.Warn(ctx, "player disconnected", logger.PlayerID(playerID), logger.String("reason", msg))
	return nil
}

// IsBanned reports a ban that has not expired. Zero expiry means permanent.
func (e *LogEnforcer) IsBanned(_ context.Context, playerID int) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	until, ok := e.bans[playerID]
	if !ok {
		return false, nil
	}
	if !until.IsZero() && !e.now().Before(until) {
		delete(e.bans, playerID)
		return false, nil
	}
	return true, nil
}
