// Package app wires the detection engine, its collaborators and the HTTP
// surface into one supervised process.
package app

import (
	"context"
	"time"

	"github.com/okian/sentinel/internal/adapters/enforcement"
	"github.com/okian/sentinel/internal/adapters/gamestate"
	"github.com/okian/sentinel/internal/adapters/http/api"
	"github.com/okian/sentinel/internal/domain/model"
	"github.com/okian/sentinel/internal/domain/netmonitor"
	"github.com/okian/sentinel/internal/domain/session"
	"github.com/okian/sentinel/internal/domain/statehistory"
	"github.com/okian/sentinel/internal/domain/token"
	"github.com/okian/sentinel/internal/domain/trust"
	"github.com/okian/sentinel/internal/scheduler"
	"github.com/okian/sentinel/pkg/logger"
)

const statsTimeout = time.Second

// Engine is the inbound facade over the domain components. Every method
// that touches per-player state runs on the loop; token checks and the
// game-state cache are safe to use from any goroutine.
type Engine struct {
	loop     *scheduler.Loop
	tokens   *token.Service
	sessions *session.Store
	tracker  *statehistory.Tracker
	monitor  *netmonitor.Monitor
	proc     *trust.Processor
	cache    *gamestate.Cache
	bans     enforcement.Enforcer
	log      logger.Logger
}

var _ api.Engine = (*Engine)(nil)

// Connect opens a session and returns its first token. Banned players are
// refused; a failed ban lookup lets the player in.
func (e *Engine) Connect(ctx context.Context, playerID int) (model.Token, error) {
	if playerID <= 0 {
		return model.Token{}, session.ErrInvalidPlayerID
	}
	banned, err := e.bans.IsBanned(ctx, playerID)
	if err != nil {
		e.log.Warn(ctx, "ban lookup failed", logger.PlayerID(playerID), logger.Error(err))
	}
	if banned {
		return model.Token{}, session.ErrBanned
	}

	var tok model.Token
	callErr := e.loop.Call(ctx, func(ctx context.Context) {
		var sess *session.Session
		sess, err = e.sessions.Create(ctx, playerID)
		if err != nil {
			return
		}
		tok, err = e.tokens.Issue(playerID)
		if err != nil {
			e.sessions.Destroy(ctx, playerID)
			return
		}
		sess.SetToken(tok)
	})
	if callErr != nil {
		return model.Token{}, callErr
	}
	return tok, err
}

// Disconnect destroys the session and every structure the tracker, monitor
// and cache hold for the player, then persists the summary.
func (e *Engine) Disconnect(ctx context.Context, playerID int) (model.SessionSummary, error) {
	var (
		sum model.SessionSummary
		ok  bool
	)
	err := e.loop.Call(ctx, func(ctx context.Context) {
		sum, ok = e.sessions.Destroy(ctx, playerID)
		if !ok {
			return
		}
		e.tracker.Forget(playerID)
		e.monitor.Forget(playerID)
		e.proc.SessionEnded(ctx, sum)
	})
	if err != nil {
		return model.SessionSummary{}, err
	}
	if !ok {
		return model.SessionSummary{}, session.ErrSessionNotFound
	}
	e.cache.Remove(playerID)
	return sum, nil
}

// Session returns the read model for one player.
func (e *Engine) Session(ctx context.Context, playerID int) (api.SessionView, error) {
	var (
		view  api.SessionView
		found bool
	)
	err := e.loop.Call(ctx, func(context.Context) {
		sess := e.sessions.Get(playerID)
		if sess == nil {
			return
		}
		found = true
		view = api.SessionView{
			PlayerID:   playerID,
			TrustScore: sess.TrustScore(),
			CreatedAt:  sess.CreatedAt(),
			Enforced:   sess.Enforced(),
			Errors:     sess.Errors(),
			History:    sess.History(),
			Snapshots:  len(e.tracker.History(playerID)),
		}
		if m, ok := e.tracker.Metrics(playerID); ok {
			view.Metrics = &m
		}
		if c, ok := e.monitor.Counts(playerID); ok {
			view.Network = &c
		}
	})
	if err != nil {
		return api.SessionView{}, err
	}
	if !found {
		return api.SessionView{}, session.ErrSessionNotFound
	}
	return view, nil
}

// ResetTrust restores a session's trust to the maximum.
func (e *Engine) ResetTrust(ctx context.Context, playerID int) error {
	var err error
	if callErr := e.loop.Call(ctx, func(ctx context.Context) {
		err = e.proc.Reset(ctx, playerID)
	}); callErr != nil {
		return callErr
	}
	return err
}

// IssueToken signs a fresh token for a connected player.
func (e *Engine) IssueToken(ctx context.Context, playerID int) (model.Token, error) {
	var (
		tok model.Token
		err error
	)
	if callErr := e.loop.Call(ctx, func(context.Context) {
		sess := e.sessions.Get(playerID)
		if sess == nil {
			err = session.ErrSessionNotFound
			return
		}
		if tok, err = e.tokens.Issue(playerID); err == nil {
			sess.SetToken(tok)
		}
	}); callErr != nil {
		return model.Token{}, callErr
	}
	return tok, err
}

// TrackEvent authenticates the message and counts the event. A rejected
// token leaves the session untouched.
func (e *Engine) TrackEvent(ctx context.Context, playerID int, tok model.Token, event, source string) (bool, error) {
	if err := e.tokens.Check(ctx, playerID, tok); err != nil {
		return false, err
	}
	var (
		accepted bool
		err      error
	)
	if callErr := e.loop.Call(ctx, func(ctx context.Context) {
		sess := e.sessions.Get(playerID)
		if sess == nil {
			err = session.ErrSessionNotFound
			return
		}
		if accepted = e.monitor.Track(ctx, playerID, event, source); !accepted {
			sess.IncError("event_blocked")
		}
	}); callErr != nil {
		return false, callErr
	}
	return accepted, err
}

// Report authenticates a client detection and hands it to the processor.
// The result is true only when server-side evidence confirmed it.
func (e *Engine) Report(ctx context.Context, playerID int, tok model.Token, r api.ClientReport) (bool, error) {
	if err := e.tokens.Check(ctx, playerID, tok); err != nil {
		return false, err
	}
	var (
		validated bool
		err       error
	)
	if callErr := e.loop.Call(ctx, func(ctx context.Context) {
		sess := e.sessions.Get(playerID)
		if sess == nil {
			err = session.ErrSessionNotFound
			return
		}
		validated = e.proc.Process(ctx, sess, trust.Report{
			ID:             r.ID,
			Type:           r.Type,
			Reason:         r.Reason,
			Severity:       model.SeverityMedium,
			Payload:        r.Payload,
			ClientReported: true,
		})
	}); callErr != nil {
		return false, callErr
	}
	return validated, err
}

// PushState stores authoritative entity states from the game server.
func (e *Engine) PushState(_ context.Context, states map[int]model.Observation) error {
	e.cache.UpdateBatch(states)
	return nil
}

// AuthorizeServer checks a game server's bearer credential.
func (e *Engine) AuthorizeServer(ctx context.Context, header string) error {
	return e.tokens.AuthorizeServer(ctx, header)
}

// GetStats reports engine counters for /stats.
func (e *Engine) GetStats() map[string]any {
	stats := map[string]any{
		"replay_cache":    e.tokens.CacheSize(),
		"gamestate_cache": e.cache.Len(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()

	var sessions, tracked, monitored, pending int
	err := e.loop.Call(ctx, func(context.Context) {
		ids := e.sessions.IDs()
		sessions = len(ids)
		for _, id := range ids {
			if e.tracker.Tracked(id) {
				tracked++
			}
			if e.monitor.Tracked(id) {
				monitored++
			}
		}
		pending = e.proc.Pending()
	})
	if err != nil {
		e.log.Debug(ctx, "stats without loop counters", logger.Error(err))
		return stats
	}
	stats["sessions"] = sessions
	stats["state_tracked"] = tracked
	stats["network_tracked"] = monitored
	stats["pending_raycasts"] = pending
	return stats
}
