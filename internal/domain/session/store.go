// Package session owns the per-player session registry.
package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/okian/sentinel/internal/domain/model"
	"github.com/okian/sentinel/pkg/logger"
	"github.com/okian/sentinel/pkg/metrics"
)

const defaultHistoryLimit = 50

// Store is the process-wide session registry. The map is guarded so
// membership checks are safe from any goroutine; the sessions themselves
// belong to the scheduler loop.
type Store struct {
	mu           sync.RWMutex
	sessions     map[int]*Session
	historyLimit int
	now          func() time.Time
	logger       logger.Logger
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions:     make(map[int]*Session),
		historyLimit: defaultHistoryLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("session")
	}
	return s
}

// Create opens a session with full trust. A second session for the same
// player is refused with ErrSessionExists.
func (s *Store) Create(ctx context.Context, playerID int) (*Session, error) {
	if playerID <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPlayerID, playerID)
	}
	s.mu.Lock()
	if _, ok := s.sessions[playerID]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: player %d", ErrSessionExists, playerID)
	}
	sess := newSession(playerID, s.now(), s.historyLimit)
	s.sessions[playerID] = sess
	n := len(s.sessions)
	s.mu.Unlock()

	metrics.UpdateActiveSessions(n)
	s.logger.Info(ctx, "session created", logger.PlayerID(playerID))
	return sess, nil
}

// Get returns the player's session or nil.
func (s *Store) Get(playerID int) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[playerID]
}

// Exists reports whether the player has a session.
func (s *Store) Exists(playerID int) bool {
	return s.Get(playerID) != nil
}

// Destroy removes the session and returns its summary. Once it returns,
// Get yields nil for the player.
func (s *Store) Destroy(ctx context.Context, playerID int) (model.SessionSummary, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[playerID]
	if ok {
		delete(s.sessions, playerID)
	}
	n := len(s.sessions)
	s.mu.Unlock()

	if !ok {
		return model.SessionSummary{}, false
	}
	sum := sess.summary(s.now())
	metrics.UpdateActiveSessions(n)
	metrics.RecordSessionFinalTrust(sum.FinalTrust)
	s.logger.Info(ctx, "session destroyed",
		logger.PlayerID(playerID),
		logger.Float64("final_trust", sum.FinalTrust),
		logger.Int("detections", sum.Detections),
	)
	return sum, true
}

// IDs returns every player with a session, ascending.
func (s *Store) IDs() []int {
	s.mu.RLock()
	ids := make([]int, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Len returns the number of open sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
