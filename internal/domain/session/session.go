package session

import (
	"maps"
	"time"

	"github.com/okian/sentinel/internal/domain/model"
)

// MaxTrust is the score of a fresh session.
const MaxTrust = 100.0

// Session is the mutable per-player state. Its methods are not synchronized:
// a Session is only touched from the scheduler loop.
type Session struct {
	playerID  int
	createdAt time.Time
	trust     float64
	token     *model.Token
	history   []model.Detection
	seen      map[string]struct{}
	scored    []string
	evidence  map[string]struct{}
	limit     int
	errors    map[string]int
	enforced  string
	warned    bool
}

func newSession(id int, at time.Time, limit int) *Session {
	return &Session{
		playerID:  id,
		createdAt: at,
		trust:     MaxTrust,
		history:   make([]model.Detection, 0, limit),
		seen:      make(map[string]struct{}, limit),
		evidence:  make(map[string]struct{}, limit),
		limit:     limit,
		errors:    make(map[string]int),
	}
}

// PlayerID returns the owning player.
func (s *Session) PlayerID() int { return s.playerID }

// CreatedAt returns when the session was opened.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// TrustScore returns the current score in [0, MaxTrust].
func (s *Session) TrustScore() float64 { return s.trust }

// Penalize lowers the trust score by impact, never below zero, and returns
// the new score. A non-positive impact leaves the score unchanged.
func (s *Session) Penalize(impact float64) float64 {
	if impact <= 0 {
		return s.trust
	}
	s.trust -= impact
	if s.trust < 0 {
		s.trust = 0
	}
	return s.trust
}

// ResetTrust restores the score to MaxTrust and clears the warning and
// enforcement marks.
func (s *Session) ResetTrust() {
	s.trust = MaxTrust
	s.warned = false
	s.enforced = ""
}

// Record appends d to the history, evicting the oldest entry at the limit.
// It returns false if a detection with the same ID was already recorded.
func (s *Session) Record(d model.Detection) bool {
	if _, dup := s.seen[d.ID]; dup {
		return false
	}
	if len(s.history) >= s.limit {
		delete(s.seen, s.history[0].ID)
		copy(s.history, s.history[1:])
		s.history = s.history[:len(s.history)-1]
	}
	s.history = append(s.history, d)
	s.seen[d.ID] = struct{}{}
	return true
}

// EvidenceScored reports whether a detection resting on key was already
// scored. An empty key is never scored.
func (s *Session) EvidenceScored(key string) bool {
	_, ok := s.evidence[key]
	return key != "" && ok
}

// MarkScored remembers key as scored, forgetting the oldest key at the
// history limit. Trust resets do not clear it.
func (s *Session) MarkScored(key string) {
	if key == "" || s.EvidenceScored(key) {
		return
	}
	if len(s.scored) >= s.limit {
		delete(s.evidence, s.scored[0])
		copy(s.scored, s.scored[1:])
		s.scored = s.scored[:len(s.scored)-1]
	}
	s.scored = append(s.scored, key)
	s.evidence[key] = struct{}{}
}

// History returns a copy of the detection history, oldest first.
func (s *Session) History() []model.Detection {
	out := make([]model.Detection, len(s.history))
	copy(out, s.history)
	return out
}

// IncError bumps the named error counter.
func (s *Session) IncError(kind string) { s.errors[kind]++ }

// Errors returns a copy of the error counters.
func (s *Session) Errors() map[string]int { return maps.Clone(s.errors) }

// SetToken stores the most recently issued token.
func (s *Session) SetToken(tok model.Token) { s.token = &tok }

// Token returns the active token, or nil.
func (s *Session) Token() *model.Token {
	if s.token == nil {
		return nil
	}
	tok := *s.token
	return &tok
}

// MarkEnforced records the action taken against the player.
func (s *Session) MarkEnforced(action string) { s.enforced = action }

// Enforced returns the recorded action, or "".
func (s *Session) Enforced() string { return s.enforced }

// MarkWarned records a warning and reports whether this is the first one.
func (s *Session) MarkWarned() bool {
	first := !s.warned
	s.warned = true
	return first
}

func (s *Session) summary(end time.Time) model.SessionSummary {
	validated := 0
	for _, d := range s.history {
		if d.ServerValidated {
			validated++
		}
	}
	return model.SessionSummary{
		PlayerID:   s.playerID,
		StartedAt:  s.createdAt,
		EndedAt:    end,
		FinalTrust: s.trust,
		Detections: len(s.history),
		Validated:  validated,
		Errors:     s.Errors(),
		Enforced:   s.enforced,
	}
}
