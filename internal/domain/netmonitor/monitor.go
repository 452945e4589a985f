// Package netmonitor tracks per-player event frequency and short event
// sequences to catch spam and scripted behaviour.
package netmonitor

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/okian/sentinel/internal/domain/model"
	"github.com/okian/sentinel/pkg/logger"
	"github.com/okian/sentinel/pkg/metrics"
)

const (
	defaultRecentDepth   = 10
	defaultWindowHistory = 5
	defaultMinMatches    = 3
	unknownSource        = "unknown"
)

// Sessions answers which players are connected.
type Sessions interface {
	Exists(playerID int) bool
}

// FindingSink receives findings produced by Track and AnalyzePatterns.
type FindingSink func(ctx context.Context, playerID int, f model.Finding)

// Limits bound event volume per window.
type Limits struct {
	EventSpam      int
	PlayerEvents   int
	ResourceEvents int
	Window         time.Duration
}

// DefaultLimits returns the built-in limits.
func DefaultLimits() Limits {
	return Limits{EventSpam: 30, PlayerEvents: 200, ResourceEvents: 100, Window: time.Minute}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.EventSpam <= 0 {
		l.EventSpam = d.EventSpam
	}
	if l.PlayerEvents <= 0 {
		l.PlayerEvents = d.PlayerEvents
	}
	if l.ResourceEvents <= 0 {
		l.ResourceEvents = d.ResourceEvents
	}
	if l.Window <= 0 {
		l.Window = d.Window
	}
	return l
}

// Window is a closed counting window kept for trend inspection.
type Window struct {
	Start     time.Time      `json:"start"`
	End       time.Time      `json:"end"`
	Total     int            `json:"total"`
	PerEvent  map[string]int `json:"per_event"`
	PerSource map[string]int `json:"per_source"`
}

// Counts is the live view of the current window.
type Counts struct {
	Start     time.Time      `json:"start"`
	Total     int            `json:"total"`
	PerEvent  map[string]int `json:"per_event"`
	PerSource map[string]int `json:"per_source"`
	Recent    []string       `json:"recent"`
}

type player struct {
	start     time.Time
	total     int
	perEvent  map[string]int
	perSource map[string]int
	recent    []string
	windows   []Window

	// once-per-window markers
	spamFlagged  map[string]bool
	totalFlagged bool
	sourceWarned map[string]bool
}

func newPlayer(start time.Time, depth int) *player {
	return &player{
		start:        start,
		perEvent:     make(map[string]int),
		perSource:    make(map[string]int),
		recent:       make([]string, 0, depth),
		spamFlagged:  make(map[string]bool),
		sourceWarned: make(map[string]bool),
	}
}

// Monitor owns every per-player event counter. It is not synchronized; all
// calls come from the scheduler loop.
type Monitor struct {
	sessions      Sessions
	sink          FindingSink
	limits        Limits
	recentDepth   int
	windowHistory int
	patterns      []Pattern
	minMatches    int
	players       map[int]*player
	now           func() time.Time
	logger        logger.Logger
}

// New creates a Monitor.
func New(sessions Sessions, opts ...Option) *Monitor {
	m := &Monitor{
		sessions:      sessions,
		sink:          func(context.Context, int, model.Finding) {},
		limits:        DefaultLimits(),
		recentDepth:   defaultRecentDepth,
		windowHistory: defaultWindowHistory,
		patterns:      compilePatterns(DefaultPatterns()),
		minMatches:    defaultMinMatches,
		players:       make(map[int]*player),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logger.Get().Named("netmonitor")
	}
	return m
}

// Limits returns the limits in effect.
func (m *Monitor) Limits() Limits { return m.limits }

// Track counts one event and reports whether it is within limits. Every
// call over a limit returns false; the matching finding is emitted once per
// event name (EventSpam) or once per window (TotalEventSpam). Per-source
// overruns are only logged.
func (m *Monitor) Track(ctx context.Context, playerID int, eventName, source string) bool {
	if eventName == "" {
		metrics.RecordEventBlocked("malformed")
		return false
	}
	if source == "" {
		source = unknownSource
	}
	now := m.now()
	p, ok := m.players[playerID]
	if !ok {
		p = newPlayer(now, m.recentDepth)
		m.players[playerID] = p
	} else if now.Sub(p.start) >= m.limits.Window {
		m.rotate(p, now)
	}

	p.perEvent[eventName]++
	p.perSource[source]++
	p.total++
	if len(p.recent) >= m.recentDepth {
		copy(p.recent, p.recent[1:])
		p.recent = p.recent[:len(p.recent)-1]
	}
	p.recent = append(p.recent, eventName)
	metrics.RecordEventTracked()

	allowed := true
	if n := p.perEvent[eventName]; n > m.limits.EventSpam {
		allowed = false
		metrics.RecordEventBlocked("event_spam")
		if !p.spamFlagged[eventName] {
			p.spamFlagged[eventName] = true
			m.emit(ctx, playerID, model.Finding{
				Type:     model.EventSpam,
				Severity: model.SeverityMedium,
				Reason:   fmt.Sprintf("%q seen %d times in one window (limit %d)", eventName, n, m.limits.EventSpam),
				Detail:   map[string]any{"event": eventName, "count": n, "limit": m.limits.EventSpam, "source": source},
				Evidence: windowEvidence(model.EventSpam, eventName, p.start),
			})
		}
	}
	if p.total > m.limits.PlayerEvents {
		allowed = false
		metrics.RecordEventBlocked("total_event_spam")
		if !p.totalFlagged {
			p.totalFlagged = true
			m.emit(ctx, playerID, model.Finding{
				Type:     model.TotalEventSpam,
				Severity: model.SeverityHigh,
				Reason:   fmt.Sprintf("%d events in one window (limit %d)", p.total, m.limits.PlayerEvents),
				Detail:   map[string]any{"count": p.total, "limit": m.limits.PlayerEvents},
				Evidence: windowEvidence(model.TotalEventSpam, "", p.start),
			})
		}
	}
	if n := p.perSource[source]; n > m.limits.ResourceEvents && !p.sourceWarned[source] {
		p.sourceWarned[source] = true
		metrics.RecordEventBlocked("resource_advisory")
		m.logger.Warn(ctx, "source over event limit",
			logger.PlayerID(playerID),
			logger.String("source", source),
			logger.Int("count", n),
			logger.Int("limit", m.limits.ResourceEvents),
		)
	}
	return allowed
}

func (m *Monitor) emit(ctx context.Context, playerID int, f model.Finding) {
	metrics.RecordFinding(string(f.Type))
	m.logger.Warn(ctx, "network anomaly",
		logger.PlayerID(playerID),
		logger.String("type", string(f.Type)),
		logger.String("reason", f.Reason),
	)
	m.sink(ctx, playerID, f)
}

// AnalyzePatterns scans every player's recent events for library patterns.
// A pattern seen at least minMatches times yields one SuspiciousEventSequence
// finding and clears that player's ring. Returns the number of findings.
func (m *Monitor) AnalyzePatterns(ctx context.Context) int {
	ids := slices.Sorted(maps.Keys(m.players))
	found := 0
	for _, id := range ids {
		p := m.players[id]
		for _, pat := range m.patterns {
			n := occurrences(p.recent, pat.Sequence)
			if n < m.minMatches {
				continue
			}
			metrics.RecordPatternMatch(pat.Name)
			m.emit(ctx, id, model.Finding{
				Type:     model.SuspiciousEventSequence,
				Severity: model.SeverityHigh,
				Reason:   fmt.Sprintf("pattern %s matched %d times", pat.Name, n),
				Detail: map[string]any{
					"pattern":  pat.Name,
					"sequence": slices.Clone(pat.Sequence),
					"matches":  n,
					"recent":   slices.Clone(p.recent),
				},
			})
			p.recent = p.recent[:0]
			found++
			break
		}
	}
	return found
}

// Cleanup purges disconnected players and rotates elapsed windows. Returns
// the number of players removed.
func (m *Monitor) Cleanup(ctx context.Context) int {
	now := m.now()
	removed := 0
	for id, p := range m.players {
		if !m.sessions.Exists(id) {
			delete(m.players, id)
			removed++
			continue
		}
		if now.Sub(p.start) >= m.limits.Window {
			m.rotate(p, now)
		}
	}
	if removed > 0 {
		m.logger.Debug(ctx, "network monitor cleanup", logger.Int("removed", removed), logger.Int("tracked", len(m.players)))
	}
	return removed
}

func (m *Monitor) rotate(p *player, now time.Time) {
	p.windows = append(p.windows, Window{
		Start:     p.start,
		End:       now,
		Total:     p.total,
		PerEvent:  p.perEvent,
		PerSource: p.perSource,
	})
	if extra := len(p.windows) - m.windowHistory; extra > 0 {
		p.windows = slices.Delete(p.windows, 0, extra)
	}
	p.start = now
	p.total = 0
	p.perEvent = make(map[string]int)
	p.perSource = make(map[string]int)
	p.totalFlagged = false
	clear(p.spamFlagged)
	clear(p.sourceWarned)
	metrics.RecordWindowRotated()
}

// Evidence names the window counter a spam verdict of type t rests on. An
// empty eventName picks the first event over its limit. Returns "" when the
// player has no window.
func (m *Monitor) Evidence(playerID int, t model.DetectionType, eventName string) string {
	p, ok := m.players[playerID]
	if !ok {
		return ""
	}
	if t == model.EventSpam && eventName == "" {
		for _, ev := range slices.Sorted(maps.Keys(p.perEvent)) {
			if p.perEvent[ev] > m.limits.EventSpam {
				eventName = ev
				break
			}
		}
	}
	return windowEvidence(t, eventName, p.start)
}

func windowEvidence(t model.DetectionType, eventName string, start time.Time) string {
	kind := string(t)
	if eventName != "" {
		kind += "/" + eventName
	}
	return model.EvidenceKey(kind, start)
}

// Exceeded reports whether the current window is over the per-event limit
// for eventName (any event when empty) and over the total limit.
func (m *Monitor) Exceeded(playerID int, eventName string) (perEvent, total bool) {
	p, ok := m.players[playerID]
	if !ok {
		return false, false
	}
	if eventName != "" {
		perEvent = p.perEvent[eventName] > m.limits.EventSpam
	} else {
		for _, n := range p.perEvent {
			if n > m.limits.EventSpam {
				perEvent = true
				break
			}
		}
	}
	return perEvent, p.total > m.limits.PlayerEvents
}

// Counts returns a copy of the current window.
func (m *Monitor) Counts(playerID int) (Counts, bool) {
	p, ok := m.players[playerID]
	if !ok {
		return Counts{}, false
	}
	return Counts{
		Start:     p.start,
		Total:     p.total,
		PerEvent:  maps.Clone(p.perEvent),
		PerSource: maps.Clone(p.perSource),
		Recent:    slices.Clone(p.recent),
	}, true
}

// Windows returns the retained closed windows, oldest first.
func (m *Monitor) Windows(playerID int) []Window {
	p, ok := m.players[playerID]
	if !ok {
		return nil
	}
	return slices.Clone(p.windows)
}

// Forget drops the player's counters immediately.
func (m *Monitor) Forget(playerID int) {
	delete(m.players, playerID)
}

// Tracked reports whether any counter is held for the player.
func (m *Monitor) Tracked(playerID int) bool {
	_, ok := m.players[playerID]
	return ok
}
