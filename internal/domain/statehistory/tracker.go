// Package statehistory keeps a bounded ring of recent state snapshots per
// player and classifies each transition as plausible or anomalous.
package statehistory

import (
	"context"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/okian/sentinel/internal/domain/model"
	"github.com/okian/sentinel/pkg/logger"
	"github.com/okian/sentinel/pkg/metrics"
)

const (
	defaultHistoryDepth = 10
	defaultMetricDepth  = 20

	// speed averaging weights
	emaKeep = 0.9
	emaNew  = 0.1
)

// GameState reads a player's current entity state and the time the game
// server observed it.
type GameState interface {
	PlayerState(ctx context.Context, playerID int) (model.PlayerState, time.Time, error)
}

// Sessions answers which players are connected.
type Sessions interface {
	Exists(playerID int) bool
	IDs() []int
}

// FindingSink receives findings produced by Check.
type FindingSink func(ctx context.Context, playerID int, f model.Finding)

// Metrics is the rolling view of one player's movement and transitions.
type Metrics struct {
	AvgSpeed float64                                  `json:"avg_speed"`
	MaxSpeed float64                                  `json:"max_speed"`
	Samples  int                                      `json:"samples"`
	Series   map[model.MetricKind][]model.MetricRecord `json:"series,omitempty"`
}

type player struct {
	ring     []*model.Snapshot
	series   map[model.MetricKind][]model.MetricRecord
	avgSpeed float64
	maxSpeed float64
	samples  int
}

// lastChange returns the newest record of kind stamped strictly before t.
func (p *player) lastChange(kind model.MetricKind, before time.Time) (time.Time, bool) {
	if p == nil {
		return time.Time{}, false
	}
	recs := p.series[kind]
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].At.Before(before) {
			return recs[i].At, true
		}
	}
	return time.Time{}, false
}

// Tracker owns every per-player snapshot ring and metric series. It is not
// synchronized; all calls come from the scheduler loop.
type Tracker struct {
	game        GameState
	sessions    Sessions
	sink        FindingSink
	limits      Limits
	depth       int
	metricDepth int
	players     map[int]*player
	now         func() time.Time
	logger      logger.Logger
}

// New creates a Tracker reading state from game and liveness from sessions.
func New(game GameState, sessions Sessions, opts ...Option) *Tracker {
	t := &Tracker{
		game:        game,
		sessions:    sessions,
		sink:        func(context.Context, int, model.Finding) {},
		limits:      DefaultLimits(),
		depth:       defaultHistoryDepth,
		metricDepth: defaultMetricDepth,
		players:     make(map[int]*player),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = logger.Get().Named("statehistory")
	}
	return t
}

// Limits returns the thresholds in effect.
func (t *Tracker) Limits() Limits { return t.limits }

func (t *Tracker) player(id int) *player {
	p, ok := t.players[id]
	if !ok {
		p = &player{
			ring:   make([]*model.Snapshot, 0, t.depth),
			series: make(map[model.MetricKind][]model.MetricRecord),
		}
		t.players[id] = p
	}
	return p
}

// Capture reads the player's state, appends it to the ring and returns it.
// The snapshot carries the observation time, not the capture time. An
// unavailable or malformed entity yields nil; that is a skip, not a
// detection. An observation no newer than the latest snapshot also yields nil.
func (t *Tracker) Capture(ctx context.Context, playerID int) *model.Snapshot {
	st, at, err := t.game.PlayerState(ctx, playerID)
	if err == nil && !finite(st) {
		err = ErrIncompleteState
	}
	if err != nil {
		metrics.RecordSnapshotSkipped()
		t.logger.Debug(ctx, "capture skipped", logger.PlayerID(playerID), logger.Error(err))
		return nil
	}

	if at.IsZero() {
		at = t.now()
	}
	if p, ok := t.players[playerID]; ok && len(p.ring) > 0 && !at.After(p.ring[len(p.ring)-1].CapturedAt) {
		t.logger.Debug(ctx, "capture skipped, no new observation", logger.PlayerID(playerID))
		return nil
	}

	snap := model.NewSnapshot(st, at)
	p := t.player(playerID)
	if len(p.ring) >= t.depth {
		copy(p.ring, p.ring[1:])
		p.ring = p.ring[:len(p.ring)-1]
	}
	p.ring = append(p.ring, snap)
	metrics.RecordSnapshotCaptured()
	return snap
}

func finite(st model.PlayerState) bool {
	for _, v := range []float64{
		st.Position.X, st.Position.Y, st.Position.Z,
		st.Velocity.X, st.Velocity.Y, st.Velocity.Z,
		st.Health, st.MaxHealth, st.Armor,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// UpdateMetrics folds the pair into the player's rolling metrics.
func (t *Tracker) UpdateMetrics(playerID int, current, previous *model.Snapshot) {
	if current == nil {
		return
	}
	p := t.player(playerID)
	if p.samples == 0 {
		p.avgSpeed = current.Speed
	} else {
		p.avgSpeed = emaKeep*p.avgSpeed + emaNew*current.Speed
	}
	p.maxSpeed = max(p.maxSpeed, current.Speed)
	p.samples++

	if previous == nil {
		return
	}
	elapsed := current.CapturedAt.Sub(previous.CapturedAt).Seconds()
	if elapsed <= 0 {
		return
	}
	at := current.CapturedAt
	if d := current.Health - previous.Health; d != 0 {
		t.push(p, model.MetricHealthChange, model.MetricRecord{Delta: d, Rate: d / elapsed, At: at})
	}
	if d := current.Armor - previous.Armor; d != 0 {
		t.push(p, model.MetricArmorChange, model.MetricRecord{Delta: d, Rate: d / elapsed, At: at})
	}
	if current.Weapon != previous.Weapon {
		t.push(p, model.MetricWeaponSwitch, changeRecord(p, model.MetricWeaponSwitch, at))
	}
	if current.Flags.InVehicle != previous.Flags.InVehicle {
		t.push(p, model.MetricStateTransition, changeRecord(p, model.MetricStateTransition, at))
	}
}

// changeRecord stores the gap since the previous change of the same kind.
func changeRecord(p *player, kind model.MetricKind, at time.Time) model.MetricRecord {
	rec := model.MetricRecord{At: at}
	if last, ok := p.lastChange(kind, at); ok {
		gap := at.Sub(last).Seconds()
		rec.Delta = gap
		if gap > 0 {
			rec.Rate = 1 / gap
		}
	}
	return rec
}

func (t *Tracker) push(p *player, kind model.MetricKind, rec model.MetricRecord) {
	recs := p.series[kind]
	if len(recs) >= t.metricDepth {
		recs = slices.Delete(recs, 0, len(recs)-t.metricDepth+1)
	}
	p.series[kind] = append(recs, rec)
}

// Check captures, validates against the previous snapshot and updates
// metrics. Findings go to the sink. Players without a session are skipped.
func (t *Tracker) Check(ctx context.Context, playerID int) (bool, []model.Finding) {
	if !t.sessions.Exists(playerID) {
		return true, nil
	}
	var prev *model.Snapshot
	if p, ok := t.players[playerID]; ok && len(p.ring) > 0 {
		prev = p.ring[len(p.ring)-1]
	}
	cur := t.Capture(ctx, playerID)
	if cur == nil {
		return true, nil
	}

	valid, findings := t.Validate(playerID, cur, prev)
	t.UpdateMetrics(playerID, cur, prev)
	for _, f := range findings {
		metrics.RecordFinding(string(f.Type))
		t.logger.Warn(ctx, "state anomaly",
			logger.PlayerID(playerID),
			logger.String("type", string(f.Type)),
			logger.String("severity", f.Severity.String()),
			logger.String("reason", f.Reason),
		)
		t.sink(ctx, playerID, f)
	}
	return valid, findings
}

// CheckAll runs Check for every connected player and returns the number of
// findings produced.
func (t *Tracker) CheckAll(ctx context.Context) int {
	start := time.Now()
	n := 0
	for _, id := range t.sessions.IDs() {
		_, fs := t.Check(ctx, id)
		n += len(fs)
	}
	metrics.RecordCheckCycleLatency(float64(time.Since(start).Microseconds()) / 1000)
	return n
}

// Cleanup drops every structure held for players without a session and
// returns how many players were removed.
func (t *Tracker) Cleanup(ctx context.Context) int {
	removed := 0
	for id := range t.players {
		if !t.sessions.Exists(id) {
			delete(t.players, id)
			removed++
		}
	}
	if removed > 0 {
		t.logger.Debug(ctx, "state history cleanup", logger.Int("removed", removed), logger.Int("tracked", len(t.players)))
	}
	return removed
}

// Forget drops the player's structures immediately.
func (t *Tracker) Forget(playerID int) {
	delete(t.players, playerID)
}

// Tracked reports whether any structure is held for the player.
func (t *Tracker) Tracked(playerID int) bool {
	_, ok := t.players[playerID]
	return ok
}

// History returns the player's snapshots, oldest first.
func (t *Tracker) History(playerID int) []*model.Snapshot {
	p, ok := t.players[playerID]
	if !ok {
		return nil
	}
	return slices.Clone(p.ring)
}

// LatestPair returns the two newest snapshots, previous first. Either may be
// nil when the ring is short.
func (t *Tracker) LatestPair(playerID int) (previous, current *model.Snapshot) {
	p, ok := t.players[playerID]
	if !ok || len(p.ring) == 0 {
		return nil, nil
	}
	current = p.ring[len(p.ring)-1]
	if len(p.ring) > 1 {
		previous = p.ring[len(p.ring)-2]
	}
	return previous, current
}

// Metrics returns a copy of the player's rolling metrics.
func (t *Tracker) Metrics(playerID int) (Metrics, bool) {
	p, ok := t.players[playerID]
	if !ok {
		return Metrics{}, false
	}
	series := make(map[model.MetricKind][]model.MetricRecord, len(p.series))
	for k, v := range maps.All(p.series) {
		series[k] = slices.Clone(v)
	}
	return Metrics{AvgSpeed: p.avgSpeed, MaxSpeed: p.maxSpeed, Samples: p.samples, Series: series}, true
}
