// Package trust turns findings and client reports into scored detections
// and escalation decisions.
package trust

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/okian/sentinel/internal/domain/model"
	"github.com/okian/sentinel/internal/domain/session"
	"github.com/okian/sentinel/pkg/logger"
	"github.com/okian/sentinel/pkg/metrics"
)

// Escalation actions.
const (
	ActionWarn = "warn"
	ActionKick = "kick"
	ActionBan  = "ban"

	// Issuer names this engine on ban records.
	Issuer = "sentinel"
)

const (
	defaultBanDuration    = 24 * time.Hour
	defaultRaycastTimeout = 2 * time.Second
)

// Report is one anomaly handed to the processor.
type Report struct {
	// ID makes a resubmitted report idempotent. Generated when empty.
	ID       string
	Type     model.DetectionType
	Reason   string
	Severity model.Severity
	Payload  map[string]any
	// Evidence names the server observations behind the report. A second
	// report citing scored evidence is not scored again.
	Evidence string
	// ClientReported marks reports coming from a client-side probe.
	ClientReported bool
}

// Processor validates reports, scores sessions and escalates. It is not
// synchronized; every call comes from the scheduler loop.
type Processor struct {
	sessions       Sessions
	persister      Persister
	alerter        Alerter
	enforcer       Enforcer
	state          StateEvidence
	network        NetworkEvidence
	raycaster      Raycaster
	sched          Scheduler
	thresholds     Thresholds
	defaultImpact  float64
	policies       map[string]Policy
	banDuration    time.Duration
	raycastTimeout time.Duration
	pending        map[string]*pendingRaycast
	now            func() time.Time
	logger         logger.Logger
}

// New creates a Processor. Collaborators not supplied are no-ops.
func New(sessions Sessions, opts ...Option) *Processor {
	p := &Processor{
		sessions:       sessions,
		persister:      nopPersister{},
		alerter:        nopAlerter{},
		enforcer:       nopEnforcer{},
		thresholds:     DefaultThresholds(),
		defaultImpact:  defaultImpact,
		policies:       make(map[string]Policy),
		banDuration:    defaultBanDuration,
		raycastTimeout: defaultRaycastTimeout,
		pending:        make(map[string]*pendingRaycast),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("trust")
	}
	return p
}

// Policy returns the effective policy for a detection type.
func (p *Processor) Policy(t model.DetectionType) Policy {
	return p.policyFor(t)
}

// Process handles one report for sess and reports whether it was validated
// and scored. Server-originated reports are validated by construction;
// client reports must be confirmed by server-side evidence. Unconfirmed
// client reports are recorded at low severity and never escalate.
func (p *Processor) Process(ctx context.Context, sess *session.Session, r Report) bool {
	if sess == nil {
		return false
	}
	if r.ID == "" {
		r.ID = model.NewDetectionID()
	}
	pol := p.policyFor(r.Type)
	if pol.Disabled {
		p.logger.Debug(ctx, "detection type disabled",
			logger.PlayerID(sess.PlayerID()),
			logger.String("type", string(r.Type)),
		)
		return false
	}
	if !known(r.Type) {
		p.logger.Info(ctx, "unknown detection type",
			logger.PlayerID(sess.PlayerID()),
			logger.String("type", string(r.Type)),
			logger.Bool("client_reported", r.ClientReported),
		)
	}
	if !r.ClientReported {
		return p.apply(ctx, sess, r, pol)
	}

	v := p.revalidate(ctx, sess, r)
	switch v.outcome {
	case confirmed:
		if sess.EvidenceScored(v.finding.Evidence) {
			p.recordUnconfirmed(ctx, sess, r, "evidence already scored")
			return false
		}
		r.Evidence = v.finding.Evidence
		r.Severity = v.finding.Severity
		r.Reason = v.finding.Reason
		r.Payload = merge(r.Payload, v.finding.Detail)
		return p.apply(ctx, sess, r, pol)
	case pending:
		return false
	default:
		p.recordUnconfirmed(ctx, sess, r, v.note)
		return false
	}
}

// ProcessFinding is the entry point for server-side checks.
func (p *Processor) ProcessFinding(ctx context.Context, playerID int, f model.Finding) bool {
	sess := p.sessions.Get(playerID)
	if sess == nil {
		return false
	}
	return p.Process(ctx, sess, Report{
		Type:     f.Type,
		Reason:   f.Reason,
		Severity: f.Severity,
		Payload:  f.Detail,
		Evidence: f.Evidence,
	})
}

// Reset restores a player's trust score to the maximum.
func (p *Processor) Reset(ctx context.Context, playerID int) error {
	sess := p.sessions.Get(playerID)
	if sess == nil {
		return fmt.Errorf("%w: player %d", session.ErrSessionNotFound, playerID)
	}
	prev := sess.TrustScore()
	sess.ResetTrust()
	p.logger.Info(ctx, "trust reset",
		logger.PlayerID(playerID),
		logger.Float64("previous", prev),
	)
	return nil
}

// SessionEnded persists the summary and drops pending work for the player.
func (p *Processor) SessionEnded(ctx context.Context, sum model.SessionSummary) {
	p.cancelPending(sum.PlayerID)
	if err := p.persister.SaveSessionSummary(ctx, sum); err != nil {
		metrics.RecordCollaboratorFailure("persistence")
		p.logger.Error(ctx, "save session summary failed", logger.PlayerID(sum.PlayerID), logger.Error(err))
	}
}

func (p *Processor) apply(ctx context.Context, sess *session.Session, r Report, pol Policy) bool {
	d := model.Detection{
		ID:              r.ID,
		PlayerID:        sess.PlayerID(),
		Type:            r.Type,
		Reason:          r.Reason,
		Detail:          r.Payload,
		Severity:        r.Severity,
		ClientReported:  r.ClientReported,
		ServerValidated: true,
		TrustImpact:     pol.Impact,
		Evidence:        r.Evidence,
		At:              p.now(),
	}
	if sess.EvidenceScored(d.Evidence) {
		p.logger.Debug(ctx, "evidence already scored", logger.String("evidence", d.Evidence))
		return false
	}
	if !sess.Record(d) {
		p.logger.Debug(ctx, "detection already recorded", logger.String("id", d.ID))
		return false
	}
	sess.MarkScored(d.Evidence)
	score := sess.Penalize(pol.Impact)
	metrics.RecordDetection(string(d.Type), true, d.ClientReported)
	p.logger.Warn(ctx, "detection validated",
		logger.PlayerID(d.PlayerID),
		logger.String("type", string(d.Type)),
		logger.String("severity", d.Severity.String()),
		logger.Float64("impact", d.TrustImpact),
		logger.Float64("trust", score),
		logger.String("reason", d.Reason),
	)

	p.persist(ctx, d)
	p.notify(ctx, ChannelDetections, model.Alert{
		PlayerID:   d.PlayerID,
		Type:       d.Type,
		Severity:   d.Severity,
		Message:    d.Reason,
		TrustScore: score,
		At:         d.At,
	})
	p.escalate(ctx, sess, d, pol, score)
	return true
}

// rank orders enforcement actions; an action is never repeated or followed
// by a weaker one.
var rank = map[string]int{ActionKick: 1, ActionBan: 2}

// escalate checks ban first so a score below both thresholds bans. A kicked
// player can still be banned.
func (p *Processor) escalate(ctx context.Context, sess *session.Session, d model.Detection, pol Policy, score float64) {
	done := rank[sess.Enforced()]
	id := sess.PlayerID()
	switch {
	case score <= pol.Ban:
		if done >= rank[ActionBan] {
			return
		}
		reason := fmt.Sprintf("trust %.0f after %s", score, d.Type)
		if err := p.enforcer.Ban(ctx, id, reason, Issuer, p.banDuration); err != nil {
			metrics.RecordCollaboratorFailure("enforcement")
			p.logger.Error(ctx, "ban failed", logger.PlayerID(id), logger.Error(err))
		}
		p.enforced(ctx, sess, ActionBan, d, score)
	case score <= pol.Kick:
		if done >= rank[ActionKick] {
			return
		}
		msg := fmt.Sprintf("disconnected: trust %.0f", score)
		if err := p.enforcer.Disconnect(ctx, id, msg); err != nil {
			metrics.RecordCollaboratorFailure("enforcement")
			p.logger.Error(ctx, "disconnect failed", logger.PlayerID(id), logger.Error(err))
		}
		p.enforced(ctx, sess, ActionKick, d, score)
	case score <= pol.Warn:
		if done > 0 || !sess.MarkWarned() {
			return
		}
		metrics.RecordEscalation(ActionWarn)
		p.notify(ctx, ChannelWarnings, model.Alert{
			PlayerID:   id,
			Type:       d.Type,
			Severity:   d.Severity,
			Message:    fmt.Sprintf("trust dropped to %.0f", score),
			TrustScore: score,
			Action:     ActionWarn,
			At:         d.At,
		})
	}
}

func (p *Processor) enforced(ctx context.Context, sess *session.Session, action string, d model.Detection, score float64) {
	sess.MarkEnforced(action)
	metrics.RecordEscalation(action)
	p.logger.Warn(ctx, "player escalated",
		logger.PlayerID(sess.PlayerID()),
		logger.String("action", action),
		logger.Float64("trust", score),
		logger.String("type", string(d.Type)),
	)
	p.notify(ctx, ChannelEnforcement, model.Alert{
		PlayerID:   sess.PlayerID(),
		Type:       d.Type,
		Severity:   model.SeverityCritical,
		Message:    fmt.Sprintf("%s at trust %.0f", action, score),
		TrustScore: score,
		Action:     action,
		At:         d.At,
	})
}

func (p *Processor) recordUnconfirmed(ctx context.Context, sess *session.Session, r Report, note string) {
	d := model.Detection{
		ID:             r.ID,
		PlayerID:       sess.PlayerID(),
		Type:           r.Type,
		Reason:         note,
		Detail:         r.Payload,
		Severity:       model.SeverityLow,
		ClientReported: true,
		At:             p.now(),
	}
	if r.Reason != "" {
		d.Reason = r.Reason + ": " + note
	}
	if !sess.Record(d) {
		return
	}
	metrics.RecordDetection(string(d.Type), false, true)
	p.logger.Info(ctx, "client report unconfirmed",
		logger.PlayerID(d.PlayerID),
		logger.String("type", string(d.Type)),
		logger.String("note", note),
	)
	p.persist(ctx, d)
}

func (p *Processor) persist(ctx context.Context, d model.Detection) {
	if err := p.persister.StoreDetection(ctx, d); err != nil {
		metrics.RecordCollaboratorFailure("persistence")
		p.logger.Error(ctx, "store detection failed", logger.String("id", d.ID), logger.Error(err))
	}
}

func (p *Processor) notify(ctx context.Context, channel string, a model.Alert) {
	if err := p.alerter.Notify(ctx, channel, a); err != nil {
		metrics.RecordCollaboratorFailure("alerting")
		p.logger.Warn(ctx, "alert failed", logger.String("channel", channel), logger.Error(err))
	}
}

func known(t model.DetectionType) bool {
	return slices.Contains(model.KnownTypes(), t)
}

// merge overlays server evidence on the client payload.
func merge(client, server map[string]any) map[string]any {
	if len(client) == 0 {
		return server
	}
	out := maps.Clone(client)
	maps.Copy(out, server)
	return out
}
