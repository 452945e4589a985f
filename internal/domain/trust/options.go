package trust

import (
	"strings"
	"time"

	"github.com/okian/sentinel/pkg/logger"
)

// Option applies a configuration option to the Processor.
type Option func(*Processor)

// WithThresholds sets the default escalation points. Thresholds that are
// not ordered 0 <= ban < kick < warn <= 100 are ignored.
func WithThresholds(t Thresholds) Option {
	return func(p *Processor) {
		if ordered(t.Warn, t.Kick, t.Ban) {
			p.thresholds = t
		}
	}
}

// WithDefaultImpact sets the impact of types missing from the table.
func WithDefaultImpact(v float64) Option {
	return func(p *Processor) {
		if v > 0 {
			p.defaultImpact = v
		}
	}
}

// WithPolicies sets per-type overrides, keyed by type name in any case.
func WithPolicies(policies map[string]Policy) Option {
	return func(p *Processor) {
		for name, pol := range policies {
			p.policies[strings.ToLower(strings.TrimSpace(name))] = pol
		}
	}
}

// WithBanDuration sets how long bans last.
func WithBanDuration(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.banDuration = d
		}
	}
}

// WithRaycastTimeout bounds how long a raycast answer is awaited.
func WithRaycastTimeout(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.raycastTimeout = d
		}
	}
}

// WithPersister sets the persistence collaborator.
func WithPersister(c Persister) Option {
	return func(p *Processor) {
		if c != nil {
			p.persister = c
		}
	}
}

// WithAlerter sets the alerting collaborator.
func WithAlerter(c Alerter) Option {
	return func(p *Processor) {
		if c != nil {
			p.alerter = c
		}
	}
}

// WithEnforcer sets the enforcement collaborator.
func WithEnforcer(c Enforcer) Option {
	return func(p *Processor) {
		if c != nil {
			p.enforcer = c
		}
	}
}

// WithStateEvidence lets client reports be checked against snapshots.
func WithStateEvidence(e StateEvidence) Option {
	return func(p *Processor) {
		p.state = e
	}
}

// WithNetworkEvidence lets client reports be checked against event counters.
func WithNetworkEvidence(e NetworkEvidence) Option {
	return func(p *Processor) {
		p.network = e
	}
}

// WithRaycaster enables the obstruction check for teleports. It needs a
// Scheduler as well.
func WithRaycaster(r Raycaster, s Scheduler) Option {
	return func(p *Processor) {
		if r != nil && s != nil {
			p.raycaster = r
			p.sched = s
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(p *Processor) {
		if log != nil {
			p.logger = log
		}
	}
}
