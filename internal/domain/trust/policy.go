package trust

import (
	"strings"

	"github.com/okian/sentinel/internal/domain/model"
	"github.com/okian/sentinel/internal/domain/session"
)

// Policy is the scoring and escalation rule for one detection type.
type Policy struct {
	Disabled bool
	Impact   float64
	Warn     float64
	Kick     float64
	Ban      float64
}

// Thresholds are the default escalation points.
type Thresholds struct {
	Warn float64
	Kick float64
	Ban  float64
}

// ordered reports whether 0 <= ban < kick < warn <= MaxTrust.
func ordered(warn, kick, ban float64) bool {
	return ban >= 0 && ban < kick && kick < warn && warn <= session.MaxTrust
}

// DefaultThresholds returns warn 75, kick 50, ban 25.
func DefaultThresholds() Thresholds {
	return Thresholds{Warn: 75, Kick: 50, Ban: 25}
}

const defaultImpact = 10

// builtinImpacts is the trust cost of each validated detection type.
var builtinImpacts = map[model.DetectionType]float64{ //nolint:gochecknoglobals // fixed lookup table
	model.Teleport:                25,
	model.SpeedHack:               20,
	model.HealthRegen:             20,
	model.GodMode:                 30,
	model.ArmorChange:             15,
	model.WeaponSwitch:            5,
	model.VehicleTransition:       5,
	model.EventSpam:               10,
	model.TotalEventSpam:          15,
	model.SuspiciousEventSequence: 20,
}

// Impact returns the built-in impact for t, or the fallback when unlisted.
func Impact(t model.DetectionType, fallback float64) float64 {
	if v, ok := builtinImpacts[t]; ok {
		return v
	}
	return fallback
}

// policyFor merges the built-in table, the defaults and any override keyed
// by the lowercased type name. Zero override fields inherit. A merged
// ordering that is not ban < kick < warn falls back to the defaults.
func (p *Processor) policyFor(t model.DetectionType) Policy {
	pol := Policy{
		Impact: Impact(t, p.defaultImpact),
		Warn:   p.thresholds.Warn,
		Kick:   p.thresholds.Kick,
		Ban:    p.thresholds.Ban,
	}
	o, ok := p.policies[strings.ToLower(string(t))]
	if !ok {
		return pol
	}
	pol.Disabled = o.Disabled
	if o.Impact > 0 {
		pol.Impact = o.Impact
	}
	if o.Warn > 0 {
		pol.Warn = o.Warn
	}
	if o.Kick > 0 {
		pol.Kick = o.Kick
	}
	if o.Ban > 0 {
		pol.Ban = o.Ban
	}
	if !ordered(pol.Warn, pol.Kick, pol.Ban) {
		pol.Warn, pol.Kick, pol.Ban = p.thresholds.Warn, p.thresholds.Kick, p.thresholds.Ban
	}
	return pol
}
