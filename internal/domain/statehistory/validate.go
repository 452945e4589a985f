package statehistory

import (
	"fmt"
	"time"

	"github.com/okian/sentinel/internal/domain/model"
)

// criticalFactor is how far over the limit a teleport must be to count as
// critical.
const criticalFactor = 5

// Limits are the physical plausibility bounds.
type Limits struct {
	SpeedLimit             float64
	VehicleSpeedMultiplier float64
	HealthChangeRate       float64
	ArmorChangeRate        float64
	WeaponSwitchMin        time.Duration
	VehicleTransitionMin   time.Duration
}

// DefaultLimits returns the built-in thresholds.
func DefaultLimits() Limits {
	return Limits{
		SpeedLimit:             50,
		VehicleSpeedMultiplier: 3,
		HealthChangeRate:       10,
		ArmorChangeRate:        10,
		WeaponSwitchMin:        100 * time.Millisecond,
		VehicleTransitionMin:   time.Second,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.SpeedLimit <= 0 {
		l.SpeedLimit = d.SpeedLimit
	}
	if l.VehicleSpeedMultiplier <= 0 {
		l.VehicleSpeedMultiplier = d.VehicleSpeedMultiplier
	}
	if l.HealthChangeRate <= 0 {
		l.HealthChangeRate = d.HealthChangeRate
	}
	if l.ArmorChangeRate <= 0 {
		l.ArmorChangeRate = d.ArmorChangeRate
	}
	if l.WeaponSwitchMin <= 0 {
		l.WeaponSwitchMin = d.WeaponSwitchMin
	}
	if l.VehicleTransitionMin <= 0 {
		l.VehicleTransitionMin = d.VehicleTransitionMin
	}
	return l
}

// SpeedLimitFor returns the movement limit that applies to the pair.
func (l Limits) SpeedLimitFor(current, previous *model.Snapshot) float64 {
	if current.Flags.InVehicle || (previous != nil && previous.Flags.InVehicle) {
		return l.SpeedLimit * l.VehicleSpeedMultiplier
	}
	return l.SpeedLimit
}

// Validate compares current with previous. Each check runs independently,
// so one comparison may produce several findings. A nil previous or a
// non-positive elapsed time yields valid with no findings.
func (t *Tracker) Validate(playerID int, current, previous *model.Snapshot) (bool, []model.Finding) {
	if current == nil || previous == nil {
		return true, nil
	}
	elapsed := current.CapturedAt.Sub(previous.CapturedAt).Seconds()
	if elapsed <= 0 {
		return true, nil
	}

	var findings []model.Finding
	if f, ok := t.checkTeleport(current, previous, elapsed); ok {
		findings = append(findings, f)
	}
	if f, ok := t.checkHealth(current, previous, elapsed); ok {
		findings = append(findings, f)
	}
	if f, ok := t.checkArmor(current, previous, elapsed); ok {
		findings = append(findings, f)
	}
	p := t.players[playerID]
	if f, ok := t.checkWeaponSwitch(p, current, previous); ok {
		findings = append(findings, f)
	}
	if f, ok := t.checkVehicleTransition(p, current, previous); ok {
		findings = append(findings, f)
	}
	for i := range findings {
		findings[i].Evidence = model.EvidenceKey(string(findings[i].Type), previous.CapturedAt, current.CapturedAt)
	}
	return len(findings) == 0, findings
}

func (t *Tracker) checkTeleport(cur, prev *model.Snapshot, elapsed float64) (model.Finding, bool) {
	// parachuting and death both move the entity without player input
	if cur.Flags.Falling || prev.Flags.Falling || cur.Flags.Dead || prev.Flags.Dead {
		return model.Finding{}, false
	}
	limit := t.limits.SpeedLimitFor(cur, prev)
	dist := cur.Position.Distance(prev.Position)
	speed := dist / elapsed
	if speed <= limit {
		return model.Finding{}, false
	}
	sev := model.SeverityHigh
	if speed >= limit*criticalFactor {
		sev = model.SeverityCritical
	}
	return model.Finding{
		Type:     model.Teleport,
		Severity: sev,
		Reason:   fmt.Sprintf("moved %.1f units in %.3fs (%.1f/s, limit %.1f)", dist, elapsed, speed, limit),
		Detail: map[string]any{
			"distance":   dist,
			"elapsed":    elapsed,
			"speed":      speed,
			"limit":      limit,
			"in_vehicle": cur.Flags.InVehicle || prev.Flags.InVehicle,
			"from":       prev.Position,
			"to":         cur.Position,
		},
	}, true
}

func (t *Tracker) checkHealth(cur, prev *model.Snapshot, elapsed float64) (model.Finding, bool) {
	if cur.Flags.Dead || prev.Flags.Dead {
		return model.Finding{}, false
	}
	delta := cur.Health - prev.Health
	if delta <= 0 {
		return model.Finding{}, false
	}
	rate := delta / elapsed
	if rate <= t.limits.HealthChangeRate {
		return model.Finding{}, false
	}
	return model.Finding{
		Type:     model.HealthRegen,
		Severity: model.SeverityHigh,
		Reason:   fmt.Sprintf("health +%.1f at %.1f/s (limit %.1f)", delta, rate, t.limits.HealthChangeRate),
		Detail:   map[string]any{"delta": delta, "rate": rate, "limit": t.limits.HealthChangeRate},
	}, true
}

func (t *Tracker) checkArmor(cur, prev *model.Snapshot, elapsed float64) (model.Finding, bool) {
	delta := cur.Armor - prev.Armor
	if delta <= 0 {
		return model.Finding{}, false
	}
	rate := delta / elapsed
	if rate <= t.limits.ArmorChangeRate {
		return model.Finding{}, false
	}
	return model.Finding{
		Type:     model.ArmorChange,
		Severity: model.SeverityMedium,
		Reason:   fmt.Sprintf("armor +%.1f at %.1f/s (limit %.1f)", delta, rate, t.limits.ArmorChangeRate),
		Detail:   map[string]any{"delta": delta, "rate": rate, "limit": t.limits.ArmorChangeRate},
	}, true
}

func (t *Tracker) checkWeaponSwitch(p *player, cur, prev *model.Snapshot) (model.Finding, bool) {
	if cur.Weapon == prev.Weapon {
		return model.Finding{}, false
	}
	last, ok := p.lastChange(model.MetricWeaponSwitch, cur.CapturedAt)
	if !ok {
		return model.Finding{}, false
	}
	gap := cur.CapturedAt.Sub(last)
	if gap >= t.limits.WeaponSwitchMin {
		return model.Finding{}, false
	}
	return model.Finding{
		Type:     model.WeaponSwitch,
		Severity: model.SeverityLow,
		Reason:   fmt.Sprintf("switched %s -> %s %s after the previous switch", prev.Weapon, cur.Weapon, gap),
		Detail: map[string]any{
			"from":     prev.Weapon,
			"to":       cur.Weapon,
			"interval": gap.Seconds(),
			"min":      t.limits.WeaponSwitchMin.Seconds(),
		},
	}, true
}

func (t *Tracker) checkVehicleTransition(p *player, cur, prev *model.Snapshot) (model.Finding, bool) {
	if cur.Flags.InVehicle == prev.Flags.InVehicle {
		return model.Finding{}, false
	}
	last, ok := p.lastChange(model.MetricStateTransition, cur.CapturedAt)
	if !ok {
		return model.Finding{}, false
	}
	gap := cur.CapturedAt.Sub(last)
	if gap >= t.limits.VehicleTransitionMin {
		return model.Finding{}, false
	}
	return model.Finding{
		Type:     model.VehicleTransition,
		Severity: model.SeverityMedium,
		Reason:   fmt.Sprintf("vehicle state flipped %s after the previous transition", gap),
		Detail: map[string]any{
			"in_vehicle": cur.Flags.InVehicle,
			"interval":   gap.Seconds(),
			"min":        t.limits.VehicleTransitionMin.Seconds(),
		},
	}, true
}
