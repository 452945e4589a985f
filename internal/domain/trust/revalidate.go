package trust

import (
	"context"
	"fmt"

	"github.com/okian/sentinel/internal/domain/model"
	"github.com/okian/sentinel/internal/domain/session"
)

type outcome int

const (
	unconfirmed outcome = iota
	confirmed
	pending
)

type verdict struct {
	outcome outcome
	finding model.Finding
	note    string
}

func rejected(note string) verdict { return verdict{outcome: unconfirmed, note: note} }

// revalidate re-checks a client report against server-side evidence.
func (p *Processor) revalidate(ctx context.Context, sess *session.Session, r Report) verdict {
	id := sess.PlayerID()
	switch r.Type {
	case model.Teleport, model.SpeedHack:
		v := p.fromState(id, model.Teleport)
		if v.outcome == confirmed {
			v.finding.Type = r.Type
			return v
		}
		if r.Type == model.Teleport && v.note == noPair {
			return p.startRaycast(ctx, id, r)
		}
		return v
	case model.HealthRegen, model.ArmorChange, model.WeaponSwitch, model.VehicleTransition:
		return p.fromState(id, r.Type)
	case model.GodMode:
		return p.godMode(id, r)
	case model.EventSpam, model.TotalEventSpam:
		return p.fromNetwork(id, r)
	default:
		return rejected("no server-side check for this type")
	}
}

const noPair = "no snapshot pair to compare"

func (p *Processor) fromState(playerID int, want model.DetectionType) verdict {
	if p.state == nil {
		return rejected("state evidence unavailable")
	}
	prev, cur := p.state.LatestPair(playerID)
	if prev == nil || cur == nil {
		return rejected(noPair)
	}
	_, findings := p.state.Validate(playerID, cur, prev)
	for _, f := range findings {
		if f.Type == want {
			return verdict{outcome: confirmed, finding: f}
		}
	}
	return rejected("latest snapshots are within limits")
}

// godMode confirms when the client saw damage land but health did not drop
// across the latest pair.
func (p *Processor) godMode(playerID int, r Report) verdict {
	damage, ok := number(r.Payload, "damage")
	if !ok || damage <= 0 {
		return rejected("no damage reported")
	}
	if p.state == nil {
		return rejected("state evidence unavailable")
	}
	prev, cur := p.state.LatestPair(playerID)
	if prev == nil || cur == nil {
		return rejected(noPair)
	}
	if cur.Flags.Dead || prev.Flags.Dead || cur.Health < prev.Health {
		return rejected("health dropped as expected")
	}
	return verdict{outcome: confirmed, finding: model.Finding{
		Type:     model.GodMode,
		Severity: model.SeverityCritical,
		Reason:   fmt.Sprintf("took %.0f damage but health stayed at %.0f", damage, cur.Health),
		Detail:   map[string]any{"damage": damage, "health_before": prev.Health, "health_after": cur.Health},
		Evidence: model.EvidenceKey(string(model.GodMode), prev.CapturedAt, cur.CapturedAt),
	}}
}

func (p *Processor) fromNetwork(playerID int, r Report) verdict {
	if p.network == nil {
		return rejected("network evidence unavailable")
	}
	event, _ := r.Payload["event"].(string)
	perEvent, total := p.network.Exceeded(playerID, event)
	switch {
	case r.Type == model.EventSpam && perEvent:
		return verdict{outcome: confirmed, finding: model.Finding{
			Type:     model.EventSpam,
			Severity: model.SeverityMedium,
			Reason:   "event counter over limit",
			Detail:   map[string]any{"event": event},
			Evidence: p.network.Evidence(playerID, model.EventSpam, event),
		}}
	case r.Type == model.TotalEventSpam && total:
		return verdict{outcome: confirmed, finding: model.Finding{
			Type:     model.TotalEventSpam,
			Severity: model.SeverityHigh,
			Reason:   "total event counter over limit",
			Evidence: p.network.Evidence(playerID, model.TotalEventSpam, ""),
		}}
	}
	return rejected("event counters within limits")
}

// number reads a numeric payload field.
func number(payload map[string]any, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// vector reads a {x,y,z} payload field.
func vector(payload map[string]any, key string) (model.Vector3, bool) {
	switch v := payload[key].(type) {
	case model.Vector3:
		return v, true
	case map[string]any:
		x, okX := number(v, "x")
		y, okY := number(v, "y")
		z, okZ := number(v, "z")
		if okX && okY && okZ {
			return model.Vector3{X: x, Y: y, Z: z}, true
		}
	}
	return model.Vector3{}, false
}
