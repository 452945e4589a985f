package trust

import (
	"context"
	"fmt"

	"github.com/okian/sentinel/internal/domain/model"
	"github.com/okian/sentinel/pkg/logger"
	"github.com/okian/sentinel/pkg/metrics"
)

type pendingRaycast struct {
	playerID int
	report   Report
	req      RaycastRequest
	cancel   func()
}

// startRaycast asks whether the path between the last known position and
// the reported destination is obstructed. The answer arrives later on the
// loop; no answer within the timeout is treated as incomplete state.
func (p *Processor) startRaycast(ctx context.Context, playerID int, r Report) verdict {
	if p.raycaster == nil {
		return rejected(noPair)
	}
	to, ok := vector(r.Payload, "to")
	if !ok {
		return rejected("no destination to raycast")
	}
	from, ok := vector(r.Payload, "from")
	if p.state != nil {
		if _, cur := p.state.LatestPair(playerID); cur != nil {
			from, ok = cur.Position, true
		}
	}
	if !ok {
		return rejected("no origin to raycast")
	}
	if _, busy := p.pending[r.ID]; busy {
		return verdict{outcome: pending}
	}

	req := RaycastRequest{PlayerID: playerID, From: from, To: to}
	pr := &pendingRaycast{playerID: playerID, report: r, req: req}
	p.pending[r.ID] = pr
	id := r.ID
	pr.cancel = p.sched.After(p.raycastTimeout, func(ctx context.Context) {
		p.expireRaycast(ctx, id)
	})
	metrics.RecordRaycast("requested")
	p.raycaster.Raycast(ctx, req, func(res RaycastResult) {
		if !p.sched.Post("raycast_reply", func(ctx context.Context) { p.resolveRaycast(ctx, id, res) }) {
			p.logger.Warn(context.Background(), "raycast reply dropped", logger.String("id", id))
		}
	})
	return verdict{outcome: pending}
}

func (p *Processor) resolveRaycast(ctx context.Context, id string, res RaycastResult) {
	pr, ok := p.pending[id]
	if !ok {
		// already expired or the session ended
		metrics.RecordRaycast("late")
		return
	}
	delete(p.pending, id)
	pr.cancel()

	sess := p.sessions.Get(pr.playerID)
	if sess == nil {
		return
	}
	if res.Err != nil {
		metrics.RecordRaycast("error")
		p.logger.Warn(ctx, "raycast failed", logger.PlayerID(pr.playerID), logger.Error(res.Err))
		return
	}
	if !res.Blocked {
		metrics.RecordRaycast("clear")
		p.recordUnconfirmed(ctx, sess, pr.report, "path to destination is clear")
		return
	}
	metrics.RecordRaycast("blocked")
	r := pr.report
	r.Severity = model.SeverityHigh
	r.Reason = fmt.Sprintf("moved through obstructed path from %v to %v", pr.req.From, pr.req.To)
	r.Payload = merge(r.Payload, map[string]any{"raycast_blocked": true})
	p.apply(ctx, sess, r, p.policyFor(r.Type))
}

func (p *Processor) expireRaycast(ctx context.Context, id string) {
	pr, ok := p.pending[id]
	if !ok {
		return
	}
	delete(p.pending, id)
	metrics.RecordRaycast("timeout")
	p.logger.Info(ctx, "raycast timed out, skipping",
		logger.PlayerID(pr.playerID),
		logger.String("id", id),
	)
}

func (p *Processor) cancelPending(playerID int) {
	for id, pr := range p.pending {
		if pr.playerID == playerID {
			pr.cancel()
			delete(p.pending, id)
		}
	}
}

// Pending returns the number of raycasts awaiting an answer.
func (p *Processor) Pending() int { return len(p.pending) }
