package trust

import (
	"context"
	"testing"
	"time"

	"github.com/okian/sentinel/internal/domain/model"
	"github.com/okian/sentinel/internal/domain/statehistory"
	. "github.com/smartystreets/goconvey/convey"
)

type pushedState struct {
	st model.PlayerState
	at time.Time
}

func (g *pushedState) PlayerState(context.Context, int) (model.PlayerState, time.Time, error) {
	return g.st, g.at, nil
}

func TestEvidenceScoredOnce(t *testing.T) {
	Convey("Given a tracker feeding the processor", t, func() {
		h := newHarness()
		game := &pushedState{st: model.PlayerState{Health: 100}, at: time.Unix(1000, 0)}
		tracker := statehistory.New(game, h.store,
			statehistory.WithFindingSink(func(ctx context.Context, id int, f model.Finding) {
				h.proc.ProcessFinding(ctx, id, f)
			}),
		)
		WithStateEvidence(tracker)(h.proc)

		tracker.Check(h.ctx, 1)
		game.st = model.PlayerState{Health: 100, Position: model.Vector3{X: 1e6}}
		game.at = game.at.Add(time.Second)
		_, found := tracker.Check(h.ctx, 1)

		Convey("Then the server check scores the jump once", func() {
			So(len(found), ShouldEqual, 1)
			So(found[0].Evidence, ShouldNotBeEmpty)
			So(h.sess.TrustScore(), ShouldEqual, 75)
		})

		Convey("When the client reports the same jump three times", func() {
			for i := 0; i < 3; i++ {
				ok := h.proc.Process(h.ctx, h.sess, Report{Type: model.Teleport, ClientReported: true})
				So(ok, ShouldBeFalse)
			}
			So(h.proc.Process(h.ctx, h.sess, Report{Type: model.SpeedHack, ClientReported: true}), ShouldBeFalse)

			Convey("Then trust is unchanged and nothing escalates", func() {
				So(h.sess.TrustScore(), ShouldEqual, 75)
				So(h.enforce.disconnects, ShouldBeEmpty)
				So(h.enforce.bans, ShouldBeEmpty)
			})

			Convey("Then the reports are kept as unconfirmed", func() {
				validated := 0
				for _, d := range h.sess.History() {
					if d.ServerValidated {
						validated++
					}
				}
				So(validated, ShouldEqual, 1)
				So(len(h.sess.History()), ShouldEqual, 5)
				So(h.sess.History()[1].Reason, ShouldEqual, "evidence already scored")
			})
		})

		Convey("When the server check sees the same pair again", func() {
			prev, cur := tracker.LatestPair(1)
			_, again := tracker.Validate(1, cur, prev)
			So(h.proc.ProcessFinding(h.ctx, 1, again[0]), ShouldBeFalse)
			So(h.sess.TrustScore(), ShouldEqual, 75)
		})

		Convey("When a later jump produces new evidence", func() {
			game.st.Position.X = 2e6
			game.at = game.at.Add(time.Second)
			tracker.Check(h.ctx, 1)
			So(h.sess.TrustScore(), ShouldEqual, 50)
		})
	})
}
