package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/sentinel/internal/domain/model"
	"github.com/okian/sentinel/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func detection(id string, impact float64, validated bool) model.Detection {
	return model.Detection{ID: id, Type: model.Teleport, TrustImpact: impact, ServerValidated: validated}
}

func TestStoreLifecycle(t *testing.T) {
	convey.Convey("Given an empty store with a fixed clock", t, func() {
		ctx := context.Background()
		start := time.Unix(1_700_000_000, 0)
		now := start
		store := NewStore(WithClock(func() time.Time { return now }), WithHistoryLimit(3))

		convey.Convey("When a session is created", func() {
			sess, err := store.Create(ctx, 7)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then it starts with full trust and empty state", func() {
				convey.So(sess.TrustScore(), convey.ShouldEqual, MaxTrust)
				convey.So(sess.CreatedAt(), convey.ShouldEqual, start)
				convey.So(sess.History(), convey.ShouldBeEmpty)
				convey.So(sess.Errors(), convey.ShouldBeEmpty)
				convey.So(sess.Token(), convey.ShouldBeNil)
				convey.So(store.Get(7), convey.ShouldEqual, sess)
				convey.So(store.Exists(7), convey.ShouldBeTrue)
				convey.So(store.Len(), convey.ShouldEqual, 1)
			})

			convey.Convey("Then a second session for the same player is refused", func() {
				_, err := store.Create(ctx, 7)
				convey.So(errors.Is(err, ErrSessionExists), convey.ShouldBeTrue)
				convey.So(store.Get(7), convey.ShouldEqual, sess)
			})

			convey.Convey("Then destroying it returns the summary and fences lookups", func() {
				sess.Penalize(30)
				sess.Record(detection("a", 30, true))
				sess.Record(detection("b", 0, false))
				sess.IncError("auth")
				sess.MarkEnforced("kick")
				now = start.Add(time.Minute)

				sum, ok := store.Destroy(ctx, 7)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(sum.PlayerID, convey.ShouldEqual, 7)
				convey.So(sum.FinalTrust, convey.ShouldEqual, 70)
				convey.So(sum.Detections, convey.ShouldEqual, 2)
				convey.So(sum.Validated, convey.ShouldEqual, 1)
				convey.So(sum.Errors["auth"], convey.ShouldEqual, 1)
				convey.So(sum.Enforced, convey.ShouldEqual, "kick")
				convey.So(sum.EndedAt.Sub(sum.StartedAt), convey.ShouldEqual, time.Minute)

				convey.So(store.Get(7), convey.ShouldBeNil)
				convey.So(store.Exists(7), convey.ShouldBeFalse)

				_, again := store.Destroy(ctx, 7)
				convey.So(again, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When the player id is not positive", func() {
			_, err := store.Create(ctx, 0)
			convey.So(errors.Is(err, ErrInvalidPlayerID), convey.ShouldBeTrue)
		})

		convey.Convey("When several sessions exist", func() {
			for _, id := range []int{9, 3, 5} {
				_, err := store.Create(ctx, id)
				convey.So(err, convey.ShouldBeNil)
			}
			convey.So(store.IDs(), convey.ShouldResemble, []int{3, 5, 9})
		})
	})
}

func TestSessionTrust(t *testing.T) {
	convey.Convey("Given a session", t, func() {
		sess := newSession(1, time.Now(), 10)

		convey.Convey("When penalized repeatedly", func() {
			prev := sess.TrustScore()
			for _, impact := range []float64{10, 25, 0, -5, 40, 50} {
				score := sess.Penalize(impact)
				convey.So(score, convey.ShouldBeLessThanOrEqualTo, prev)
				convey.So(score, convey.ShouldBeGreaterThanOrEqualTo, 0)
				prev = score
			}

			convey.Convey("Then the score is floored at zero", func() {
				convey.So(sess.TrustScore(), convey.ShouldEqual, 0)
			})

			convey.Convey("Then an explicit reset restores it", func() {
				sess.MarkEnforced("ban")
				sess.MarkWarned()
				sess.ResetTrust()
				convey.So(sess.TrustScore(), convey.ShouldEqual, MaxTrust)
				convey.So(sess.Enforced(), convey.ShouldBeEmpty)
				convey.So(sess.MarkWarned(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a warning is marked twice", func() {
			convey.So(sess.MarkWarned(), convey.ShouldBeTrue)
			convey.So(sess.MarkWarned(), convey.ShouldBeFalse)
		})

		convey.Convey("When a token is stored", func() {
			sess.SetToken(model.Token{IssuedAt: 10, Signature: "sig"})
			tok := sess.Token()
			tok.Signature = "mutated"
			convey.So(sess.Token().Signature, convey.ShouldEqual, "sig")
		})
	})
}

func TestSessionHistory(t *testing.T) {
	convey.Convey("Given a session with a history limit of 3", t, func() {
		sess := newSession(1, time.Now(), 3)

		convey.Convey("When five detections are recorded", func() {
			for i := 0; i < 5; i++ {
				convey.So(sess.Record(detection(fmt.Sprintf("d%d", i), 1, true)), convey.ShouldBeTrue)
			}

			convey.Convey("Then only the newest three remain, oldest first", func() {
				h := sess.History()
				convey.So(len(h), convey.ShouldEqual, 3)
				convey.So(h[0].ID, convey.ShouldEqual, "d2")
				convey.So(h[2].ID, convey.ShouldEqual, "d4")
			})

			convey.Convey("Then an evicted id may be recorded again but a held one may not", func() {
				convey.So(sess.Record(detection("d4", 1, true)), convey.ShouldBeFalse)
				convey.So(sess.Record(detection("d0", 1, true)), convey.ShouldBeTrue)
			})

			convey.Convey("Then the returned history is a copy", func() {
				h := sess.History()
				h[0].ID = "changed"
				convey.So(sess.History()[0].ID, convey.ShouldEqual, "d2")
			})
		})
	})
}

func TestSessionEvidence(t *testing.T) {
	convey.Convey("Given a session keeping three entries", t, func() {
		sess := newSession(1, time.Unix(0, 0), 3)

		convey.Convey("Then an empty key is never scored", func() {
			sess.MarkScored("")
			convey.So(sess.EvidenceScored(""), convey.ShouldBeFalse)
		})

		convey.Convey("When evidence is marked", func() {
			sess.MarkScored("Teleport@1-2")
			sess.ResetTrust()

			convey.Convey("Then it stays scored across a trust reset", func() {
				convey.So(sess.EvidenceScored("Teleport@1-2"), convey.ShouldBeTrue)
				convey.So(sess.EvidenceScored("Teleport@2-3"), convey.ShouldBeFalse)
			})

			convey.Convey("Then the oldest key is forgotten past the limit", func() {
				for i := 0; i < 3; i++ {
					sess.MarkScored(fmt.Sprintf("HealthRegen@%d", i))
				}
				convey.So(sess.EvidenceScored("Teleport@1-2"), convey.ShouldBeFalse)
				convey.So(sess.EvidenceScored("HealthRegen@0"), convey.ShouldBeTrue)
				convey.So(sess.EvidenceScored("HealthRegen@2"), convey.ShouldBeTrue)
			})
		})
	})
}
