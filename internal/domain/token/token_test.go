package token_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/sentinel/internal/domain/model"
	"github.com/okian/sentinel/internal/domain/token"
	"github.com/okian/sentinel/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newService(clock *fakeClock, opts ...token.Option) *token.Service {
	opts = append([]token.Option{token.WithClock(clock.Now)}, opts...)
	svc, err := token.New("a-real-shared-secret", opts...)
	So(err, ShouldBeNil)
	return svc
}

func TestNew(t *testing.T) {
	Convey("Given secrets of varying quality", t, func() {
		Convey("When the secret is empty or blank", func() {
			_, err := token.New("")
			So(errors.Is(err, token.ErrNoSigningKey), ShouldBeTrue)
			_, err = token.New("   ")
			So(errors.Is(err, token.ErrNoSigningKey), ShouldBeTrue)
		})

		Convey("When the secret is a known placeholder", func() {
			for _, s := range []string{"changeme", "SECRET", "your-secret-key-change-in-production"} {
				_, err := token.New(s)
				So(errors.Is(err, token.ErrNoSigningKey), ShouldBeTrue)
			}
		})

		Convey("When the secret is real", func() {
			svc, err := token.New("k8s-mounted-value")
			So(err, ShouldBeNil)
			So(svc, ShouldNotBeNil)
		})
	})
}

func TestIssueVerify(t *testing.T) {
	Convey("Given a token service with a 60s window", t, func() {
		ctx := context.Background()
		clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
		svc := newService(clock, token.WithValidityWindow(60*time.Second))

		tok, err := svc.Issue(42)
		So(err, ShouldBeNil)
		So(tok.IssuedAt, ShouldEqual, clock.t.Unix())
		So(tok.Signature, ShouldNotBeEmpty)

		Convey("When verified one second later", func() {
			clock.Advance(time.Second)
			ok := svc.Verify(ctx, 42, tok)

			Convey("Then it is accepted once", func() {
				So(ok, ShouldBeTrue)
				So(svc.CacheSize(), ShouldEqual, 1)
			})

			Convey("Then a verbatim resubmission is a replay", func() {
				err := svc.Check(ctx, 42, tok)
				So(errors.Is(err, token.ErrReplayed), ShouldBeTrue)
				So(errors.Is(err, token.ErrAuthFailure), ShouldBeTrue)
			})
		})

		Convey("When verified 61 seconds later", func() {
			clock.Advance(61 * time.Second)
			err := svc.Check(ctx, 42, tok)

			Convey("Then it has expired", func() {
				So(errors.Is(err, token.ErrExpired), ShouldBeTrue)
				So(svc.CacheSize(), ShouldEqual, 0)
			})
		})

		Convey("When verified exactly at the window edge", func() {
			clock.Advance(60 * time.Second)
			So(svc.Verify(ctx, 42, tok), ShouldBeTrue)
		})

		Convey("When presented by another player", func() {
			err := svc.Check(ctx, 43, tok)
			So(errors.Is(err, token.ErrBadSignature), ShouldBeTrue)

			Convey("Then the rightful owner can still use it", func() {
				So(svc.Verify(ctx, 42, tok), ShouldBeTrue)
			})
		})

		Convey("When the issue time is altered", func() {
			forged := model.Token{IssuedAt: tok.IssuedAt + 1, Signature: tok.Signature}
			So(errors.Is(svc.Check(ctx, 42, forged), token.ErrBadSignature), ShouldBeTrue)
		})

		Convey("When the signature is tampered with", func() {
			forged := model.Token{IssuedAt: tok.IssuedAt, Signature: tok.Signature + "x"}
			So(errors.Is(svc.Check(ctx, 42, forged), token.ErrBadSignature), ShouldBeTrue)
		})

		Convey("When fields are missing", func() {
			So(errors.Is(svc.Check(ctx, 42, model.Token{}), token.ErrMalformedToken), ShouldBeTrue)
			So(errors.Is(svc.Check(ctx, 42, model.Token{Signature: tok.Signature}), token.ErrMalformedToken), ShouldBeTrue)
		})

		Convey("When signed by a service with a different secret", func() {
			other, err := token.New("another-secret", token.WithClock(clock.Now))
			So(err, ShouldBeNil)
			foreign, err := other.Issue(42)
			So(err, ShouldBeNil)
			So(errors.Is(svc.Check(ctx, 42, foreign), token.ErrBadSignature), ShouldBeTrue)
		})

		Convey("When two tokens are issued in the same second", func() {
			second, err := svc.Issue(42)
			So(err, ShouldBeNil)

			Convey("Then both are independently usable", func() {
				So(second.Signature, ShouldNotEqual, tok.Signature)
				So(svc.Verify(ctx, 42, tok), ShouldBeTrue)
				So(svc.Verify(ctx, 42, second), ShouldBeTrue)
			})
		})
	})
}

func TestFutureSkew(t *testing.T) {
	Convey("Given a token stamped ahead of the verifier's clock", t, func() {
		ctx := context.Background()
		issuer := &fakeClock{t: time.Unix(1_700_000_000, 0)}
		svc := newService(issuer, token.WithFutureSkew(10*time.Second))
		tok, err := svc.Issue(1)
		So(err, ShouldBeNil)

		Convey("When the verifier is 5s behind", func() {
			issuer.Advance(-5 * time.Second)
			So(svc.Verify(ctx, 1, tok), ShouldBeTrue)
		})

		Convey("When the verifier is 11s behind", func() {
			issuer.Advance(-11 * time.Second)
			So(errors.Is(svc.Check(ctx, 1, tok), token.ErrFromFuture), ShouldBeTrue)
		})
	})
}

func TestPurgeExpired(t *testing.T) {
	Convey("Given consumed tokens", t, func() {
		ctx := context.Background()
		clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
		svc := newService(clock,
			token.WithValidityWindow(60*time.Second),
			token.WithReplayBuffer(5*time.Second),
		)
		for i := 0; i < 3; i++ {
			tok, err := svc.Issue(i)
			So(err, ShouldBeNil)
			So(svc.Verify(ctx, i, tok), ShouldBeTrue)
		}
		So(svc.CacheSize(), ShouldEqual, 3)

		Convey("When purged before expiry", func() {
			clock.Advance(30 * time.Second)
			So(svc.PurgeExpired(ctx), ShouldEqual, 0)
			So(svc.CacheSize(), ShouldEqual, 3)
		})

		Convey("When purged after window plus buffer", func() {
			clock.Advance(65 * time.Second)
			So(svc.PurgeExpired(ctx), ShouldEqual, 3)
			So(svc.CacheSize(), ShouldEqual, 0)
		})
	})
}

func TestReplayExpiryFromIssueTime(t *testing.T) {
	Convey("Given a token consumed 20s into its 60s window", t, func() {
		ctx := context.Background()
		clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
		svc := newService(clock,
			token.WithValidityWindow(60*time.Second),
			token.WithReplayBuffer(5*time.Second),
		)
		tok, err := svc.Issue(4)
		So(err, ShouldBeNil)
		clock.Advance(20 * time.Second)
		So(svc.Verify(ctx, 4, tok), ShouldBeTrue)

		Convey("Then it is still held one second before issue time plus window plus buffer", func() {
			clock.Advance(44 * time.Second)
			So(svc.PurgeExpired(ctx), ShouldEqual, 0)
		})

		Convey("Then it is purged at issue time plus window plus buffer", func() {
			clock.Advance(45 * time.Second)
			So(svc.PurgeExpired(ctx), ShouldEqual, 1)
			So(svc.CacheSize(), ShouldEqual, 0)
		})
	})
}

func TestServerCredential(t *testing.T) {
	Convey("Given a token service and a game server sharing its secret", t, func() {
		ctx := context.Background()
		clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
		svc := newService(clock)
		cred, err := token.SignServerCredential("a-real-shared-secret", clock.Now(), time.Minute)
		So(err, ShouldBeNil)

		Convey("Then a fresh credential is accepted repeatedly", func() {
			So(svc.AuthorizeServer(ctx, cred), ShouldBeNil)
			So(svc.AuthorizeServer(ctx, cred), ShouldBeNil)
		})

		Convey("Then a missing or non-bearer credential is refused", func() {
			So(errors.Is(svc.AuthorizeServer(ctx, ""), token.ErrMissingCredential), ShouldBeTrue)
			So(errors.Is(svc.AuthorizeServer(ctx, "Basic abc"), token.ErrMissingCredential), ShouldBeTrue)
		})

		Convey("Then an expired credential is refused", func() {
			clock.Advance(2 * time.Minute)
			err := svc.AuthorizeServer(ctx, cred)
			So(errors.Is(err, token.ErrBadCredential), ShouldBeTrue)
			So(errors.Is(err, token.ErrAuthFailure), ShouldBeTrue)
		})

		Convey("Then a credential from another secret is refused", func() {
			other, err := token.SignServerCredential("some-other-secret", clock.Now(), time.Minute)
			So(err, ShouldBeNil)
			So(errors.Is(svc.AuthorizeServer(ctx, other), token.ErrBadCredential), ShouldBeTrue)
		})

		Convey("Then a client token does not pass as a server credential", func() {
			tok, err := svc.Issue(9)
			So(err, ShouldBeNil)
			So(errors.Is(svc.AuthorizeServer(ctx, "Bearer "+tok.Signature), token.ErrBadCredential), ShouldBeTrue)
		})

		Convey("Then a placeholder secret cannot mint one", func() {
			_, err := token.SignServerCredential("changeme", clock.Now(), time.Minute)
			So(errors.Is(err, token.ErrNoSigningKey), ShouldBeTrue)
		})
	})
}

func TestReplayCache(t *testing.T) {
	Convey("Given an in-memory replay cache", t, func() {
		ctx := context.Background()
		c := token.NewInMemoryReplayCache()
		now := time.Unix(100, 0)

		So(c.SeenAndRecord(ctx, "a", now.Add(time.Minute)), ShouldBeFalse)
		So(c.SeenAndRecord(ctx, "a", now.Add(time.Minute)), ShouldBeTrue)
		So(c.SeenAndRecord(ctx, "b", now.Add(time.Second)), ShouldBeFalse)

		Convey("Then purge removes only expired entries", func() {
			So(c.PurgeExpired(now.Add(2*time.Second)), ShouldEqual, 1)
			So(c.Size(), ShouldEqual, 1)
			So(c.SeenAndRecord(ctx, "b", now.Add(time.Minute)), ShouldBeFalse)
		})
	})
}
