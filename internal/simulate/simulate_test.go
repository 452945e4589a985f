package simulate_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sentinel/internal/app"
	"github.com/okian/sentinel/internal/config"
	"github.com/okian/sentinel/internal/simulate"
	"github.com/okian/sentinel/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func TestScenario(t *testing.T) {
	Convey("Given a simulation config", t, func() {
		cfg := simulate.DefaultConfig()
		cfg.Secret = "scenario-secret"
		cfg.Players = 5
		cfg.Teleporters = 1
		cfg.Spammers = 2
		cfg.FirstPlayerID = 10

		Convey("When the roster is built", func() {
			roster := simulate.Roster(cfg)

			Convey("Then roles are assigned in order with consecutive ids", func() {
				So(roster, ShouldHaveLength, 5)
				So(roster[0], ShouldResemble, simulate.Player{ID: 10, Role: simulate.RoleTeleporter})
				So(roster[1].Role, ShouldEqual, simulate.RoleSpammer)
				So(roster[2].Role, ShouldEqual, simulate.RoleSpammer)
				So(roster[4], ShouldResemble, simulate.Player{ID: 14, Role: simulate.RoleHonest})
			})

			Convey("Then honest players walk and teleporters jump", func() {
				honest, tele := roster[4], roster[0]
				So(honest.StateAt(1).Position.X-honest.StateAt(0).Position.X, ShouldEqual, 1)
				So(tele.StateAt(1).Position.X-tele.StateAt(0).Position.X, ShouldBeGreaterThan, 1000)
			})

			Convey("Then spammers repeat one event per burst", func() {
				So(roster[1].EventsAt(0, 7), ShouldHaveLength, 7)
				So(roster[4].EventsAt(0, 7), ShouldHaveLength, 1)
			})
		})

		Convey("When cheaters outnumber players", func() {
			cfg.Teleporters = 4
			err := cfg.Validate()

			Convey("Then validation fails", func() {
				So(errors.Is(err, simulate.ErrInvalidConfig), ShouldBeTrue)
			})
		})

		Convey("When the shared secret is missing", func() {
			cfg.Secret = ""
			So(errors.Is(cfg.Validate(), simulate.ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("When the URL is malformed", func() {
			cfg.BaseURL = "not a url"

			Convey("Then validation fails", func() {
				So(errors.Is(cfg.Validate(), simulate.ErrInvalidConfig), ShouldBeTrue)
			})
		})
	})
}

func TestVerify(t *testing.T) {
	Convey("Given end-of-run outcomes", t, func() {
		cheater := simulate.Player{ID: 1, Role: simulate.RoleSpammer}
		honest := simulate.Player{ID: 2, Role: simulate.RoleHonest}

		Convey("When cheaters lost trust and honest players kept it", func() {
			out := []simulate.Outcome{
				{Player: cheater, Session: simulate.SessionReply{TrustScore: 90}},
				{Player: honest, Session: simulate.SessionReply{TrustScore: 100}},
			}

			Convey("Then verification passes", func() {
				So(simulate.Verify(out), ShouldBeNil)
				So(simulate.Flagged(out), ShouldEqual, 1)
			})
		})

		Convey("When a cheater kept full trust", func() {
			out := []simulate.Outcome{{Player: cheater, Session: simulate.SessionReply{TrustScore: 100}}}

			Convey("Then verification names the player", func() {
				err := simulate.Verify(out)
				So(errors.Is(err, simulate.ErrVerification), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "player 1")
			})
		})
	})
}

func freeAddr() string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	So(err, ShouldBeNil)
	addr := l.Addr().String()
	So(l.Close(), ShouldBeNil)
	return addr
}

func TestRunAgainstService(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a full service")
	}
	Convey("Given a running sentinel service", t, func() {
		cfg := config.New()
		cfg.Addr = freeAddr()
		cfg.Token.Secret = "simulation-test-secret"
		cfg.State.CheckIntervalMS = 50
		cfg.Alerts.WebsocketEnabled = false

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		svc, err := app.New(ctx, cfg)
		So(err, ShouldBeNil)
		done := make(chan error, 1)
		go func() { done <- svc.Serve(ctx) }()

		base := "http://" + cfg.Addr
		So(waitHealthy(base), ShouldBeTrue)

		Convey("When a short simulation runs", func() {
			sim := simulate.DefaultConfig()
			sim.BaseURL = base
			sim.Secret = cfg.Token.Secret
			sim.Players = 6
			sim.Teleporters = 1
			sim.Spammers = 1
			sim.Rounds = 4
			sim.RoundInterval = 150 * time.Millisecond
			sim.SpamBurst = 35
			sim.Settle = 200 * time.Millisecond
			sim.Workers = 4

			stats, err := simulate.Run(ctx, sim)

			Convey("Then cheaters are flagged and everyone is disconnected", func() {
				So(err, ShouldBeNil)
				So(stats.Connected, ShouldEqual, 6)
				So(stats.Flagged, ShouldEqual, 2)
				So(stats.EventsBlocked, ShouldBeGreaterThan, 0)
				So(stats.Disconnected, ShouldEqual, 6)
			})
		})

		cancel()
		So(<-done, ShouldBeNil)
	})
}

func waitHealthy(base string) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return true
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}
