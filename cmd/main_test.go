package main

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/sentinel/internal/config"
)

func setenv(key, val string) { _ = os.Setenv(key, val) }

func unsetenv(keys ...string) {
	for _, k := range keys {
		_ = os.Unsetenv(k)
	}
}

func TestRun(t *testing.T) {
	convey.Convey("Given the process entry point", t, func() {
		convey.Convey("When the environment carries no signing secret", func() {
			setenv("SENTINEL_TOKEN__SECRET", "")
			setenv("SENTINEL_ADDR", "127.0.0.1:0")
			defer unsetenv("SENTINEL_TOKEN__SECRET", "SENTINEL_ADDR")

			convey.Convey("Then run refuses to start", func() {
				err := run(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the configuration is invalid", func() {
			setenv("SENTINEL_PERSISTENCE__DRIVER", "mongo")
			defer unsetenv("SENTINEL_PERSISTENCE__DRIVER")

			convey.Convey("Then run reports the load error", func() {
				err := run(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When a valid configuration is supplied and the context ends", func() {
			setenv("SENTINEL_TOKEN__SECRET", "cmd-test-secret-value")
			setenv("SENTINEL_ADDR", "127.0.0.1:0")
			setenv("SENTINEL_ALERTS__WEBSOCKET_ENABLED", "false")
			defer unsetenv("SENTINEL_TOKEN__SECRET", "SENTINEL_ADDR", "SENTINEL_ALERTS__WEBSOCKET_ENABLED")

			convey.Convey("Then run shuts down cleanly", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
				defer cancel()
				convey.So(run(ctx), convey.ShouldBeNil)
			})
		})
	})
}

func TestConfigFromEnvironment(t *testing.T) {
	convey.Convey("Given SENTINEL_ variables", t, func() {
		t.Setenv("SENTINEL_ADDR", ":8080")
		t.Setenv("SENTINEL_DISPATCH__WORKERS", "2")
		t.Setenv("SENTINEL_NETWORK__EVENT_SPAM_LIMIT", "5")
		_ = os.Unsetenv("SENTINEL_CONFIG")

		convey.Convey("Then they override the defaults", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.Dispatch.Workers, convey.ShouldEqual, 2)
			convey.So(cfg.Network.EventSpamLimit, convey.ShouldEqual, 5)
		})
	})
}
