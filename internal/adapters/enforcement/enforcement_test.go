package enforcement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/sentinel/internal/adapters/mq/queue"
	"github.com/okian/sentinel/pkg/logger"
)

func init() {
	_ = logger.Init()
}

type setCall struct {
	key string
	val []byte
	ttl time.Duration
}

type fakeRedis struct {
	sets      []setCall
	published [][]byte
	channel   string
	keys      map[string]bool
	err       error
}

func newFakeRedis() *fakeRedis { return &fakeRedis{keys: map[string]bool{}} }

func (f *fakeRedis) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.sets = append(f.sets, setCall{key: key, val: value.([]byte), ttl: ttl})
	f.keys[key] = true
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Exists(_ context.Context, keys ...string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if f.keys[k] {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Publish(_ context.Context, channel string, msg any) *redis.IntCmd {
	f.channel = channel
	f.published = append(f.published, msg.([]byte))
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) Close() error { return nil }

func TestRedisEnforcer(t *testing.T) {
	convey.Convey("Given a redis enforcer over a fake client", t, func() {
		ctx := context.Background()
		now := time.Unix(2_000_000_000, 0)
		rdb := newFakeRedis()
		e := NewRedisEnforcer(rdb, WithClock(func() time.Time { return now }))

		convey.Convey("When a player is banned for a day", func() {
			convey.So(e.Ban(ctx, 12, "trust 20", "sentinel", 24*time.Hour), convey.ShouldBeNil)

			convey.Convey("Then an expiring key is set and a command is published", func() {
				convey.So(rdb.sets, convey.ShouldHaveLength, 1)
				convey.So(rdb.sets[0].key, convey.ShouldEqual, "sentinel:ban:12")
				convey.So(rdb.sets[0].ttl, convey.ShouldEqual, 24*time.Hour)
				convey.So(rdb.channel, convey.ShouldEqual, "sentinel:enforcement")

				var cmd Command
				convey.So(json.Unmarshal(rdb.published[0], &cmd), convey.ShouldBeNil)
				convey.So(cmd.Action, convey.ShouldEqual, ActionBan)
				convey.So(cmd.Issuer, convey.ShouldEqual, "sentinel")
				convey.So(cmd.DurationSec, convey.ShouldEqual, 86400)
				convey.So(cmd.ExpiresAt.Equal(now.Add(24*time.Hour)), convey.ShouldBeTrue)
			})

			convey.Convey("Then IsBanned sees it", func() {
				banned, err := e.IsBanned(ctx, 12)
				convey.So(err, convey.ShouldBeNil)
				convey.So(banned, convey.ShouldBeTrue)

				banned, _ = e.IsBanned(ctx, 13)
				convey.So(banned, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When a player is disconnected", func() {
			convey.So(e.Disconnect(ctx, 5, "trust below kick threshold"), convey.ShouldBeNil)

			convey.Convey("Then only a command is published", func() {
				convey.So(rdb.sets, convey.ShouldBeEmpty)
				var cmd Command
				convey.So(json.Unmarshal(rdb.published[0], &cmd), convey.ShouldBeNil)
				convey.So(cmd.Action, convey.ShouldEqual, ActionDisconnect)
				convey.So(cmd.ExpiresAt, convey.ShouldBeNil)
			})
		})

		convey.Convey("When redis fails", func() {
			rdb.err = errors.New("connection reset")
			convey.So(errors.Is(e.Ban(ctx, 1, "x", "sentinel", time.Hour), ErrEnforce), convey.ShouldBeTrue)
			_, err := e.IsBanned(ctx, 1)
			convey.So(errors.Is(err, ErrEnforce), convey.ShouldBeTrue)
		})

		convey.Convey("When prefixes are customised", func() {
			e := NewRedisEnforcer(rdb, WithKeyPrefix("ac:"), WithChannel("ac:cmd"))
			convey.So(e.Ban(ctx, 3, "x", "sentinel", 0), convey.ShouldBeNil)
			convey.So(rdb.sets[0].key, convey.ShouldEqual, "ac:3")
			convey.So(rdb.sets[0].ttl, convey.ShouldEqual, 0)
			convey.So(rdb.channel, convey.ShouldEqual, "ac:cmd")
		})
	})
}

func TestLogEnforcer(t *testing.T) {
	convey.Convey("Given an in-memory enforcer", t, func() {
		ctx := context.Background()
		now := time.Unix(100, 0)
		e := NewLogEnforcer(func() time.Time { return now })

		convey.So(e.Ban(ctx, 1, "x", "sentinel", time.Minute), convey.ShouldBeNil)
		convey.So(e.Ban(ctx, 2, "x", "sentinel", 0), convey.ShouldBeNil)
		convey.So(e.Disconnect(ctx, 3, "bye"), convey.ShouldBeNil)

		convey.Convey("Then bans expire and permanent bans stay", func() {
			b, _ := e.IsBanned(ctx, 1)
			convey.So(b, convey.ShouldBeTrue)

			now = now.Add(time.Minute)
			b, _ = e.IsBanned(ctx, 1)
			convey.So(b, convey.ShouldBeFalse)
			b, _ = e.IsBanned(ctx, 2)
			convey.So(b, convey.ShouldBeTrue)
			b, _ = e.IsBanned(ctx, 3)
			convey.So(b, convey.ShouldBeFalse)
		})
	})
}

func TestAsync(t *testing.T) {
	convey.Convey("Given an async enforcer", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(1))
		defer q.Close()
		inner := NewLogEnforcer(nil)
		a := NewAsync(inner, q)

		convey.So(a.Ban(ctx, 9, "x", "sentinel", time.Hour), convey.ShouldBeNil)

		convey.Convey("Then the ban only lands when the job runs", func() {
			b, _ := a.IsBanned(ctx, 9)
			convey.So(b, convey.ShouldBeFalse)

			j := <-q.Dequeue(ctx)
			convey.So(j.Run(ctx), convey.ShouldBeNil)
			b, _ = a.IsBanned(ctx, 9)
			convey.So(b, convey.ShouldBeTrue)
		})

		convey.Convey("Then a full queue drops the command", func() {
			convey.So(errors.Is(a.Disconnect(ctx, 9, "bye"), ErrDropped), convey.ShouldBeTrue)
		})
	})
}
