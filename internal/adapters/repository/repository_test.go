package repository

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sentinel/internal/adapters/mq/queue"
	"github.com/okian/sentinel/internal/domain/model"
	"github.com/okian/sentinel/pkg/logger"
)

func init() {
	_ = logger.Init()
}

type execCall struct {
	query string
	args  []any
}

type fakeExec struct {
	calls []execCall
	err   error
}

func (f *fakeExec) ExecContext(_ context.Context, q string, args ...any) (sql.Result, error) {
	f.calls = append(f.calls, execCall{query: q, args: args})
	if f.err != nil {
		return nil, f.err
	}
	return driverResult{}, nil
}

type driverResult struct{}

func (driverResult) LastInsertId() (int64, error) { return 0, nil }
func (driverResult) RowsAffected() (int64, error) { return 1, nil }

type failingStore struct {
	NopStore
	calls int
}

func (f *failingStore) StoreDetection(context.Context, model.Detection) error {
	f.calls++
	return errors.New("down")
}

func sampleDetection() model.Detection {
	return model.Detection{
		ID:              "d-1",
		PlayerID:        7,
		Type:            model.Teleport,
		Reason:          "moved too far",
		Detail:          map[string]any{"distance": 500.0},
		Severity:        model.SeverityCritical,
		ServerValidated: true,
		TrustImpact:     25,
		At:              time.Unix(1_700_000_000, 0),
	}
}

func TestPostgresStore(t *testing.T) {
	Convey("Given a postgres store over a fake connection", t, func() {
		ctx := context.Background()
		exec := &fakeExec{}
		s := &PostgresStore{db: exec}

		Convey("When migrating", func() {
			So(s.Migrate(ctx), ShouldBeNil)
			So(exec.calls[0].query, ShouldContainSubstring, "CREATE TABLE IF NOT EXISTS sentinel_detections")
		})

		Convey("When storing a detection", func() {
			So(s.StoreDetection(ctx, sampleDetection()), ShouldBeNil)

			Convey("Then the insert is idempotent on id and detail is JSON", func() {
				call := exec.calls[0]
				So(call.query, ShouldContainSubstring, "ON CONFLICT (id) DO NOTHING")
				So(call.args[0], ShouldEqual, "d-1")
				So(call.args[4], ShouldEqual, "critical")
				So(call.args[8], ShouldEqual, `{"distance":500}`)
			})
		})

		Convey("When the detection has no detail", func() {
			d := sampleDetection()
			d.Detail = nil
			So(s.StoreDetection(ctx, d), ShouldBeNil)
			So(exec.calls[0].args[8], ShouldBeNil)
		})

		Convey("When saving a summary", func() {
			sum := model.SessionSummary{PlayerID: 7, FinalTrust: 40, Errors: map[string]int{"token": 2}}
			So(s.SaveSessionSummary(ctx, sum), ShouldBeNil)
			So(exec.calls[0].args[6], ShouldEqual, `{"token":2}`)
		})

		Convey("When the database fails", func() {
			exec.err = errors.New("connection refused")
			err := s.StoreDetection(ctx, sampleDetection())

			Convey("Then the error is wrapped", func() {
				So(errors.Is(err, ErrPersist), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "connection refused")
			})
		})

		Convey("Close without a pool is a no-op", func() {
			So(s.Close(), ShouldBeNil)
		})
	})
}

func TestJSONLStore(t *testing.T) {
	Convey("Given a JSONL file", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "out.jsonl")
		s, err := OpenJSONL(path)
		So(err, ShouldBeNil)

		So(s.StoreDetection(ctx, sampleDetection()), ShouldBeNil)
		So(s.SaveSessionSummary(ctx, model.SessionSummary{PlayerID: 7, FinalTrust: 75}), ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		Convey("Then each write is one line", func() {
			f, err := os.Open(path)
			So(err, ShouldBeNil)
			defer f.Close()

			var kinds []string
			sc := bufio.NewScanner(f)
			for sc.Scan() {
				var r record
				So(json.Unmarshal(sc.Bytes(), &r), ShouldBeNil)
				kinds = append(kinds, r.Kind)
			}
			So(kinds, ShouldResemble, []string{"detection", "session"})
		})

		Convey("Then writes after close fail", func() {
			err := s.StoreDetection(ctx, sampleDetection())
			So(errors.Is(err, ErrPersist), ShouldBeTrue)
			So(s.Close(), ShouldBeNil)
		})
	})
}

func TestBreaker(t *testing.T) {
	Convey("Given a store that always fails", t, func() {
		ctx := context.Background()
		inner := &failingStore{}
		b := WithBreaker("test-store", inner)

		for range 20 {
			_ = b.StoreDetection(ctx, sampleDetection())
		}

		Convey("Then the breaker opens and stops calling it", func() {
			So(inner.calls, ShouldBeLessThan, 20)
			err := b.StoreDetection(ctx, sampleDetection())
			So(err, ShouldNotBeNil)
			So(strings.Contains(err.Error(), "open"), ShouldBeTrue)
		})

		Convey("Then other calls pass through while closed", func() {
			ok := WithBreaker("ok-store", NopStore{})
			So(ok.SaveSessionSummary(ctx, model.SessionSummary{}), ShouldBeNil)
			So(ok.Close(), ShouldBeNil)
		})
	})
}

func TestAsync(t *testing.T) {
	Convey("Given an async store over a small queue", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(1))
		defer q.Close()
		a := NewAsync("test", NopStore{}, q)

		Convey("When the queue has room", func() {
			So(a.StoreDetection(ctx, sampleDetection()), ShouldBeNil)

			Convey("Then a named job is queued", func() {
				j := <-q.Dequeue(ctx)
				So(j.Name, ShouldEqual, "test.store_detection")
				So(j.Run(ctx), ShouldBeNil)
			})
		})

		Convey("When the queue is full", func() {
			So(a.StoreDetection(ctx, sampleDetection()), ShouldBeNil)
			err := a.SaveSessionSummary(ctx, model.SessionSummary{})

			Convey("Then the write is dropped", func() {
				So(errors.Is(err, ErrDropped), ShouldBeTrue)
			})
		})
	})
}
