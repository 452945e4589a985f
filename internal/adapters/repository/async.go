package repository

import (
	"context"
	"fmt"

	"github.com/okian/sentinel/internal/adapters/mq/queue"
	"github.com/okian/sentinel/internal/domain/model"
	"github.com/okian/sentinel/pkg/metrics"
)

// Enqueuer accepts deferred jobs without blocking.
type Enqueuer interface {
	Enqueue(ctx context.Context, j queue.Job) bool
}

// Async hands every write to the dispatch queue and returns at once. Write
// failures surface in the worker's log, not to the caller.
type Async struct {
	name string
	next Store
	q    Enqueuer
}

// NewAsync wraps next. name labels jobs, e.g. "postgres".
func NewAsync(name string, next Store, q Enqueuer) *Async {
	return &Async{name: name, next: next, q: q}
}

func (a *Async) StoreDetection(ctx context.Context, d model.Detection) error {
	return a.submit(ctx, "store_detection", func(ctx context.Context) error {
		return a.next.StoreDetection(ctx, d)
	})
}

func (a *Async) SaveSessionSummary(ctx context.Context, s model.SessionSummary) error {
	return a.submit(ctx, "save_session", func(ctx context.Context) error {
		return a.next.SaveSessionSummary(ctx, s)
	})
}

func (a *Async) Close() error { return a.next.Close() }

func (a *Async) submit(ctx context.Context, op string, run func(context.Context) error) error {
	name := a.name + "." + op
	if !a.q.Enqueue(ctx, queue.Job{Name: name, Run: run}) {
		metrics.RecordCollaboratorFailure(a.name)
		return fmt.Errorf("%w: %s", ErrDropped, name)
	}
	return nil
}
