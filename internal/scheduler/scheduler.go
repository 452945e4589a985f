// Package scheduler runs every domain callback on a single goroutine.
//
// Inbound requests, periodic jobs and deferred jobs are all funnelled through
// one task channel and executed one at a time, so the components they touch
// need no locking of their own. Work that blocks on I/O must not run here;
// hand it to a dispatcher and Post the result back.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/sentinel/pkg/logger"
	"github.com/okian/sentinel/pkg/metrics"
)

const (
	defaultQueueSize = 4096
)

// Func is a unit of work executed on the loop goroutine.
type Func func(ctx context.Context)

type task struct {
	name string
	fn   Func
	done chan struct{}
}

type periodic struct {
	name     string
	interval time.Duration
	fn       Func
	pending  atomic.Bool
}

// Loop is a cooperative single-goroutine executor.
type Loop struct {
	tasks     chan task
	quit      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	periodic []*periodic

	running atomic.Bool
	queueSz int
	logger  logger.Logger
}

// New creates a Loop. Register periodic jobs with Every before Serve.
func New(opts ...Option) *Loop {
	l := &Loop{
		quit:    make(chan struct{}),
		queueSz: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logger.Get().Named("scheduler")
	}
	l.tasks = make(chan task, l.queueSz)
	return l
}

// Every runs fn every interval on the loop. A tick that fires while the
// previous run of the same job is still queued is dropped and counted.
func (l *Loop) Every(name string, interval time.Duration, fn Func) {
	if interval <= 0 || fn == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.periodic = append(l.periodic, &periodic{name: name, interval: interval, fn: fn})
}

// After runs fn once on the loop after delay. The returned func cancels it if
// it has not fired yet.
func (l *Loop) After(delay time.Duration, fn Func) (cancel func()) {
	t := time.AfterFunc(delay, func() {
		_ = l.enqueue(context.Background(), task{name: "after", fn: fn})
	})
	return func() { t.Stop() }
}

// Post queues fn without waiting. It returns false when the queue is full or
// the loop is closed.
func (l *Loop) Post(name string, fn Func) bool {
	select {
	case <-l.quit:
		return false
	default:
	}
	select {
	case l.tasks <- task{name: name, fn: fn}:
		metrics.UpdateSchedulerQueued(len(l.tasks))
		return true
	default:
		metrics.RecordSchedulerDrop(name)
		return false
	}
}

// Call runs fn on the loop and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn Func) error {
	t := task{name: "call", fn: fn, done: make(chan struct{})}
	if err := l.enqueue(ctx, t); err != nil {
		return err
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler call: %w", ctx.Err())
	case <-l.quit:
		return ErrClosed
	}
}

func (l *Loop) enqueue(ctx context.Context, t task) error {
	select {
	case l.tasks <- t:
		metrics.UpdateSchedulerQueued(len(l.tasks))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler enqueue: %w", ctx.Err())
	case <-l.quit:
		return ErrClosed
	}
}

// Serve executes tasks until ctx is canceled or Close is called. It satisfies
// suture.Service.
func (l *Loop) Serve(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	l.mu.Lock()
	jobs := len(l.periodic)
	for _, p := range l.periodic {
		wg.Add(1)
		go l.tick(runCtx, &wg, p)
	}
	l.mu.Unlock()
	defer wg.Wait()

	l.logger.Info(ctx, "scheduler loop started", logger.Int("periodic", jobs))
	for {
		select {
		case <-runCtx.Done():
			l.logger.Info(ctx, "scheduler loop stopped")
			return nil
		case <-l.quit:
			l.logger.Info(ctx, "scheduler loop closed")
			return nil
		case t := <-l.tasks:
			l.run(runCtx, t)
		}
	}
}

func (l *Loop) tick(ctx context.Context, wg *sync.WaitGroup, p *periodic) {
	defer wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.pending.CompareAndSwap(false, true) {
				metrics.RecordSchedulerDrop(p.name)
				continue
			}
			fn := p.fn
			if !l.Post(p.name, func(ctx context.Context) {
				defer p.pending.Store(false)
				fn(ctx)
			}) {
				p.pending.Store(false)
			}
		}
	}
}

// run executes one task. A panicking task is logged and the loop continues.
func (l *Loop) run(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error(ctx, "scheduled task panicked",
				logger.String("task", t.name),
				logger.Any("panic", r),
			)
		}
		if t.done != nil {
			close(t.done)
		}
	}()
	t.fn(ctx)
}

// Close stops Serve and refuses further work.
func (l *Loop) Close() {
	l.closeOnce.Do(func() { close(l.quit) })
}

// Running reports whether Serve is executing.
func (l *Loop) Running() bool {
	return l.running.Load()
}
