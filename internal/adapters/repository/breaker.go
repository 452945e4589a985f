package repository

import (
	"context"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/okian/sentinel/internal/adapters/breaker"
	"github.com/okian/sentinel/internal/domain/model"
)

// Breaker fails fast while the wrapped store keeps failing.
type Breaker struct {
	next Store
	cb   *gobreaker.CircuitBreaker[struct{}]
}

// WithBreaker wraps next in a circuit breaker named name.
func WithBreaker(name string, next Store) *Breaker {
	return &Breaker{next: next, cb: breaker.New[struct{}](name, breaker.Settings{})}
}

func (b *Breaker) StoreDetection(ctx context.Context, d model.Detection) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.StoreDetection(ctx, d)
	})
	return err
}

func (b *Breaker) SaveSessionSummary(ctx context.Context, s model.SessionSummary) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.SaveSessionSummary(ctx, s)
	})
	return err
}

func (b *Breaker) Close() error { return b.next.Close() }
