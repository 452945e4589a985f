// Package breaker builds the circuit breakers that guard outbound
// collaborator calls.
package breaker

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/okian/sentinel/pkg/logger"
	"github.com/okian/sentinel/pkg/metrics"
)

const (
	minRequests  = 10
	failureRatio = 0.6
)

// Settings tune a breaker. Zero fields take defaults.
type Settings struct {
	// MaxRequests allowed while half-open.
	MaxRequests uint32
	// Interval after which closed-state counts reset.
	Interval time.Duration
	// Timeout before an open breaker goes half-open.
	Timeout time.Duration
}

// New returns a breaker that opens at a 60% failure rate over at least ten
// requests and exports its state as a gauge.
func New[T any](name string, s Settings) *gobreaker.CircuitBreaker[T] {
	if s.MaxRequests == 0 {
		s.MaxRequests = 3
	}
	if s.Interval <= 0 {
		s.Interval = time.Minute
	}
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}
	log := logger.Get().Named("breaker")
	metrics.UpdateCircuitBreakerState(name, 0)

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if c.Requests < minRequests {
				return false
			}
			return float64(c.TotalFailures)/float64(c.Requests) >= failureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateCircuitBreakerState(name, StateValue(to))
			log.Warn(context.Background(), "circuit breaker state change",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	})
}

// StateValue maps a state to the gauge value: 0 closed, 1 half-open, 2 open.
func StateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
