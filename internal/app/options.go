package app

import (
	"time"

	"github.com/okian/sentinel/internal/adapters/alert"
	"github.com/okian/sentinel/internal/adapters/enforcement"
	"github.com/okian/sentinel/internal/adapters/repository"
	"github.com/okian/sentinel/internal/domain/trust"
	"github.com/okian/sentinel/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock replaces time.Now in every time-dependent component.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStore replaces the configured persistence driver. Writes still go
// through the dispatch queue.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithEnforcer replaces the configured enforcement collaborator.
func WithEnforcer(e enforcement.Enforcer) Option {
	return func(s *Service) {
		if e != nil {
			s.enforcer = e
		}
	}
}

// WithNotifier adds an alert destination next to the configured ones.
func WithNotifier(n alert.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.extraNotifiers = append(s.extraNotifiers, n)
		}
	}
}

// WithRaycaster replaces the HTTP raycaster.
func WithRaycaster(r trust.Raycaster) Option {
	return func(s *Service) {
		if r != nil {
			s.raycaster = r
		}
	}
}
