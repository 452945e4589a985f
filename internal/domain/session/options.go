package session

import (
	"time"

	"github.com/okian/sentinel/pkg/logger"
)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithHistoryLimit bounds each session's detection history.
func WithHistoryLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithClock sets the time source used for creation and teardown stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.logger = log
		}
	}
}
