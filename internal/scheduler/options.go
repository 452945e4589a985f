package scheduler

import "github.com/okian/sentinel/pkg/logger"

// Option applies a configuration option to the Loop.
type Option func(*Loop)

// WithQueueSize bounds the number of tasks waiting for the loop.
func WithQueueSize(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.queueSz = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(l *Loop) {
		if log != nil {
			l.logger = log
		}
	}
}
