package statehistory

import (
	"time"

	"github.com/okian/sentinel/pkg/logger"
)

// Option applies a configuration option to the Tracker.
type Option func(*Tracker)

// WithLimits sets the validation thresholds. Non-positive fields keep
// their defaults.
func WithLimits(l Limits) Option {
	return func(t *Tracker) {
		t.limits = l.withDefaults()
	}
}

// WithHistoryDepth sets the per-player snapshot ring depth.
func WithHistoryDepth(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.depth = n
		}
	}
}

// WithMetricDepth caps each metric series.
func WithMetricDepth(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.metricDepth = n
		}
	}
}

// WithFindingSink receives every finding produced by Check.
func WithFindingSink(sink FindingSink) Option {
	return func(t *Tracker) {
		if sink != nil {
			t.sink = sink
		}
	}
}

// WithClock sets the time source used to stamp captures.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(t *Tracker) {
		if log != nil {
			t.logger = log
		}
	}
}
