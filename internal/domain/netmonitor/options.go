package netmonitor

import (
	"time"

	"github.com/okian/sentinel/pkg/logger"
)

// Option applies a configuration option to the Monitor.
type Option func(*Monitor)

// WithLimits sets the per-window limits. Non-positive fields keep their
// defaults.
func WithLimits(l Limits) Option {
	return func(m *Monitor) {
		m.limits = l.withDefaults()
	}
}

// WithRecentDepth sets the length of the recent-events ring.
func WithRecentDepth(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.recentDepth = n
		}
	}
}

// WithWindowHistory sets how many rotated windows are retained.
func WithWindowHistory(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.windowHistory = n
		}
	}
}

// WithPatterns replaces the suspicious-sequence library. Empty sequences are
// ignored; an empty library keeps the defaults.
func WithPatterns(patterns map[string][]string) Option {
	return func(m *Monitor) {
		ps := compilePatterns(patterns)
		if len(ps) > 0 {
			m.patterns = ps
		}
	}
}

// WithMinMatches sets how many occurrences of one pattern flag a player.
func WithMinMatches(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.minMatches = n
		}
	}
}

// WithFindingSink receives spam and sequence findings.
func WithFindingSink(sink FindingSink) Option {
	return func(m *Monitor) {
		if sink != nil {
			m.sink = sink
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(m *Monitor) {
		if log != nil {
			m.logger = log
		}
	}
}
