package enforcement

import "time"

// Option configures a RedisEnforcer.
type Option func(*RedisEnforcer)

// WithKeyPrefix sets the ban key prefix, default "sentinel:ban:".
func WithKeyPrefix(p string) Option {
	return func(e *RedisEnforcer) {
		if p != "" {
			e.prefix = p
		}
	}
}

// WithChannel sets the pub/sub channel commands are published on.
func WithChannel(ch string) Option {
	return func(e *RedisEnforcer) {
		if ch != "" {
			e.channel = ch
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *RedisEnforcer) {
		if now != nil {
			e.now = now
		}
	}
}
