package token

import (
	"time"

	"github.com/okian/sentinel/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithValidityWindow sets how long after issue a token is accepted.
func WithValidityWindow(d time.Duration) Option {
	return func(s *Service) {
		if d >= time.Second {
			s.validity = d
		}
	}
}

// WithFutureSkew sets how far ahead of the server clock an issue time may be.
func WithFutureSkew(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.futureSkew = d
		}
	}
}

// WithReplayBuffer sets the extra time a consumed signature is remembered.
func WithReplayBuffer(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.replayBuffer = d
		}
	}
}

// WithReplayCache replaces the in-memory anti-replay cache.
func WithReplayCache(c ReplayCache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}
