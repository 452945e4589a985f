package gamestate

import (
	"net/http"
	"time"
)

// Option configures a Cache.
type Option func(*Cache)

// WithStaleAfter sets how old a state may be before it is unavailable.
func WithStaleAfter(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.staleAfter = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// RaycasterOption configures an HTTPRaycaster.
type RaycasterOption func(*HTTPRaycaster)

// WithHTTPClient replaces the default client.
func WithHTTPClient(hc *http.Client) RaycasterOption {
	return func(r *HTTPRaycaster) {
		if hc != nil {
			r.client = hc
		}
	}
}

// WithRequestTimeout bounds each raycast round trip.
func WithRequestTimeout(d time.Duration) RaycasterOption {
	return func(r *HTTPRaycaster) {
		if d > 0 {
			r.timeout = d
		}
	}
}
