package alert

import (
	"net/http"
	"time"
)

// WebhookOption configures a WebhookNotifier.
type WebhookOption func(*WebhookNotifier)

// WithRatePerMinute caps deliveries per minute. Zero or less keeps the default.
func WithRatePerMinute(n int) WebhookOption {
	return func(w *WebhookNotifier) {
		if n > 0 {
			w.perMinute = n
		}
	}
}

// WithHeaders adds static headers to every request, e.g. an auth token.
func WithHeaders(h map[string]string) WebhookOption {
	return func(w *WebhookNotifier) {
		for k, v := range h {
			w.headers[k] = v
		}
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(hc *http.Client) WebhookOption {
	return func(w *WebhookNotifier) {
		if hc != nil {
			w.client = hc
		}
	}
}

// WithTimeout bounds each delivery.
func WithTimeout(d time.Duration) WebhookOption {
	return func(w *WebhookNotifier) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithAllowedOrigins restricts websocket origins. "*" allows any.
func WithAllowedOrigins(origins ...string) HubOption {
	return func(h *Hub) {
		h.origins = append(h.origins, origins...)
	}
}

// WithClientBuffer sets the per-client send buffer.
func WithClientBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.clientBuffer = n
		}
	}
}
