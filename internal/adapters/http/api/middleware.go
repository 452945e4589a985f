package api

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/sentinel/pkg/metrics"
)

var errNoHijack = errors.New("response writer does not support hijacking")

// MetricsMiddleware records request count, latency and error class per
// endpoint.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		ms := float64(time.Since(start).Microseconds()) / 1000
		code := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, code)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, ms)

		kind, severity, failed := classify(rec.status)
		if !failed {
			return
		}
		metrics.RecordErrorByEndpoint(endpoint, r.Method, kind)
		metrics.RecordErrorByType(kind, severity)
		metrics.RecordErrorLatency("http", kind, ms)
	}
}

// classify maps a response status to an error class and severity. Auth and
// ban refusals rank low.
func classify(status int) (kind, severity string, failed bool) {
	switch {
	case status < http.StatusBadRequest:
		return "", "", false
	case status == http.StatusUnauthorized:
		return "auth", "low", true
	case status == http.StatusForbidden:
		return "banned", "low", true
	case status == http.StatusNotFound:
		return "not_found", "low", true
	case status == http.StatusConflict:
		return "conflict", "low", true
	case status == http.StatusTooManyRequests:
		return "backpressure", "medium", true
	case status == http.StatusServiceUnavailable:
		return "unavailable", "high", true
	case status >= http.StatusInternalServerError:
		return "server_error", "high", true
	default:
		return "client_error", "medium", true
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wrote {
		r.status = code
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wrote = true
	return r.ResponseWriter.Write(b)
}

// Hijack lets websocket upgrades pass through.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errNoHijack
	}
	return h.Hijack()
}
