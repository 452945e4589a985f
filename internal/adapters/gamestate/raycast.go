package gamestate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/okian/sentinel/internal/adapters/breaker"
	"github.com/okian/sentinel/internal/adapters/mq/queue"
	"github.com/okian/sentinel/internal/domain/trust"
	"github.com/okian/sentinel/pkg/metrics"
)

// Enqueuer accepts deferred jobs without blocking.
type Enqueuer interface {
	Enqueue(ctx context.Context, j queue.Job) bool
}

// HTTPRaycaster asks the game server for line-of-sight checks over HTTP.
// Requests run on the dispatch workers; Raycast itself never blocks.
type HTTPRaycaster struct {
	url     string
	client  *http.Client
	timeout time.Duration
	q       Enqueuer
	cb      *gobreaker.CircuitBreaker[trust.RaycastResult]
}

// NewHTTPRaycaster posts requests to url.
func NewHTTPRaycaster(url string, q Enqueuer, opts ...RaycasterOption) *HTTPRaycaster {
	r := &HTTPRaycaster{
		url:     url,
		client:  &http.Client{},
		timeout: 2 * time.Second,
		q:       q,
		cb:      breaker.New[trust.RaycastResult]("raycast", breaker.Settings{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Raycast queues the request. reply is called exactly once, with Err set
// when the request was dropped or failed.
func (r *HTTPRaycaster) Raycast(ctx context.Context, req trust.RaycastRequest, reply func(trust.RaycastResult)) {
	job := queue.Job{
		Name: "raycast",
		Run: func(ctx context.Context) error {
			res, err := r.cb.Execute(func() (trust.RaycastResult, error) {
				return r.do(ctx, req)
			})
			if err != nil {
				metrics.RecordRaycast("error")
				reply(trust.RaycastResult{Err: err})
				return err
			}
			metrics.RecordRaycast("ok")
			reply(res)
			return nil
		},
	}
	if !r.q.Enqueue(ctx, job) {
		metrics.RecordRaycast("dropped")
		reply(trust.RaycastResult{Err: fmt.Errorf("%w: dispatch queue refused request", ErrRaycast)})
	}
}

func (r *HTTPRaycaster) do(ctx context.Context, req trust.RaycastRequest) (trust.RaycastResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return trust.RaycastResult{}, fmt.Errorf("%w: encode: %w", ErrRaycast, err)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return trust.RaycastResult{}, fmt.Errorf("%w: %w", ErrRaycast, err)
	}
	hreq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(hreq)
	if err != nil {
		return trust.RaycastResult{}, fmt.Errorf("%w: %w", ErrRaycast, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return trust.RaycastResult{}, fmt.Errorf("%w: status %d", ErrRaycast, resp.StatusCode)
	}
	var out trust.RaycastResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return trust.RaycastResult{}, fmt.Errorf("%w: decode: %w", ErrRaycast, err)
	}
	return out, nil
}
