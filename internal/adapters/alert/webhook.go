package alert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/okian/sentinel/internal/adapters/mq/queue"
	"github.com/okian/sentinel/internal/domain/model"
	"github.com/okian/sentinel/pkg/metrics"
)

// Enqueuer accepts deferred jobs without blocking.
type Enqueuer interface {
	Enqueue(ctx context.Context, j queue.Job) bool
}

type webhookPayload struct {
	Channel string      `json:"channel"`
	Alert   model.Alert `json:"alert"`
}

// WebhookNotifier POSTs alerts as JSON. Delivery happens on the dispatch
// workers and is rate limited per minute.
type WebhookNotifier struct {
	url       string
	client    *http.Client
	headers   map[string]string
	timeout   time.Duration
	perMinute int
	limiter   *rate.Limiter
	q         Enqueuer
}

// NewWebhookNotifier posts to url.
func NewWebhookNotifier(url string, q Enqueuer, opts ...WebhookOption) *WebhookNotifier {
	w := &WebhookNotifier{
		url:       url,
		client:    &http.Client{},
		headers:   map[string]string{},
		timeout:   5 * time.Second,
		perMinute: 30,
		q:         q,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(w.perMinute)), w.perMinute)
	return w
}

// Notify queues the delivery. It fails fast when rate limited or when the
// queue is full.
func (w *WebhookNotifier) Notify(ctx context.Context, channel string, a model.Alert) error {
	if !w.limiter.Allow() {
		metrics.RecordCollaboratorFailure("webhook_rate_limited")
		return ErrRateLimited
	}
	body, err := json.Marshal(webhookPayload{Channel: channel, Alert: a})
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrWebhook, err)
	}
	ok := w.q.Enqueue(ctx, queue.Job{
		Name: "webhook." + channel,
		Run:  func(ctx context.Context) error { return w.post(ctx, body) },
	})
	if !ok {
		metrics.RecordCollaboratorFailure("webhook")
		return ErrDropped
	}
	return nil
}

func (w *WebhookNotifier) post(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWebhook, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		metrics.RecordCollaboratorFailure("webhook")
		return fmt.Errorf("%w: %w", ErrWebhook, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		metrics.RecordCollaboratorFailure("webhook")
		return fmt.Errorf("%w: status %d", ErrWebhook, resp.StatusCode)
	}
	return nil
}
