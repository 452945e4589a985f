package alert

import "errors"

var (
	// ErrRateLimited is returned when the webhook budget for the minute is spent.
	ErrRateLimited = errors.New("alert rate limited")
	// ErrWebhook wraps webhook delivery failures.
	ErrWebhook = errors.New("webhook delivery failed")
	// ErrDropped is returned when the dispatch queue refuses a delivery.
	ErrDropped = errors.New("alert dropped")
)
