// Package alert delivers operator alerts to a webhook, connected admin
// dashboards and the log.
package alert

import (
	"context"
	"errors"

	"github.com/okian/sentinel/internal/domain/model"
	"github.com/okian/sentinel/pkg/logger"
)

// Notifier delivers one alert on a named channel.
type Notifier interface {
	Notify(ctx context.Context, channel string, a model.Alert) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	log logger.Logger
}

// NewLogNotifier returns a notifier logging under "alert".
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logger.Get().Named("alert")}
}

// Notify logs a at warn level.
func (n *LogNotifier) Notify(ctx context.Context, channel string, a model.Alert) error {
	n.log.Warn(ctx, a.Message,
		logger.String("channel", channel),
		logger.PlayerID(a.PlayerID),
		logger.String("type", string(a.Type)),
		logger.String("severity", a.Severity.String()),
		logger.Float64("trust", a.TrustScore),
		logger.String("action", a.Action),
	)
	return nil
}

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

// Notify calls each notifier in order; one failure does not stop the rest.
func (m Multi) Notify(ctx context.Context, channel string, a model.Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, channel, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
