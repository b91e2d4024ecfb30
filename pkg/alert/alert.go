package alert

import (
	"context"
	"log/slog"
	"time"

	"campaign-dialer/pkg/logger"

	"github.com/getsentry/sentry-go"
)

// Notifier escalates errors that should never happen in normal operation
// (provider call id collisions, for example). Implementations must not block.
type Notifier interface {
	Alert(ctx context.Context, err error, tags map[string]string)
}

// LogNotifier writes alerts to the structured log only.
type LogNotifier struct{}

func (LogNotifier) Alert(ctx context.Context, err error, tags map[string]string) {
	attrs := []any{"err", err, "severity", "alert"}
	for k, v := range tags {
		attrs = append(attrs, k, v)
	}
	logger.From(ctx).Error("alert", attrs...)
}

// SentryNotifier logs the alert and forwards it to Sentry.
type SentryNotifier struct {
	hub *sentry.Hub
}

func (n SentryNotifier) Alert(ctx context.Context, err error, tags map[string]string) {
	LogNotifier{}.Alert(ctx, err, tags)

	hub := n.hub
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		hub.CaptureException(err)
	})
}

// Setup returns a Sentry-backed notifier when dsn is set, otherwise a LogNotifier.
// The returned flush func must be called on shutdown.
func Setup(dsn, env, release string) (Notifier, func(timeout time.Duration), error) {
	if dsn == "" {
		return LogNotifier{}, func(time.Duration) {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: env,
		Release:     release,
	}); err != nil {
		return nil, nil, err
	}
	slog.Info("sentry alerts enabled", "env", env)
	return SentryNotifier{hub: sentry.CurrentHub()}, func(timeout time.Duration) { sentry.Flush(timeout) }, nil
}
