package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"jumptrainer/internal/config"
)

// InitErrorReporting configures the sentry client. An empty DSN leaves
// reporting disabled and returns a no-op flush.
func InitErrorReporting(cfg config.SentryConfig, release string) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     release,
	})
	if err != nil {
		return func() {}, err
	}
	GetLogger().Debug("error reporting enabled", zap.String("environment", cfg.Environment))
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// ReportError logs err and forwards it to sentry when a client is bound.
func ReportError(err error, msg string, fields ...zap.Field) {
	if err == nil {
		return
	}
	GetLogger().Error(msg, append(fields, zap.Error(err))...)
	sentry.CaptureException(err)
}

// Recover reports a panic on the current goroutine to sentry and re-panics.
func Recover() {
	if r := recover(); r != nil {
		sentry.CurrentHub().Recover(r)
		sentry.Flush(2 * time.Second)
		panic(r)
	}
}
