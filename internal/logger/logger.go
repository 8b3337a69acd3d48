package logger

import (
	"fmt"
	"time"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const flushTimeout = 2 * time.Second

// New builds the production logger. When sentryDSN is set, error-level entries are
// also reported to Sentry and info-level entries become breadcrumbs.
// The returned func flushes pending output and must be called before exit.
func New(level, sentryDSN string) (*zap.Logger, func(), error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, fmt.Errorf("log level %q: %w", level, err)
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	base, err := cfg.Build()
	if err != nil {
		return nil, nil, err
	}
	if sentryDSN == "" {
		return base, func() { _ = base.Sync() }, nil
	}

	client, err := sentry.NewClient(sentry.ClientOptions{Dsn: sentryDSN})
	if err != nil {
		return nil, nil, fmt.Errorf("sentry client: %w", err)
	}
	core, err := zapsentry.NewCore(zapsentry.Configuration{
		Level:             zapcore.ErrorLevel,
		EnableBreadcrumbs: true,
		BreadcrumbLevel:   zapcore.InfoLevel,
		Tags:              map[string]string{"component": "vaultscope"},
	}, zapsentry.NewSentryClientFromClient(client))
	if err != nil {
		return nil, nil, fmt.Errorf("sentry core: %w", err)
	}

	log := zapsentry.AttachCoreToLogger(core, base)
	return log, func() {
		client.Flush(flushTimeout)
		_ = log.Sync()
	}, nil
}
