package logger

import (
	"context"
	"fmt"
	"time"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/notemark/notemark/pkg/config"
)

func New(cfg *config.Config) (*zap.SugaredLogger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.EncoderConfig.TimeKey = "time"
	l, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	if cfg != nil && cfg.Sentry.DSN != "" {
		if l, err = attachSentry(l, cfg); err != nil {
			return nil, err
		}
	}
	return l.Sugar(), nil
}

// attachSentry tees error-level entries to Sentry.
func attachSentry(l *zap.Logger, cfg *config.Config) (*zap.Logger, error) {
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.Sentry.DSN,
		Environment: string(cfg.Env),
		Debug:       cfg.Env == config.EnvDev,
	}); err != nil {
		return nil, fmt.Errorf("failed to init sentry: %w", err)
	}
	core, err := zapsentry.NewCore(zapsentry.Configuration{
		Level: zapcore.ErrorLevel,
		Tags: map[string]string{
			"component": "billing",
		},
	}, zapsentry.NewSentryClientFromClient(sentry.CurrentHub().Client()))
	if err != nil {
		return nil, fmt.Errorf("failed to create sentry core: %w", err)
	}
	return zapsentry.AttachCoreToLogger(core, l), nil
}

func registerFlush(lc fx.Lifecycle, log *zap.SugaredLogger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sentry.Flush(2 * time.Second)
			_ = log.Sync()
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(registerFlush),
)
