package main

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"market_feed/internal/modules/api"
	"market_feed/internal/modules/config"
	"market_feed/internal/modules/feed"
	"market_feed/internal/modules/mirror"
	"market_feed/internal/modules/notifier"
	telegram "market_feed/internal/modules/telegram_bot"
	"market_feed/internal/modules/transport"
	"market_feed/internal/modules/watchlist"
	"market_feed/pkg/logger"
	"market_feed/pkg/tracing"
)

const serviceName = "market_feed"

func main() {
	app := fx.New(
		config.Module(),
		fx.Provide(newLogger),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Invoke(initTracing),

		notifier.Module(),
		transport.Module(),
		feed.Module(),
		// после feed: первый Sync подписывает уже запущенный фид
		watchlist.Module(),
		mirror.Module(),
		api.Module(),
		telegram.Module(),
	)
	app.Run()
}

func newLogger(lc fx.Lifecycle, cfg *config.Config) (*zap.Logger, error) {
	logger.SetServiceName(serviceName)
	l, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, err
	}
	logger.Init(l)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			_ = l.Sync()
			return nil
		},
	})
	return l, nil
}

func initTracing(lc fx.Lifecycle, cfg *config.Config) error {
	tracing.SetServiceName(serviceName)
	_, closeTracer, err := tracing.InitTracer(tracing.Config{
		Enabled: cfg.Tracing.Enabled,
		Host:    cfg.Tracing.Host,
		Port:    cfg.Tracing.Port,
	})
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closeTracer()
			return nil
		},
	})
	return nil
}
