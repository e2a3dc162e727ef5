package mirror

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"market_feed/internal/modules/config"
	feed "market_feed/internal/modules/feed/service"
	"market_feed/internal/modules/mirror/service"
)

// Module включается флагом redis.enabled.
func Module() fx.Option {
	return fx.Module("mirror",
		fx.Invoke(Run),
	)
}

func Run(lc fx.Lifecycle, cfg *config.Config, reader feed.Reader, registry *feed.Registry, log *zap.Logger) {
	if !cfg.Redis.Enabled {
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	m := service.New(client, reader, registry, cfg.Redis.TTL, log)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := client.Ping(pctx).Err(); err != nil {
				return multierr.Append(errors.Wrap(err, "redis ping"), client.Close())
			}
			m.Start()
			log.Info("redis mirror started", zap.String("addr", cfg.Redis.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			m.Stop()
			return errors.Wrap(client.Close(), "redis close")
		},
	})
}
