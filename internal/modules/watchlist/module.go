package watchlist

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"market_feed/internal/modules/config"
	feed "market_feed/internal/modules/feed/service"
	"market_feed/internal/modules/watchlist/service"
	"market_feed/pkg/db"
)

// Module выбирает источник списка инструментов и держит фид в соответствии с ним.
// Должен идти после feed.Module: первый Sync подписывает уже запущенный фид.
func Module() fx.Option {
	return fx.Module("watchlist",
		fx.Provide(
			NewSource,
			func(cfg *config.Config, src service.Source, f *feed.Feed, log *zap.Logger) *service.Syncer {
				refresh := cfg.Watchlist.Refresh
				if cfg.Watchlist.Source != config.WatchlistPostgres {
					refresh = 0 // статический список не меняется
				}
				return service.NewSyncer(src, f, refresh, log)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, s *service.Syncer) {
			lc.Append(fx.Hook{
				OnStart: s.Start,
				OnStop: func(ctx context.Context) error {
					s.Stop()
					return nil
				},
			})
		}),
	)
}

// NewSource: Static из конфига или таблица в Postgres.
func NewSource(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (service.Source, error) {
	if cfg.Watchlist.Source != config.WatchlistPostgres {
		return service.Static(cfg.Feed.Instruments), nil
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{DSN: cfg.Watchlist.DSN})
	if err != nil {
		return nil, errors.Wrap(err, "watchlist postgres")
	}
	tx := db.NewPgTxManager(pool)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			tx.Close()
			return nil
		},
	})

	src := service.NewPostgres(tx)
	if err := src.Migrate(ctx, cfg.Feed.Instruments); err != nil {
		tx.Close()
		return nil, err
	}
	log.Info("watchlist source: postgres", zap.Duration("refresh", cfg.Watchlist.Refresh))
	return src, nil
}
