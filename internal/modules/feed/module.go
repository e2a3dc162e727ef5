package feed

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"market_feed/internal/exchange/binance"
	"market_feed/internal/modules/config"
	"market_feed/internal/modules/feed/service"
	transport "market_feed/internal/modules/transport/service"
	"market_feed/internal/notify"
)

// Module поднимает ингест рынка. Инструменты подписывает watchlist.
func Module() fx.Option {
	return fx.Module("feed",
		fx.Provide(
			service.NewRegistry,
			func(cfg *config.Config) service.MarketData {
				return binance.NewClient(binance.RESTConfig{
					BaseURL: cfg.Exchange.RESTURL,
					Timeout: cfg.Exchange.RESTTimeout,
					RPS:     cfg.Exchange.RESTRPS,
				})
			},
			func(
				cfg *config.Config,
				opener transport.Opener,
				market service.MarketData,
				registry *service.Registry,
				notifier notify.Notifier,
				log *zap.Logger,
			) *service.Feed {
				return service.New(cfg.Feed, opener, market, registry, notifier, log)
			},
			func(f *service.Feed) service.Reader { return f },
		),
		fx.Invoke(func(lc fx.Lifecycle, f *service.Feed) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return f.Start()
				},
				OnStop: f.Stop,
			})
		}),
	)
}
