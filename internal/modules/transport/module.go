package transport

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"market_feed/internal/modules/config"
	"market_feed/internal/modules/transport/service"
)

// Module отдаёт Opener для websocket-потоков биржи.
func Module() fx.Option {
	return fx.Module("transport",
		fx.Provide(
			func(cfg *config.Config, log *zap.Logger) service.Opener {
				return service.NewDialer(service.Config{
					BaseURL:      cfg.Exchange.WSURL,
					PingInterval: cfg.Feed.PingInterval,
					ReadTimeout:  cfg.Feed.ReadTimeout,
				}, log)
			},
		),
	)
}
