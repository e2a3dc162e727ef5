package notifier

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"market_feed/internal/modules/config"
	"market_feed/internal/notify"
)

// Module отдаёт notify.Notifier: лог плюс Telegram/Discord, если они настроены.
func Module() fx.Option {
	return fx.Module("notifier",
		fx.Provide(
			func(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) notify.Notifier {
				q, closeChannels := notify.New(notify.Options{
					TelegramToken:  cfg.Notify.TelegramToken,
					TelegramChatID: cfg.Notify.TelegramChatID,
					DiscordWebhook: cfg.Notify.DiscordWebhook,
				}, log)

				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						q.Start()
						return nil
					},
					OnStop: func(ctx context.Context) error {
						q.Stop()
						closeChannels(ctx)
						return nil
					},
				})
				return q
			},
		),
	)
}
