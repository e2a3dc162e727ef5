package telegram

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"market_feed/internal/modules/config"
	feed "market_feed/internal/modules/feed/service"
	"market_feed/internal/modules/telegram_bot/service"
)

// Module: команды о рынке в Telegram. Без TELEGRAM_TOKEN ничего не делает.
func Module() fx.Option {
	return fx.Module("telegram",
		fx.Invoke(
			func(lc fx.Lifecycle, cfg *config.Config, reader feed.Reader, log *zap.Logger) error {
				if cfg.Notify.TelegramToken == "" {
					return nil
				}
				t, err := service.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, reader, log)
				if err != nil {
					return err
				}
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						t.Start(context.Background())
						return nil
					},
					OnStop: func(ctx context.Context) error {
						t.Stop()
						return nil
					},
				})
				return nil
			},
		),
	)
}
