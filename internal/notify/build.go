package notify

import (
	"context"

	"go.uber.org/zap"
)

type Options struct {
	TelegramToken  string
	TelegramChatID int64
	DiscordWebhook string
	QueueSize      int
}

// New собирает Log плюс настроенные внешние каналы за неблокирующей очередью.
// Недоступный канал не мешает старту: остаётся лог.
func New(opts Options, log *zap.Logger) (*Queue, func(ctx context.Context)) {
	channels := Multi{NewLog(log)}
	closers := []func(ctx context.Context){}

	if opts.TelegramToken != "" && opts.TelegramChatID != 0 {
		tg, err := NewTelegram(opts.TelegramToken, opts.TelegramChatID)
		if err != nil {
			log.Warn("telegram notifications disabled", zap.Error(err))
		} else {
			channels = append(channels, tg)
		}
	}
	if opts.DiscordWebhook != "" {
		d, err := NewDiscord(opts.DiscordWebhook)
		if err != nil {
			log.Warn("discord notifications disabled", zap.Error(err))
		} else {
			channels = append(channels, d)
			closers = append(closers, d.Close)
		}
	}

	q := NewQueue(channels, opts.QueueSize, log)
	return q, func(ctx context.Context) {
		for _, c := range closers {
			c(ctx)
		}
	}
}
