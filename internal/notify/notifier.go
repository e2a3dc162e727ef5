package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/disgo/webhook"
	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Notifier: служебные уведомления оператору (потеря и восстановление соединения и т.п.).
type Notifier interface {
	SendService(ctx context.Context, format string, args ...any) error
}

// Log пишет уведомления в лог. Используется всегда, даже без внешних каналов.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	return &Log{log: log.Named("notify")}
}

func (l *Log) SendService(_ context.Context, format string, args ...any) error {
	l.log.Info(fmt.Sprintf(format, args...))
	return nil
}

type telegramSender interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
}

// Telegram шлёт уведомления в один чат.
type Telegram struct {
	bot    telegramSender
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "telegram bot")
	}
	return &Telegram{bot: b, chatID: chatID}, nil
}

func (t *Telegram) SendService(_ context.Context, format string, args ...any) error {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return nil
	}
	msg := tgbot.NewMessage(t.chatID, fmt.Sprintf(format, args...))
	_, err := t.bot.Send(msg)
	return errors.Wrap(err, "telegram send")
}

type embedSender interface {
	CreateEmbeds(embeds []discord.Embed, opts ...rest.RequestOpt) (*discord.Message, error)
}

// Discord шлёт уведомления через webhook.
type Discord struct {
	client embedSender
	closer func(ctx context.Context)
}

func NewDiscord(webhookURL string) (*Discord, error) {
	client, err := webhook.NewWithURL(webhookURL)
	if err != nil {
		return nil, errors.Wrap(err, "discord webhook")
	}
	return &Discord{client: client, closer: client.Close}, nil
}

func (d *Discord) SendService(ctx context.Context, format string, args ...any) error {
	embed := discord.NewEmbedBuilder().
		SetTitle("market feed").
		SetDescription(fmt.Sprintf(format, args...)).
		SetColor(0xf0a030).
		SetTimestamp(time.Now()).
		Build()
	_, err := d.client.CreateEmbeds([]discord.Embed{embed}, rest.WithCtx(ctx))
	return errors.Wrap(err, "discord send")
}

func (d *Discord) Close(ctx context.Context) {
	if d.closer != nil {
		d.closer(ctx)
	}
}

// Multi рассылает во все каналы и собирает ошибки.
type Multi []Notifier

func (m Multi) SendService(ctx context.Context, format string, args ...any) error {
	var err error
	for _, n := range m {
		err = multierr.Append(err, n.SendService(ctx, format, args...))
	}
	return err
}
