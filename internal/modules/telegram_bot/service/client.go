package service

import (
	"context"
	"sync"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	feed "market_feed/internal/modules/feed/service"
)

// botAPI: то, что нужно от *tgbot.BotAPI.
type botAPI interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
	GetUpdatesChan(config tgbot.UpdateConfig) tgbot.UpdatesChannel
	StopReceivingUpdates()
}

// Telegram отвечает на команды о состоянии рынка.
type Telegram struct {
	bot    botAPI
	reader feed.Reader
	chatID int64 // 0: отвечаем всем
	log    *zap.Logger

	wg sync.WaitGroup
}

func NewTelegram(token string, chatID int64, reader feed.Reader, log *zap.Logger) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "telegram bot")
	}
	return newTelegram(b, chatID, reader, log), nil
}

func newTelegram(bot botAPI, chatID int64, reader feed.Reader, log *zap.Logger) *Telegram {
	return &Telegram{bot: bot, reader: reader, chatID: chatID, log: log.Named("telegram")}
}

func (t *Telegram) Send(chatID int64, text string) error {
	msg := tgbot.NewMessage(chatID, text)
	msg.ParseMode = tgbot.ModeMarkdown
	_, err := t.bot.Send(msg)
	return err
}

// Start читает апдейты в фоне до Stop.
func (t *Telegram) Start(ctx context.Context) {
	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for update := range updates {
			t.handleUpdate(ctx, update)
		}
	}()
}

func (t *Telegram) Stop() {
	t.bot.StopReceivingUpdates()
	t.wg.Wait()
}
