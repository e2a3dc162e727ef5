package service

import (
	"context"
	"strings"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"market_feed/internal/models"
)

const (
	btnStatus      = "📊 Статус"
	btnInstruments = "📋 Инструменты"
)

func (t *Telegram) handleUpdate(_ context.Context, update tgbot.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	if t.chatID != 0 && chatID != t.chatID {
		return
	}

	if msg.IsCommand() && msg.Command() == "start" {
		if err := t.sendStart(chatID); err != nil {
			t.log.Warn("send failed", zap.Int64("chat_id", chatID), zap.Error(err))
		}
		return
	}

	var text string
	if msg.IsCommand() {
		text = t.handleCommand(msg.Command(), strings.Fields(msg.CommandArguments()))
	} else {
		switch strings.TrimSpace(msg.Text) {
		case btnStatus:
			text = formatStatus(t.reader.IsLive(), t.reader.Connections())
		case btnInstruments:
			text = formatInstruments(t.reader)
		default:
			return
		}
	}

	if err := t.Send(chatID, text); err != nil {
		t.log.Warn("send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (t *Telegram) handleCommand(cmd string, args []string) string {
	switch cmd {
	case "help":
		return helpText
	case "status":
		return formatStatus(t.reader.IsLive(), t.reader.Connections())
	case "instruments":
		return formatInstruments(t.reader)
	}

	if len(args) == 0 {
		return "Укажи инструмент, например `/" + cmd + " BTCUSDT`"
	}
	sym := models.NormSymbol(args[0])

	switch cmd {
	case "price":
		tk, ok := t.reader.GetTicker(sym)
		if !ok {
			return "Нет тикера по " + sym
		}
		return formatTicker(tk)

	case "book":
		depth := 5
		if len(args) > 1 {
			if n := mustInt(args[1]); n > 0 {
				depth = n
			}
		}
		l, ok := t.reader.GetOrderBook(sym, depth)
		if !ok {
			return "Стакан " + sym + " ещё не готов (" + t.reader.BookStatus(sym).String() + ")"
		}
		return formatBook(l)

	case "trades":
		tr, ok := t.reader.GetTrades(sym)
		if !ok {
			return sym + " не отслеживается"
		}
		return formatTrades(sym, tr, 10)

	case "candles":
		iv := "1m"
		if len(args) > 1 {
			iv = args[1]
		}
		cs, ok := t.reader.GetCandles(sym, iv)
		if !ok {
			return "Нет свечей " + sym + " " + iv
		}
		return formatCandles(sym, iv, cs, 5)
	}
	return "Неизвестная команда, см. /help"
}

func (t *Telegram) sendStart(chatID int64) error {
	kb := tgbot.NewReplyKeyboard(
		tgbot.NewKeyboardButtonRow(
			tgbot.NewKeyboardButton(btnStatus),
			tgbot.NewKeyboardButton(btnInstruments),
		),
	)
	msg := tgbot.NewMessage(chatID, helpText)
	msg.ParseMode = tgbot.ModeMarkdown
	msg.ReplyMarkup = kb
	_, err := t.bot.Send(msg)
	return err
}

const helpText = "Привет! Я показываю рынок Binance.\n\n" +
	"/status - соединения\n" +
	"/instruments - что отслеживается\n" +
	"/price `SYM` - тикер\n" +
	"/book `SYM [N]` - стакан\n" +
	"/trades `SYM` - последние сделки\n" +
	"/candles `SYM [1m]` - свечи"
