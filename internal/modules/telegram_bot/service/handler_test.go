package service

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"market_feed/internal/models"
	feed "market_feed/internal/modules/feed/service"
)

type fakeBot struct {
	mu      sync.Mutex
	sent    []tgbot.MessageConfig
	updates chan tgbot.Update
	once    sync.Once
}

func newFakeBot() *fakeBot { return &fakeBot{updates: make(chan tgbot.Update, 8)} }

func (b *fakeBot) Send(c tgbot.Chattable) (tgbot.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, c.(tgbot.MessageConfig))
	return tgbot.Message{MessageID: len(b.sent)}, nil
}

func (b *fakeBot) GetUpdatesChan(tgbot.UpdateConfig) tgbot.UpdatesChannel { return b.updates }

func (b *fakeBot) StopReceivingUpdates() { b.once.Do(func() { close(b.updates) }) }

func (b *fakeBot) last() tgbot.MessageConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sent[len(b.sent)-1]
}

func (b *fakeBot) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

type stubReader struct {
	feed.Reader
}

func (stubReader) IsLive() bool { return true }

func (stubReader) Connections() []models.ConnectionState {
	return []models.ConnectionState{
		{Stream: "ticker", Status: models.Connected},
		{Stream: "depth", Status: models.Disconnected, RetryCount: 3},
	}
}

func (stubReader) Instruments() []string { return []string{"BTCUSDT"} }

func (stubReader) BookStatus(sym string) models.BookStatus {
	if sym == "BTCUSDT" {
		return models.BookLive
	}
	return models.BookSyncing
}

func (stubReader) GetTicker(sym string) (models.TickerSnapshot, bool) {
	if sym != "BTCUSDT" {
		return models.TickerSnapshot{}, false
	}
	return models.TickerSnapshot{Instrument: sym, LastPrice: 64000.5, PriceChangePercent: -1.234}, true
}

func (stubReader) GetOrderBook(sym string, depth int) (models.Ladder, bool) {
	if sym != "BTCUSDT" {
		return models.Ladder{}, false
	}
	l := models.Ladder{
		Instrument: sym,
		Bids:       []models.Level{{Price: 100, Quantity: 1}, {Price: 99, Quantity: 2}},
		Asks:       []models.Level{{Price: 101, Quantity: 1}, {Price: 102, Quantity: 3}},
		BidTotal:   3, AskTotal: 4, LastUpdateID: 102,
	}
	return l.Top(depth), true
}

func (stubReader) GetTrades(sym string) ([]models.TradePrint, bool) {
	return []models.TradePrint{{Instrument: sym, Price: 100.5, Quantity: 0.1, TakerSide: models.SideSell}}, sym == "BTCUSDT"
}

func (stubReader) GetCandles(sym, iv string) ([]models.Candle, bool) {
	if iv != "1m" {
		return nil, false
	}
	return []models.Candle{{Instrument: sym, Interval: iv, Close: 5, IsClosed: false}}, true
}

func command(chatID int64, text string) tgbot.Update {
	n := len(text)
	for i, r := range text {
		if r == ' ' {
			n = i
			break
		}
	}
	return tgbot.Update{Message: &tgbot.Message{
		Chat:     &tgbot.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbot.MessageEntity{{Type: "bot_command", Offset: 0, Length: n}},
	}}
}

func TestCommands(t *testing.T) {
	bot := newFakeBot()
	tg := newTelegram(bot, 0, stubReader{}, zap.NewNop())
	ctx := context.Background()

	cases := []struct {
		text string
		want []string
	}{
		{"/price btc-usdt", []string{"*BTCUSDT*", "`64000.5`", "`-1.23%`"}},
		{"/price ETHUSDT", []string{"Нет тикера по ETHUSDT"}},
		{"/price", []string{"/price BTCUSDT"}},
		{"/book BTCUSDT 1", []string{"#102", "101", "100", "Σ bid `1` / ask `1`"}},
		{"/book ETHUSDT", []string{"ещё не готов (syncing)"}},
		{"/trades BTCUSDT", []string{"🔴 `100.5` × `0.1`"}},
		{"/trades DOGEUSDT", []string{"DOGEUSDT не отслеживается"}},
		{"/candles BTCUSDT", []string{"BTCUSDT 1m", "C `5` ⏳"}},
		{"/candles BTCUSDT 4h", []string{"Нет свечей BTCUSDT 4h"}},
		{"/status", []string{"вкл", "🟢 `ticker` connected", "🔴 `depth` disconnected (попыток: 3)"}},
		{"/instruments", []string{"`BTCUSDT` стакан: live"}},
		{"/unknown BTCUSDT", []string{"Неизвестная команда"}},
	}
	for _, tc := range cases {
		tg.handleUpdate(ctx, command(42, tc.text))
		got := bot.last()
		assert.Equal(t, int64(42), got.ChatID, tc.text)
		assert.Equal(t, tgbot.ModeMarkdown, got.ParseMode, tc.text)
		for _, w := range tc.want {
			assert.Contains(t, got.Text, w, tc.text)
		}
	}
}

func TestStartShowsKeyboard(t *testing.T) {
	bot := newFakeBot()
	tg := newTelegram(bot, 0, stubReader{}, zap.NewNop())

	tg.handleUpdate(context.Background(), command(1, "/start"))
	got := bot.last()
	assert.Contains(t, got.Text, "/book")
	kb, ok := got.ReplyMarkup.(tgbot.ReplyKeyboardMarkup)
	require.True(t, ok)
	assert.Equal(t, btnStatus, kb.Keyboard[0][0].Text)

	tg.handleUpdate(context.Background(), tgbot.Update{Message: &tgbot.Message{Chat: &tgbot.Chat{ID: 1}, Text: btnStatus}})
	assert.Contains(t, bot.last().Text, "Фид")

	n := bot.count()
	tg.handleUpdate(context.Background(), tgbot.Update{Message: &tgbot.Message{Chat: &tgbot.Chat{ID: 1}, Text: "hello"}})
	assert.Equal(t, n, bot.count(), "plain text is ignored")
}

func TestForeignChatIgnored(t *testing.T) {
	bot := newFakeBot()
	tg := newTelegram(bot, 7, stubReader{}, zap.NewNop())

	tg.handleUpdate(context.Background(), command(8, "/status"))
	assert.Equal(t, 0, bot.count())
	tg.handleUpdate(context.Background(), command(7, "/status"))
	assert.Equal(t, 1, bot.count())
}

func TestStartStop(t *testing.T) {
	bot := newFakeBot()
	tg := newTelegram(bot, 0, stubReader{}, zap.NewNop())

	tg.Start(context.Background())
	bot.updates <- command(1, "/help")
	require.Eventually(t, func() bool { return bot.count() == 1 }, time.Second, time.Millisecond)
	tg.Stop()
}
