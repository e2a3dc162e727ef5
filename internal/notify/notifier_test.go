package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recorder struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (r *recorder) SendService(_ context.Context, format string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, fmt.Sprintf(format, args...))
	return r.err
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

type fakeBot struct{ sent []tgbot.Chattable }

func (b *fakeBot) Send(c tgbot.Chattable) (tgbot.Message, error) {
	b.sent = append(b.sent, c)
	return tgbot.Message{}, nil
}

type fakeWebhook struct{ embeds []discord.Embed }

func (w *fakeWebhook) CreateEmbeds(embeds []discord.Embed, _ ...rest.RequestOpt) (*discord.Message, error) {
	w.embeds = append(w.embeds, embeds...)
	return &discord.Message{}, nil
}

func TestTelegramSendsToChat(t *testing.T) {
	bot := &fakeBot{}
	tg := &Telegram{bot: bot, chatID: 42}
	require.NoError(t, tg.SendService(context.Background(), "stream %s lost", "depth"))

	require.Len(t, bot.sent, 1)
	msg, ok := bot.sent[0].(tgbot.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "stream depth lost", msg.Text)

	var nilTG *Telegram
	assert.NoError(t, nilTG.SendService(context.Background(), "ignored"))
}

func TestDiscordBuildsEmbed(t *testing.T) {
	wh := &fakeWebhook{}
	d := &Discord{client: wh}
	require.NoError(t, d.SendService(context.Background(), "restored %d", 3))
	require.Len(t, wh.embeds, 1)
	assert.Equal(t, "restored 3", wh.embeds[0].Description)
}

func TestMultiCollectsErrors(t *testing.T) {
	ok := &recorder{}
	bad := &recorder{err: errors.New("boom")}
	err := Multi{ok, bad, ok}.SendService(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, []string{"hello", "hello"}, ok.all())
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	require.NoError(t, NewLog(zap.New(core)).SendService(context.Background(), "x=%d", 1))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "x=1", logs.All()[0].Message)
}

func TestQueueDeliversInOrderAndDrainsOnStop(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(rec, 10, zap.NewNop())
	q.Start()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.SendService(context.Background(), "msg %d", i))
	}
	q.Stop()

	assert.Equal(t, []string{"msg 0", "msg 1", "msg 2", "msg 3", "msg 4"}, rec.all())
}

type blocking struct{ release chan struct{} }

func (b *blocking) SendService(ctx context.Context, _ string, _ ...any) error {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

func TestQueueNeverBlocksSender(t *testing.T) {
	b := &blocking{release: make(chan struct{})}
	q := NewQueue(b, 1, zap.NewNop())
	q.Start()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			_ = q.SendService(context.Background(), "spam")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sender blocked")
	}
	close(b.release)
	q.Stop()
}
