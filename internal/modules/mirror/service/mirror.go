package service

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"market_feed/internal/models"
	feed "market_feed/internal/modules/feed/service"
)

// Store: подмножество redis.Cmdable, которым пользуется зеркало.
type Store interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

func TickerKey(sym string) string { return "ticker:" + sym }

func ChannelKey(sym string) string { return "market:" + sym }

// Mirror читает уведомления реестра и отражает их в Redis:
// последний тикер с TTL и событие изменения в канал market:<SYM>.
type Mirror struct {
	store    Store
	reader   feed.Reader
	registry *feed.Registry
	ttl      time.Duration
	log      *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func New(store Store, reader feed.Reader, registry *feed.Registry, ttl time.Duration, log *zap.Logger) *Mirror {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Mirror{store: store, reader: reader, registry: registry, ttl: ttl, log: log.Named("mirror")}
}

func (m *Mirror) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	sub := m.registry.Subscribe()
	go func() {
		defer close(m.done)
		defer sub.Close()
		m.run(ctx, sub)
	}()
}

func (m *Mirror) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

func (m *Mirror) run(ctx context.Context, sub *feed.Subscription) {
	for {
		batch, err := sub.Next(ctx)
		if err != nil {
			return
		}
		for _, c := range batch {
			if err := m.Apply(ctx, c); err != nil && ctx.Err() == nil {
				m.log.Warn("mirror write failed",
					zap.String("instrument", c.Instrument),
					zap.String("kind", string(c.Kind)),
					zap.Error(err))
			}
		}
	}
}

// Apply отражает одно изменение.
func (m *Mirror) Apply(ctx context.Context, c models.Change) error {
	if c.Kind == models.ChangeTicker {
		if t, ok := m.reader.GetTicker(c.Instrument); ok {
			data, err := sonic.Marshal(t)
			if err != nil {
				return errors.Wrap(err, "encode ticker")
			}
			if err := m.store.Set(ctx, TickerKey(c.Instrument), data, m.ttl).Err(); err != nil {
				return errors.Wrap(err, "redis set")
			}
		}
	}

	event, err := sonic.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encode change")
	}
	return errors.Wrap(m.store.Publish(ctx, ChannelKey(c.Instrument), event).Err(), "redis publish")
}
