package service

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"

	"market_feed/internal/models"
)

const (
	streamBookDepth = 20
	writeTimeout    = 10 * time.Second
)

// Event: элемент пачки в /ws: изменение и актуальные данные по нему.
type Event struct {
	models.Change
	Data any `json:"data,omitempty"`
}

// stream держит /ws?symbols=A,B: пачки изменений из реестра, склеенные для медленного клиента.
func (h *Handlers) stream(c *websocket.Conn) {
	h.streams.Add(1)
	defer h.streams.Done()

	syms := splitSymbols(c.Query("symbols"))
	sub := h.registry.Subscribe(syms...)
	defer sub.Close()

	ctx, cancel := context.WithCancel(h.base)
	defer cancel()

	log := h.log.With(zap.String("subscription", sub.ID), zap.Strings("symbols", syms))
	log.Debug("stream opened")

	// читаем только чтобы заметить закрытие со стороны клиента
	go func() {
		defer cancel()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		batch, err := sub.Next(ctx)
		if err != nil {
			break
		}
		data, err := sonic.Marshal(h.events(batch))
		if err != nil {
			log.Warn("stream encode failed", zap.Error(err))
			continue
		}
		_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debug("stream write failed", zap.Error(err))
			break
		}
	}
	_ = c.Close()
	log.Debug("stream closed", zap.Uint64("coalesced", sub.Coalesced()))
}

func (h *Handlers) events(batch []models.Change) []Event {
	out := make([]Event, 0, len(batch))
	for _, ch := range batch {
		ev := Event{Change: ch}
		switch ch.Kind {
		case models.ChangeTicker:
			if t, ok := h.reader.GetTicker(ch.Instrument); ok {
				ev.Data = t
			}
		case models.ChangeBook:
			if l, ok := h.reader.GetOrderBook(ch.Instrument, streamBookDepth); ok {
				ev.Data = l
			}
		case models.ChangeTrades:
			if tr, ok := h.reader.GetTrades(ch.Instrument); ok {
				ev.Data = tr
			}
		case models.ChangeCandles:
			if cs, ok := h.reader.GetCandles(ch.Instrument, ch.Interval); ok && len(cs) > 0 {
				ev.Data = cs[len(cs)-1]
			}
		case models.ChangeStatus:
			ev.Data = h.reader.BookStatus(ch.Instrument)
		}
		out = append(out, ev)
	}
	return out
}
