package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"market_feed/internal/models"
	feed "market_feed/internal/modules/feed/service"
)

// Handlers: HTTP-витрина над feed.Reader и реестром подписок.
type Handlers struct {
	reader   feed.Reader
	registry *feed.Registry
	state    *State
	log      *zap.Logger

	// base отменяется при остановке сервера и закрывает открытые websocket-потоки
	base    context.Context
	cancel  context.CancelFunc
	streams sync.WaitGroup
}

func NewHandlers(reader feed.Reader, registry *feed.Registry, state *State, log *zap.Logger) *Handlers {
	base, cancel := context.WithCancel(context.Background())
	return &Handlers{
		reader:   reader,
		registry: registry,
		state:    state,
		log:      log.Named("api"),
		base:     base,
		cancel:   cancel,
	}
}

// NewApp собирает fiber-приложение: JSON через sonic, ошибки в виде {"error": "..."}.
func NewApp(h *Handlers) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "market_feed",
		DisableStartupMessage: true,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		ErrorHandler:          errorHandler,
	})
	app.Use(Tracing(), AccessLog(h.log))
	h.Register(app)
	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (h *Handlers) Register(app *fiber.App) {
	app.Get("/livez", h.livez)
	app.Get("/readyz", h.readyz)
	app.Get("/healthz", h.healthz)

	v1 := app.Group("/api/v1")
	v1.Get("/instruments", h.instruments)
	v1.Get("/ticker/:symbol", h.ticker)
	v1.Get("/orderbook/:symbol", h.orderBook)
	v1.Get("/depth/:symbol", h.depth)
	v1.Get("/trades/:symbol", h.trades)
	v1.Get("/candles/:symbol/:interval", h.candles)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(h.stream))
}

// Close обрывает websocket-потоки и ждёт их завершения.
func (h *Handlers) Close() {
	h.cancel()
	h.streams.Wait()
}

func (h *Handlers) livez(c *fiber.Ctx) error {
	return c.SendString("ok")
}

func (h *Handlers) readyz(c *fiber.Ctx) error {
	if !h.state.Ready() {
		return fiber.NewError(fiber.StatusServiceUnavailable, "not ready")
	}
	return c.SendString("ready")
}

func (h *Handlers) healthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"ready":       h.state.Ready(),
		"uptimeSec":   int64(h.state.Uptime().Seconds()),
		"instruments": h.reader.Instruments(),
		"connections": h.reader.Connections(),
		"subscribers": h.registry.Subscribers(),
	})
}

type instrumentInfo struct {
	Symbol     string            `json:"symbol"`
	BookStatus models.BookStatus `json:"bookStatus"`
	HasTicker  bool              `json:"hasTicker"`
}

func (h *Handlers) instruments(c *fiber.Ctx) error {
	syms := h.reader.Instruments()
	out := make([]instrumentInfo, 0, len(syms))
	for _, sym := range syms {
		_, ok := h.reader.GetTicker(sym)
		out = append(out, instrumentInfo{Symbol: sym, BookStatus: h.reader.BookStatus(sym), HasTicker: ok})
	}
	return c.JSON(out)
}

func symbol(c *fiber.Ctx) string {
	return models.NormSymbol(c.Params("symbol"))
}

func notFound(what, sym string) error {
	return fiber.NewError(fiber.StatusNotFound, "no "+what+" for "+sym)
}

func (h *Handlers) ticker(c *fiber.Ctx) error {
	sym := symbol(c)
	t, ok := h.reader.GetTicker(sym)
	if !ok {
		return notFound("ticker", sym)
	}
	return c.JSON(t)
}

func (h *Handlers) orderBook(c *fiber.Ctx) error {
	sym := symbol(c)
	depth := c.QueryInt("depth", 0)
	if depth < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "depth must be >= 0")
	}
	l, ok := h.reader.GetOrderBook(sym, depth)
	if !ok {
		return notFound("order book", sym)
	}
	return c.JSON(l)
}

func (h *Handlers) depth(c *fiber.Ctx) error {
	sym := symbol(c)
	d, ok := h.reader.GetDepth(sym)
	if !ok {
		return notFound("depth", sym)
	}
	return c.JSON(d)
}

func (h *Handlers) trades(c *fiber.Ctx) error {
	sym := symbol(c)
	tr, ok := h.reader.GetTrades(sym)
	if !ok {
		return notFound("trades", sym)
	}
	return c.JSON(tr)
}

func (h *Handlers) candles(c *fiber.Ctx) error {
	sym := symbol(c)
	iv := c.Params("interval")
	cs, ok := h.reader.GetCandles(sym, iv)
	if !ok {
		return notFound("candles "+iv, sym)
	}
	return c.JSON(cs)
}

func splitSymbols(raw string) []string {
	if raw == "" {
		return nil
	}
	return models.NormSymbols(strings.Split(raw, ","))
}
