package service

import (
	"sync"
	"sync/atomic"

	"market_feed/internal/models"
)

// Tickers: последние 24h-тикеры по инструментам. Запись из одного потока,
// чтение без блокировок через атомарную подмену указателя.
type Tickers struct {
	mu    sync.RWMutex
	slots map[string]*atomic.Pointer[models.TickerSnapshot]
}

func NewTickers() *Tickers {
	return &Tickers{slots: make(map[string]*atomic.Pointer[models.TickerSnapshot])}
}

func (t *Tickers) Track(instrument string) {
	t.mu.Lock()
	if _, ok := t.slots[instrument]; !ok {
		t.slots[instrument] = &atomic.Pointer[models.TickerSnapshot]{}
	}
	t.mu.Unlock()
}

func (t *Tickers) Untrack(instrument string) {
	t.mu.Lock()
	delete(t.slots, instrument)
	t.mu.Unlock()
}

// Set заменяет тикер целиком. Тикеры неотслеживаемых инструментов игнорируются.
func (t *Tickers) Set(ts models.TickerSnapshot) bool {
	t.mu.RLock()
	slot, ok := t.slots[ts.Instrument]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	slot.Store(&ts)
	return true
}

func (t *Tickers) Get(instrument string) (models.TickerSnapshot, bool) {
	t.mu.RLock()
	slot, ok := t.slots[instrument]
	t.mu.RUnlock()
	if !ok {
		return models.TickerSnapshot{}, false
	}
	p := slot.Load()
	if p == nil {
		return models.TickerSnapshot{}, false
	}
	return *p, true
}
