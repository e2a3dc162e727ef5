package series

import (
	"sync"

	"market_feed/internal/models"
)

// Tape: лента последних сделок фиксированной ёмкости, новые первыми.
// Дубликаты по tradeId не отсекаются.
type Tape struct {
	mu    sync.RWMutex
	buf   []models.TradePrint
	next  int
	count int
}

func NewTape(capacity int) *Tape {
	if capacity <= 0 {
		capacity = 50
	}
	return &Tape{buf: make([]models.TradePrint, capacity)}
}

func (t *Tape) Add(tr models.TradePrint) {
	t.mu.Lock()
	t.buf[t.next] = tr
	t.next = (t.next + 1) % len(t.buf)
	if t.count < len(t.buf) {
		t.count++
	}
	t.mu.Unlock()
}

// Snapshot возвращает копию ленты, самая свежая сделка первой.
func (t *Tape) Snapshot() []models.TradePrint {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]models.TradePrint, t.count)
	idx := t.next
	for i := 0; i < t.count; i++ {
		idx--
		if idx < 0 {
			idx = len(t.buf) - 1
		}
		out[i] = t.buf[idx]
	}
	return out
}

func (t *Tape) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

func (t *Tape) Cap() int { return len(t.buf) }
