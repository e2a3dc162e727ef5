package series

import (
	"sort"
	"sync"

	"market_feed/internal/models"
)

type MergeResult int

const (
	Appended MergeResult = iota
	Updated
	Stale
)

func (r MergeResult) String() string {
	switch r {
	case Appended:
		return "appended"
	case Updated:
		return "updated"
	default:
		return "stale"
	}
}

// Candles: ограниченная серия свечей одного инструмента и интервала.
type Candles struct {
	mu       sync.RWMutex
	capacity int
	items    []models.Candle
}

func NewCandles(capacity int) *Candles {
	if capacity <= 0 {
		capacity = 500
	}
	return &Candles{capacity: capacity}
}

// Merge применяет тик свечи: новая openTime открывает свечу, та же обновляет последнюю,
// более старая отбрасывается.
func (c *Candles) Merge(k models.Candle) MergeResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.items)
	if n > 0 {
		last := &c.items[n-1]
		switch {
		case k.OpenTime.Equal(last.OpenTime):
			*last = k
			return Updated
		case k.OpenTime.Before(last.OpenTime):
			return Stale
		}
		last.IsClosed = true
	}
	c.items = append(c.items, k)
	c.evict()
	return Appended
}

// Seed подкладывает историю из REST перед живыми свечами. Свечи, которые
// уже пришли из потока, имеют приоритет.
func (c *Candles) Seed(history []models.Candle) int {
	if len(history) == 0 {
		return 0
	}
	hist := append([]models.Candle(nil), history...)
	sort.Slice(hist, func(i, j int) bool { return hist[i].OpenTime.Before(hist[j].OpenTime) })

	c.mu.Lock()
	defer c.mu.Unlock()

	merged := make([]models.Candle, 0, len(hist)+len(c.items))
	for _, h := range hist {
		if len(c.items) > 0 && !h.OpenTime.Before(c.items[0].OpenTime) {
			break
		}
		if n := len(merged); n > 0 && merged[n-1].OpenTime.Equal(h.OpenTime) {
			merged[n-1] = h
			continue
		}
		merged = append(merged, h)
	}
	added := len(merged)
	if len(c.items) > 0 && added > 0 {
		merged[added-1].IsClosed = true
	}
	c.items = append(merged, c.items...)
	c.evict()
	return added
}

// evict удаляет самые старые свечи сверх ёмкости, но только закрытые.
func (c *Candles) evict() {
	drop := 0
	for len(c.items)-drop > c.capacity && c.items[drop].IsClosed {
		drop++
	}
	if drop > 0 {
		c.items = append(c.items[:0], c.items[drop:]...)
	}
}

func (c *Candles) Snapshot() []models.Candle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Candle(nil), c.items...)
}

func (c *Candles) Last() (models.Candle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.items) == 0 {
		return models.Candle{}, false
	}
	return c.items[len(c.items)-1], true
}

func (c *Candles) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
