package models

import "time"

type Level struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// Ladder: неизменяемая копия стакана для читателей.
// Bids по убыванию цены, Asks по возрастанию, уровней с нулевым объёмом нет.
type Ladder struct {
	Instrument   string    `json:"instrument"`
	Bids         []Level   `json:"bids"`
	Asks         []Level   `json:"asks"`
	BidTotal     float64   `json:"cumulativeBidTotal"`
	AskTotal     float64   `json:"cumulativeAskTotal"`
	LastUpdateID int64     `json:"lastUpdateId"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Top возвращает копию с не более чем n уровнями на сторону; n <= 0 означает все уровни.
// Срезы копируются, итоги пересчитываются при обрезке.
func (l Ladder) Top(n int) Ladder {
	out := l
	out.Bids = copyLevels(l.Bids, n)
	out.Asks = copyLevels(l.Asks, n)
	if len(out.Bids) < len(l.Bids) || len(out.Asks) < len(l.Asks) {
		out.BidTotal = SumQuantity(out.Bids)
		out.AskTotal = SumQuantity(out.Asks)
	}
	return out
}

func copyLevels(levels []Level, n int) []Level {
	if levels == nil {
		return nil
	}
	if n > 0 && len(levels) > n {
		levels = levels[:n]
	}
	out := make([]Level, len(levels))
	copy(out, levels)
	return out
}

func SumQuantity(levels []Level) float64 {
	var sum float64
	for _, lv := range levels {
		sum += lv.Quantity
	}
	return sum
}

type BookStatus int

const (
	BookUninitialized BookStatus = iota
	BookSyncing
	BookLive
)

func (s BookStatus) String() string {
	switch s {
	case BookSyncing:
		return "syncing"
	case BookLive:
		return "live"
	default:
		return "uninitialized"
	}
}

func (s BookStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// DepthDiff: инкрементальное обновление стакана.
// FirstUpdateID == 0 означает, что биржа не присылает начало диапазона.
type DepthDiff struct {
	Instrument    string
	FirstUpdateID int64
	FinalUpdateID int64
	EventTime     time.Time
	Bids          []Level
	Asks          []Level
}

// DepthSnapshot: ответ REST /depth.
type DepthSnapshot struct {
	Instrument   string
	LastUpdateID int64
	Bids         []Level
	Asks         []Level
}

type DepthPoint struct {
	Price      float64 `json:"price"`
	Quantity   float64 `json:"quantity"`
	Cumulative float64 `json:"cumulative"`
}

// DepthCurve: кумулятивная глубина для графика.
type DepthCurve struct {
	Instrument string       `json:"instrument"`
	Bids       []DepthPoint `json:"bids"`
	Asks       []DepthPoint `json:"asks"`
}

func (c DepthCurve) Clone() DepthCurve {
	out := c
	if c.Bids != nil {
		out.Bids = append(make([]DepthPoint, 0, len(c.Bids)), c.Bids...)
	}
	if c.Asks != nil {
		out.Asks = append(make([]DepthPoint, 0, len(c.Asks)), c.Asks...)
	}
	return out
}
