package book

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"market_feed/internal/models"
)

var ErrStaleDiff = errors.New("depth diff is older than the book")

// SequenceGapError: между последним применённым апдейтом и новым диффом есть пропуск.
type SequenceGapError struct {
	Instrument string
	Expected   int64
	Got        int64
}

func (e *SequenceGapError) Error() string {
	return fmt.Sprintf("%s: sequence gap, expected first update id <= %d, got %d", e.Instrument, e.Expected, e.Got)
}

// Book: изменяемый стакан одного инструмента. Не потокобезопасен:
// им владеет ровно один Reconstructor.
type Book struct {
	instrument   string
	bids         []models.Level // по убыванию цены
	asks         []models.Level // по возрастанию цены
	bidTotal     float64
	askTotal     float64
	lastUpdateID int64
	updatedAt    time.Time
}

func New(instrument string) *Book {
	return &Book{instrument: instrument}
}

// FromSnapshot строит стакан из REST-снапшота. Снапшот может прийти несортированным
// и с нулевыми уровнями.
func FromSnapshot(snap models.DepthSnapshot) *Book {
	b := New(snap.Instrument)
	for _, lv := range snap.Bids {
		b.setBid(lv.Price, lv.Quantity)
	}
	for _, lv := range snap.Asks {
		b.setAsk(lv.Price, lv.Quantity)
	}
	b.bidTotal = models.SumQuantity(b.bids)
	b.askTotal = models.SumQuantity(b.asks)
	b.lastUpdateID = snap.LastUpdateID
	b.updatedAt = time.Now()
	return b
}

func (b *Book) LastUpdateID() int64 { return b.lastUpdateID }

// ApplyDiff проверяет последовательность и применяет дифф.
// Дифф без id (FinalUpdateID == 0) применяется без проверок.
func (b *Book) ApplyDiff(d models.DepthDiff) error {
	if d.FinalUpdateID != 0 {
		if d.FinalUpdateID <= b.lastUpdateID {
			return ErrStaleDiff
		}
		if d.FirstUpdateID != 0 && d.FirstUpdateID > b.lastUpdateID+1 {
			return &SequenceGapError{
				Instrument: b.instrument,
				Expected:   b.lastUpdateID + 1,
				Got:        d.FirstUpdateID,
			}
		}
	}

	b.ApplyLevels(d.Bids, d.Asks)

	if d.FinalUpdateID != 0 {
		b.lastUpdateID = d.FinalUpdateID
	}
	if !d.EventTime.IsZero() {
		b.updatedAt = d.EventTime
	} else {
		b.updatedAt = time.Now()
	}
	return nil
}

// ApplyLevels: quantity 0 удаляет уровень, иначе вставка/замена по цене.
// Итоги пересчитываются только для затронутой стороны.
func (b *Book) ApplyLevels(bids, asks []models.Level) {
	for _, lv := range bids {
		b.setBid(lv.Price, lv.Quantity)
	}
	if len(bids) > 0 {
		b.bidTotal = models.SumQuantity(b.bids)
	}
	for _, lv := range asks {
		b.setAsk(lv.Price, lv.Quantity)
	}
	if len(asks) > 0 {
		b.askTotal = models.SumQuantity(b.asks)
	}
}

func (b *Book) setBid(price, qty float64) {
	i := sort.Search(len(b.bids), func(i int) bool { return b.bids[i].Price <= price })
	b.bids = upsert(b.bids, i, price, qty)
}

func (b *Book) setAsk(price, qty float64) {
	i := sort.Search(len(b.asks), func(i int) bool { return b.asks[i].Price >= price })
	b.asks = upsert(b.asks, i, price, qty)
}

func upsert(levels []models.Level, i int, price, qty float64) []models.Level {
	found := i < len(levels) && levels[i].Price == price
	switch {
	case qty <= 0 && found:
		return append(levels[:i], levels[i+1:]...)
	case qty <= 0:
		return levels
	case found:
		levels[i].Quantity = qty
		return levels
	}
	levels = append(levels, models.Level{})
	copy(levels[i+1:], levels[i:])
	levels[i] = models.Level{Price: price, Quantity: qty}
	return levels
}

// Ladder возвращает копию, не разделяющую память с книгой.
func (b *Book) Ladder() models.Ladder {
	bids := make([]models.Level, len(b.bids))
	copy(bids, b.bids)
	asks := make([]models.Level, len(b.asks))
	copy(asks, b.asks)
	return models.Ladder{
		Instrument:   b.instrument,
		Bids:         bids,
		Asks:         asks,
		BidTotal:     b.bidTotal,
		AskTotal:     b.askTotal,
		LastUpdateID: b.lastUpdateID,
		UpdatedAt:    b.updatedAt,
	}
}
