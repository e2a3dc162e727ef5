package models

import "time"

// TickerSnapshot: последнее 24h состояние инструмента. Заменяется целиком.
type TickerSnapshot struct {
	Instrument         string    `json:"instrument"`
	LastPrice          float64   `json:"lastPrice"`
	PriceChangePercent float64   `json:"priceChangePercent"`
	High               float64   `json:"high"`
	Low                float64   `json:"low"`
	Volume             float64   `json:"volume"`
	QuoteVolume        float64   `json:"quoteVolume"`
	ObservedAt         time.Time `json:"observedAt"`
}
