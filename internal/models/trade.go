package models

import "time"

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type TradePrint struct {
	Instrument string    `json:"instrument"`
	TradeID    int64     `json:"tradeId"`
	Price      float64   `json:"price"`
	Quantity   float64   `json:"quantity"`
	QuoteValue float64   `json:"quoteValue"`
	OccurredAt time.Time `json:"occurredAt"`
	TakerSide  Side      `json:"takerSide"`
}
