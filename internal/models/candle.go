package models

import "time"

type Candle struct {
	Instrument  string    `json:"instrument"`
	Interval    string    `json:"interval"`
	OpenTime    time.Time `json:"openTime"`
	CloseTime   time.Time `json:"closeTime"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	QuoteVolume float64   `json:"quoteVolume"`
	IsClosed    bool      `json:"isClosed"`
}
