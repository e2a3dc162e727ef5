package models

import "time"

type ChangeKind string

const (
	ChangeTicker  ChangeKind = "ticker"
	ChangeBook    ChangeKind = "book"
	ChangeTrades  ChangeKind = "trades"
	ChangeCandles ChangeKind = "candles"
	ChangeStatus  ChangeKind = "status"
)

// Change: уведомление читателю: состояние инструмента изменилось, забери его через Reader.
type Change struct {
	Instrument string     `json:"instrument"`
	Kind       ChangeKind `json:"kind"`
	Interval   string     `json:"interval,omitempty"`
	Version    uint64     `json:"version"`
	At         time.Time  `json:"at"`
}

func (c Change) Key() string {
	return c.Instrument + "|" + string(c.Kind) + "|" + c.Interval
}
