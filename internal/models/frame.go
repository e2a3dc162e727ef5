package models

// Frame: декодированное входящее сообщение потока. Заполнено ровно одно поле.
type Frame struct {
	Kind   StreamKind
	Ticker *TickerSnapshot
	Diff   *DepthDiff
	Trade  *TradePrint
	Candle *Candle
}

func (f Frame) Instrument() string {
	switch {
	case f.Ticker != nil:
		return f.Ticker.Instrument
	case f.Diff != nil:
		return f.Diff.Instrument
	case f.Trade != nil:
		return f.Trade.Instrument
	case f.Candle != nil:
		return f.Candle.Instrument
	}
	return ""
}
