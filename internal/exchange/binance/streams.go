package binance

import (
	"strings"

	"market_feed/internal/models"
)

// StreamName возвращает имя потока Binance для инструмента, например btcusdt@ticker, btcusdt@kline_1m ...
func StreamName(kind models.StreamKind, instrument, interval string) string {
	sym := strings.ToLower(models.NormSymbol(instrument))
	switch kind {
	case models.KindTicker:
		return sym + "@ticker"
	case models.KindDepth:
		return sym + "@depth@100ms"
	case models.KindTrade:
		return sym + "@trade"
	case models.KindKline:
		return sym + "@kline_" + interval
	}
	return ""
}

func StreamNames(kind models.StreamKind, instruments []string, interval string) []string {
	out := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		if name := StreamName(kind, inst, interval); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// CombinedURL собирает адрес мультиплексного соединения: <base>/stream?streams=a/b/c.
func CombinedURL(base string, streams []string) string {
	return strings.TrimRight(base, "/") + "/stream?streams=" + strings.Join(streams, "/")
}

// Intervals, которые принимает биржа для kline.
var Intervals = map[string]struct{}{
	"1s": {}, "1m": {}, "3m": {}, "5m": {}, "15m": {}, "30m": {},
	"1h": {}, "2h": {}, "4h": {}, "6h": {}, "8h": {}, "12h": {},
	"1d": {}, "3d": {}, "1w": {}, "1M": {},
}

func ValidInterval(iv string) bool {
	_, ok := Intervals[iv]
	return ok
}
