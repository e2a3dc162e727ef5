package models

import "strings"

// StreamKind: логический класс потока биржи.
type StreamKind string

const (
	KindTicker StreamKind = "ticker"
	KindDepth  StreamKind = "depth"
	KindTrade  StreamKind = "trade"
	KindKline  StreamKind = "kline"
)

func (k StreamKind) String() string { return string(k) }

// NormSymbol приводит символ к виду "BTCUSDT".
func NormSymbol(s string) string {
	s = strings.TrimSpace(strings.ToUpper(s))
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, "/", "")
}

// NormSymbols нормализует список и убирает дубли, сохраняя порядок.
func NormSymbols(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = NormSymbol(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
