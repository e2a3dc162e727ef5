package service

import (
	"fmt"
	"strings"

	"market_feed/internal/models"
	feed "market_feed/internal/modules/feed/service"
)

func formatStatus(live bool, conns []models.ConnectionState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*📡 Фид:* %s\n\n", onOff(live))
	for _, c := range conns {
		icon := "🔴"
		switch c.Status {
		case models.Connected:
			icon = "🟢"
		case models.Connecting:
			icon = "🟡"
		}
		fmt.Fprintf(&b, "%s `%s` %s", icon, c.Stream, c.Status)
		if c.RetryCount > 0 {
			fmt.Fprintf(&b, " (попыток: %d)", c.RetryCount)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatInstruments(r feed.Reader) string {
	syms := r.Instruments()
	if len(syms) == 0 {
		return "📭 Ничего не отслеживается"
	}
	var b strings.Builder
	b.WriteString("*📋 Инструменты*\n\n")
	for _, sym := range syms {
		fmt.Fprintf(&b, "`%s` стакан: %s\n", sym, r.BookStatus(sym))
	}
	return b.String()
}

func formatTicker(t models.TickerSnapshot) string {
	return fmt.Sprintf(
		"*%s*\n\n"+
			"Цена: `%s`\n"+
			"24ч: `%s%%`\n"+
			"High/Low: `%s` / `%s`\n"+
			"Объём: `%s`\n",
		t.Instrument,
		num(t.LastPrice),
		f2(t.PriceChangePercent),
		num(t.High), num(t.Low),
		num(t.Volume),
	)
}

func formatBook(l models.Ladder) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*📖 %s* #%d\n```\n", l.Instrument, l.LastUpdateID)
	for i := len(l.Asks) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "%14s %12s\n", num(l.Asks[i].Price), num(l.Asks[i].Quantity))
	}
	b.WriteString("--------------------------\n")
	for _, lv := range l.Bids {
		fmt.Fprintf(&b, "%14s %12s\n", num(lv.Price), num(lv.Quantity))
	}
	fmt.Fprintf(&b, "```\nΣ bid `%s` / ask `%s`", num(l.BidTotal), num(l.AskTotal))
	return b.String()
}

func formatTrades(sym string, trades []models.TradePrint, n int) string {
	if len(trades) == 0 {
		return "📭 Сделок по " + sym + " пока нет"
	}
	if len(trades) > n {
		trades = trades[:n]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*🧾 %s*\n\n", sym)
	for _, tr := range trades {
		icon := "🟢"
		if tr.TakerSide == models.SideSell {
			icon = "🔴"
		}
		fmt.Fprintf(&b, "%s `%s` × `%s` %s\n", icon, num(tr.Price), num(tr.Quantity), tr.OccurredAt.Format("15:04:05"))
	}
	return b.String()
}

func formatCandles(sym, iv string, cs []models.Candle, n int) string {
	if len(cs) == 0 {
		return "📭 Свечей " + sym + " " + iv + " пока нет"
	}
	if len(cs) > n {
		cs = cs[len(cs)-n:]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*🕯 %s %s*\n\n", sym, iv)
	for _, c := range cs {
		mark := ""
		if !c.IsClosed {
			mark = " ⏳"
		}
		fmt.Fprintf(&b, "%s O `%s` H `%s` L `%s` C `%s`%s\n",
			c.OpenTime.UTC().Format("15:04"), num(c.Open), num(c.High), num(c.Low), num(c.Close), mark)
	}
	return b.String()
}
