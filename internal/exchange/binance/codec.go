package binance

import (
	"encoding/json"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"market_feed/internal/models"
)

// ErrIgnored: служебное сообщение (ответ на подписку, неизвестное событие), не ошибка потока.
var ErrIgnored = errors.New("binance: message ignored")

type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// Ключи Binance различаются только регистром ("e"/"E", "c"/"C", "m"/"M"),
// а sonic, как и encoding/json, сравнивает их без учёта регистра. Поэтому в
// структурах объявлены все ключи события: точное совпадение тега побеждает.

type eventHeader struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
}

type tickerEvent struct {
	Event        string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	Change       string `json:"p"`
	ChangePct    string `json:"P"`
	WeightedAvg  string `json:"w"`
	PrevClose    string `json:"x"`
	LastPrice    string `json:"c"`
	LastQty      string `json:"Q"`
	BidPrice     string `json:"b"`
	BidQty       string `json:"B"`
	AskPrice     string `json:"a"`
	AskQty       string `json:"A"`
	Open         string `json:"o"`
	High         string `json:"h"`
	Low          string `json:"l"`
	Volume       string `json:"v"`
	QuoteVolume  string `json:"q"`
	OpenTime     int64  `json:"O"`
	CloseTime    int64  `json:"C"`
	FirstTradeID int64  `json:"F"`
	LastTradeID  int64  `json:"L"`
	TradesCount  int64  `json:"n"`
}

type depthEvent struct {
	Event     string     `json:"e"`
	EventTime int64      `json:"E"`
	Symbol    string     `json:"s"`
	FirstID   int64      `json:"U"`
	FinalID   int64      `json:"u"`
	Bids      [][]string `json:"b"`
	Asks      [][]string `json:"a"`
}

type tradeEvent struct {
	Event        string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	TradeID      int64  `json:"t"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	BuyerIsMaker bool   `json:"m"`
	Ignore       bool   `json:"M"`
}

type klineEvent struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime       int64  `json:"t"`
		CloseTime      int64  `json:"T"`
		Symbol         string `json:"s"`
		Interval       string `json:"i"`
		FirstTradeID   int64  `json:"f"`
		LastTradeID    int64  `json:"L"`
		Open           string `json:"o"`
		Close          string `json:"c"`
		High           string `json:"h"`
		Low            string `json:"l"`
		Volume         string `json:"v"`
		TradesCount    int64  `json:"n"`
		Closed         bool   `json:"x"`
		QuoteVolume    string `json:"q"`
		TakerBuyVolume string `json:"V"`
		TakerBuyQuote  string `json:"Q"`
		Ignore         string `json:"B"`
	} `json:"k"`
}

// Decode разбирает сообщение комбинированного (или одиночного) потока в Frame.
func Decode(raw []byte) (models.Frame, error) {
	var env envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return models.Frame{}, errors.Wrap(err, "decode envelope")
	}
	data := []byte(env.Data)
	if env.Stream == "" || len(data) == 0 {
		data = raw
	}

	var hdr eventHeader
	if err := sonic.Unmarshal(data, &hdr); err != nil {
		return models.Frame{}, errors.Wrap(err, "decode event header")
	}

	switch hdr.Event {
	case "24hrTicker":
		return decodeTicker(data)
	case "depthUpdate":
		return decodeDepth(data)
	case "trade":
		return decodeTrade(data)
	case "kline":
		return decodeKline(data)
	}
	return models.Frame{}, ErrIgnored
}

func decodeTicker(data []byte) (models.Frame, error) {
	var ev tickerEvent
	if err := sonic.Unmarshal(data, &ev); err != nil {
		return models.Frame{}, errors.Wrap(err, "decode ticker")
	}
	p := parser{}
	t := &models.TickerSnapshot{
		Instrument:         models.NormSymbol(ev.Symbol),
		LastPrice:          p.float(ev.LastPrice),
		PriceChangePercent: p.float(ev.ChangePct),
		High:               p.float(ev.High),
		Low:                p.float(ev.Low),
		Volume:             p.float(ev.Volume),
		QuoteVolume:        p.float(ev.QuoteVolume),
		ObservedAt:         msTime(ev.EventTime),
	}
	if p.err != nil {
		return models.Frame{}, errors.Wrapf(p.err, "ticker %s", ev.Symbol)
	}
	if t.Instrument == "" {
		return models.Frame{}, errors.New("ticker without symbol")
	}
	return models.Frame{Kind: models.KindTicker, Ticker: t}, nil
}

func decodeDepth(data []byte) (models.Frame, error) {
	var ev depthEvent
	if err := sonic.Unmarshal(data, &ev); err != nil {
		return models.Frame{}, errors.Wrap(err, "decode depth")
	}
	bids, err := Levels(ev.Bids)
	if err != nil {
		return models.Frame{}, errors.Wrapf(err, "depth %s bids", ev.Symbol)
	}
	asks, err := Levels(ev.Asks)
	if err != nil {
		return models.Frame{}, errors.Wrapf(err, "depth %s asks", ev.Symbol)
	}
	return models.Frame{Kind: models.KindDepth, Diff: &models.DepthDiff{
		Instrument:    models.NormSymbol(ev.Symbol),
		FirstUpdateID: ev.FirstID,
		FinalUpdateID: ev.FinalID,
		EventTime:     msTime(ev.EventTime),
		Bids:          bids,
		Asks:          asks,
	}}, nil
}

func decodeTrade(data []byte) (models.Frame, error) {
	var ev tradeEvent
	if err := sonic.Unmarshal(data, &ev); err != nil {
		return models.Frame{}, errors.Wrap(err, "decode trade")
	}
	price, err := decimal.NewFromString(ev.Price)
	if err != nil {
		return models.Frame{}, errors.Wrapf(err, "trade %d price", ev.TradeID)
	}
	qty, err := decimal.NewFromString(ev.Quantity)
	if err != nil {
		return models.Frame{}, errors.Wrapf(err, "trade %d quantity", ev.TradeID)
	}
	// m=true: покупатель является мейкером, значит агрессор продавал
	side := models.SideBuy
	if ev.BuyerIsMaker {
		side = models.SideSell
	}
	return models.Frame{Kind: models.KindTrade, Trade: &models.TradePrint{
		Instrument: models.NormSymbol(ev.Symbol),
		TradeID:    ev.TradeID,
		Price:      price.InexactFloat64(),
		Quantity:   qty.InexactFloat64(),
		QuoteValue: price.Mul(qty).InexactFloat64(),
		OccurredAt: msTime(ev.TradeTime),
		TakerSide:  side,
	}}, nil
}

func decodeKline(data []byte) (models.Frame, error) {
	var ev klineEvent
	if err := sonic.Unmarshal(data, &ev); err != nil {
		return models.Frame{}, errors.Wrap(err, "decode kline")
	}
	k := ev.Kline
	p := parser{}
	c := &models.Candle{
		Instrument:  models.NormSymbol(ev.Symbol),
		Interval:    k.Interval,
		OpenTime:    msTime(k.OpenTime),
		CloseTime:   msTime(k.CloseTime),
		Open:        p.float(k.Open),
		High:        p.float(k.High),
		Low:         p.float(k.Low),
		Close:       p.float(k.Close),
		Volume:      p.float(k.Volume),
		QuoteVolume: p.float(k.QuoteVolume),
		IsClosed:    k.Closed,
	}
	if p.err != nil {
		return models.Frame{}, errors.Wrapf(p.err, "kline %s %s", ev.Symbol, k.Interval)
	}
	return models.Frame{Kind: models.KindKline, Candle: c}, nil
}

// Levels переводит пары [price, qty] из строк биржи в уровни стакана.
func Levels(raw [][]string) ([]models.Level, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]models.Level, 0, len(raw))
	p := parser{}
	for _, lv := range raw {
		if len(lv) < 2 {
			continue
		}
		out = append(out, models.Level{Price: p.float(lv[0]), Quantity: p.float(lv[1])})
	}
	return out, p.err
}

// parser запоминает первую ошибку разбора, чтобы не проверять каждое поле отдельно.
type parser struct {
	err error
}

func (p *parser) float(s string) float64 {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		if p.err == nil {
			p.err = errors.Wrapf(err, "parse %q", s)
		}
		return 0
	}
	return d.InexactFloat64()
}

func msTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
