package binance

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"market_feed/internal/models"
)

// APIError: ответ биржи с не-2xx статусом.
type APIError struct {
	Status int
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance http %d: code=%d msg=%s", e.Status, e.Code, e.Msg)
}

// RateLimited: 429/418: биржа просит притормозить.
func (e *APIError) RateLimited() bool {
	return e.Status == http.StatusTooManyRequests || e.Status == http.StatusTeapot
}

type RESTConfig struct {
	BaseURL string
	Timeout time.Duration
	RPS     float64
}

// Client: REST-клиент публичного маркет-API: снапшот стакана и история свечей.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(cfg RESTConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.binance.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
	}
}

var depthLimits = []int{5, 10, 20, 50, 100, 500, 1000, 5000}

// depthLimit приводит глубину к ближайшему допустимому значению не меньше запрошенного.
func depthLimit(n int) int {
	for _, l := range depthLimits {
		if n <= l {
			return l
		}
	}
	return depthLimits[len(depthLimits)-1]
}

type depthResponse struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// DepthSnapshot: GET /api/v3/depth.
func (c *Client) DepthSnapshot(ctx context.Context, instrument string, limit int) (models.DepthSnapshot, error) {
	sym := models.NormSymbol(instrument)
	span, ctx := opentracing.StartSpanFromContext(ctx, "binance.DepthSnapshot")
	defer span.Finish()
	span.SetTag("instrument", sym)

	q := url.Values{}
	q.Set("symbol", sym)
	q.Set("limit", strconv.Itoa(depthLimit(limit)))

	var resp depthResponse
	if err := c.get(ctx, "/api/v3/depth", q, &resp); err != nil {
		ext.Error.Set(span, true)
		span.LogKV("error", err.Error())
		return models.DepthSnapshot{}, errors.Wrapf(err, "depth snapshot %s", sym)
	}

	bids, err := Levels(resp.Bids)
	if err != nil {
		return models.DepthSnapshot{}, errors.Wrapf(err, "depth snapshot %s bids", sym)
	}
	asks, err := Levels(resp.Asks)
	if err != nil {
		return models.DepthSnapshot{}, errors.Wrapf(err, "depth snapshot %s asks", sym)
	}
	span.SetTag("last_update_id", resp.LastUpdateID)
	return models.DepthSnapshot{
		Instrument:   sym,
		LastUpdateID: resp.LastUpdateID,
		Bids:         bids,
		Asks:         asks,
	}, nil
}

// Klines: GET /api/v3/klines, старые первыми.
// Строка ответа: [openTime, o, h, l, c, volume, closeTime, quoteVolume, trades, ...].
func (c *Client) Klines(ctx context.Context, instrument, interval string, limit int) ([]models.Candle, error) {
	sym := models.NormSymbol(instrument)
	span, ctx := opentracing.StartSpanFromContext(ctx, "binance.Klines")
	defer span.Finish()
	span.SetTag("instrument", sym)
	span.SetTag("interval", interval)

	if limit <= 0 {
		limit = 500
	}
	if limit > 1000 {
		limit = 1000
	}
	q := url.Values{}
	q.Set("symbol", sym)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))

	var rows [][]any
	if err := c.get(ctx, "/api/v3/klines", q, &rows); err != nil {
		ext.Error.Set(span, true)
		span.LogKV("error", err.Error())
		return nil, errors.Wrapf(err, "klines %s %s", sym, interval)
	}

	now := time.Now()
	out := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 8 {
			continue
		}
		p := parser{}
		cd := models.Candle{
			Instrument:  sym,
			Interval:    interval,
			OpenTime:    msTime(anyInt(row[0])),
			Open:        p.float(anyString(row[1])),
			High:        p.float(anyString(row[2])),
			Low:         p.float(anyString(row[3])),
			Close:       p.float(anyString(row[4])),
			Volume:      p.float(anyString(row[5])),
			CloseTime:   msTime(anyInt(row[6])),
			QuoteVolume: p.float(anyString(row[7])),
		}
		if p.err != nil || cd.OpenTime.IsZero() {
			continue
		}
		cd.IsClosed = cd.CloseTime.Before(now)
		out = append(out, cd)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode}
		if sonic.Unmarshal(body, apiErr) != nil || apiErr.Msg == "" {
			apiErr.Msg = strings.TrimSpace(string(body))
		}
		return apiErr
	}
	if err := sonic.Unmarshal(body, dst); err != nil {
		return errors.Wrap(err, "decode")
	}
	return nil
}

func anyString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

func anyInt(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	return 0
}
