package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_feed/internal/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(RESTConfig{BaseURL: srv.URL, Timeout: 2 * time.Second})
}

func TestDepthSnapshot(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/depth", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"lastUpdateId":100,"bids":[["100.0","1"],["99.0","2"]],"asks":[["101.0","1"]]}`))
	})

	snap, err := c.DepthSnapshot(context.Background(), "btcusdt", 40)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", snap.Instrument)
	assert.Equal(t, int64(100), snap.LastUpdateID)
	assert.Equal(t, []models.Level{{Price: 100, Quantity: 1}, {Price: 99, Quantity: 2}}, snap.Bids)
	assert.Len(t, snap.Asks, 1)
}

func TestDepthSnapshotAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"code":-1003,"msg":"Too many requests"}`))
	})

	_, err := c.DepthSnapshot(context.Background(), "BTCUSDT", 50)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, -1003, apiErr.Code)
	assert.True(t, apiErr.RateLimited())
}

func TestKlines(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		_, _ = w.Write([]byte(`[
			[1700000000000,"100","102","99","101","10",1700000059999,"1010",5,"1","1","0"],
			[1700000060000,"101","103","100","102","11",4102444800000,"1122",6,"1","1","0"]
		]`))
	})

	got, err := c.Klines(context.Background(), "BTCUSDT", "1m", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), got[0].OpenTime)
	assert.Equal(t, 101.0, got[0].Close)
	assert.True(t, got[0].IsClosed)
	assert.False(t, got[1].IsClosed)
	assert.Equal(t, 1122.0, got[1].QuoteVolume)
}

func TestDepthLimitRoundsUp(t *testing.T) {
	assert.Equal(t, 5, depthLimit(1))
	assert.Equal(t, 50, depthLimit(50))
	assert.Equal(t, 100, depthLimit(51))
	assert.Equal(t, 5000, depthLimit(100000))
}
