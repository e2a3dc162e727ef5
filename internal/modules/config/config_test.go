package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "values.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
feed:
  instruments: [btc-usdt, ethusdt, BTCUSDT]
  intervals: [1m, 5m]
  depth_limit: 100
  topology:
    depth: per_instrument
    trade: multiplexed
    kline: multiplexed
  reconnect:
    initial: 1s
    max: 10s
    multiplier: 2
http:
  addr: ":9090"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Feed.Instruments)
	assert.Equal(t, []string{"1m", "5m"}, cfg.Feed.Intervals)
	assert.Equal(t, 100, cfg.Feed.DepthLimit)
	assert.Equal(t, TopologyPerInstrument, cfg.Feed.Topology.Depth)
	assert.Equal(t, 10*time.Second, cfg.Feed.Reconnect.Max)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	// не указанное в файле остаётся по умолчанию
	assert.Equal(t, 50, cfg.Feed.TradeTapeSize)
	assert.Equal(t, time.Second, cfg.Feed.SnapshotRetry.Initial)
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	_, err := Load(writeFile(t, "feed: [oops"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FEED_FEED_INSTRUMENTS", "solusdt, xrpusdt")
	t.Setenv("FEED_HTTP_ADDR", ":7070")
	t.Setenv("FEED_REDIS_ENABLED", "true")
	t.Setenv("FEED_FEED_READ_TIMEOUT", "90s")
	t.Setenv("TELEGRAM_TOKEN", "tg-token")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Default()
	applyEnv(&cfg, envOverrides())
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"SOLUSDT", "XRPUSDT"}, cfg.Feed.Instruments)
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Feed.ReadTimeout)
	assert.Equal(t, "tg-token", cfg.Notify.TelegramToken)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"depth limit":    func(c *Config) { c.Feed.DepthLimit = 0 },
		"tape size":      func(c *Config) { c.Feed.TradeTapeSize = -1 },
		"topology":       func(c *Config) { c.Feed.Topology.Kline = "sharded" },
		"interval":       func(c *Config) { c.Feed.Intervals = []string{"7m"} },
		"read timeout":   func(c *Config) { c.Feed.ReadTimeout = c.Feed.PingInterval },
		"postgres dsn":   func(c *Config) { c.Watchlist.Source = WatchlistPostgres },
		"watchlist kind": func(c *Config) { c.Watchlist.Source = "csv" },
		"redis addr":     func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
