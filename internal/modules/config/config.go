package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"market_feed/internal/exchange/binance"
	"market_feed/internal/models"
	"market_feed/internal/retry"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDirENV      = "CONFIG_DIR"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	logLevelENV       = "LOG_LEVEL"

	envPrefix = "FEED"
)

const (
	TopologyMultiplexed   = "multiplexed"
	TopologyPerInstrument = "per_instrument"

	WatchlistStatic   = "static"
	WatchlistPostgres = "postgres"
)

// Config ...
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Exchange  ExchangeConfig  `yaml:"exchange"`
	Feed      FeedConfig      `yaml:"feed"`
	Watchlist WatchlistConfig `yaml:"watchlist"`
	HTTP      HTTPConfig      `yaml:"http"`
	Redis     RedisConfig     `yaml:"redis"`
	Notify    NotifyConfig    `yaml:"notify"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // пусто: только stdout
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type ExchangeConfig struct {
	WSURL       string        `yaml:"ws_url"`
	RESTURL     string        `yaml:"rest_url"`
	RESTRPS     float64       `yaml:"rest_rps"`
	RESTTimeout time.Duration `yaml:"rest_timeout"`
}

type FeedConfig struct {
	Instruments      []string       `yaml:"instruments"`
	Intervals        []string       `yaml:"intervals"`
	DepthLimit       int            `yaml:"depth_limit"`
	TradeTapeSize    int            `yaml:"trade_tape_size"`
	CandleSeriesSize int            `yaml:"candle_series_size"`
	SeedCandles      bool           `yaml:"seed_candles"`
	Topology         TopologyConfig `yaml:"topology"`
	Reconnect        retry.Policy   `yaml:"reconnect"`
	SnapshotRetry    retry.Policy   `yaml:"snapshot_retry"`
	PingInterval     time.Duration  `yaml:"ping_interval"`
	ReadTimeout      time.Duration  `yaml:"read_timeout"`
	DiffBuffer       int            `yaml:"diff_buffer"`
}

// TopologyConfig: схема соединений по видам потоков. Тикеры всегда мультиплексированы.
type TopologyConfig struct {
	Depth string `yaml:"depth"`
	Trade string `yaml:"trade"`
	Kline string `yaml:"kline"`
}

func (t TopologyConfig) For(kind models.StreamKind) string {
	switch kind {
	case models.KindDepth:
		return t.Depth
	case models.KindTrade:
		return t.Trade
	case models.KindKline:
		return t.Kline
	}
	return TopologyMultiplexed
}

type WatchlistConfig struct {
	Source  string        `yaml:"source"`
	DSN     string        `yaml:"dsn"`
	Refresh time.Duration `yaml:"refresh"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type NotifyConfig struct {
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`
	DiscordWebhook string `yaml:"discord_webhook"`
}

type TracingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Default: значения, поверх которых читается файл.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", MaxSizeMB: 5, MaxBackups: 10, MaxAgeDays: 14},
		Exchange: ExchangeConfig{
			WSURL:       "wss://stream.binance.com:9443",
			RESTURL:     "https://api.binance.com",
			RESTRPS:     5,
			RESTTimeout: 10 * time.Second,
		},
		Feed: FeedConfig{
			Instruments:      []string{"BTCUSDT", "ETHUSDT"},
			Intervals:        []string{"1m"},
			DepthLimit:       50,
			TradeTapeSize:    50,
			CandleSeriesSize: 500,
			SeedCandles:      true,
			Topology: TopologyConfig{
				Depth: TopologyMultiplexed,
				Trade: TopologyMultiplexed,
				Kline: TopologyMultiplexed,
			},
			Reconnect:     retry.Policy{Initial: 3 * time.Second, Max: 3 * time.Second, Multiplier: 1},
			SnapshotRetry: retry.Policy{Initial: time.Second, Max: 30 * time.Second, Multiplier: 2},
			PingInterval:  20 * time.Second,
			ReadTimeout:   60 * time.Second,
			DiffBuffer:    1000,
		},
		Watchlist: WatchlistConfig{Source: WatchlistStatic, Refresh: 30 * time.Second},
		HTTP:      HTTPConfig{Addr: ":8080"},
		Redis:     RedisConfig{Addr: "localhost:6379", TTL: 2 * time.Minute},
		Tracing:   TracingConfig{Host: "localhost", Port: 6831},
	}
}

func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	dir := os.Getenv(configDirENV)
	if dir == "" {
		dir = "configs"
	}

	cfg, err := Load(filepath.Join(dir, configFileName))
	if err != nil {
		return nil, err
	}
	applyEnv(cfg, envOverrides())

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load читает YAML поверх Default. Отсутствие файла не ошибка.
func Load(path string) (*Config, error) {
	cfg := Default()

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, errors.Wrapf(err, "open config %s", path)
	}
	defer func() {
		_ = file.Close()
	}()

	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, errors.Wrapf(err, "decode config %s", path)
	}
	return &cfg, nil
}

func envOverrides() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// applyEnv переопределяет выбранные ключи из окружения: FEED_EXCHANGE_WS_URL, FEED_FEED_INSTRUMENTS=A,B ...
func applyEnv(cfg *Config, v *viper.Viper) {
	str := func(key string, dst *string) {
		if s := v.GetString(key); s != "" {
			*dst = s
		}
	}
	list := func(key string, dst *[]string) {
		if s := v.GetString(key); s != "" {
			*dst = splitList(s)
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v.GetString(key) != "" {
			if d := v.GetDuration(key); d > 0 {
				*dst = d
			}
		}
	}
	boolean := func(key string, dst *bool) {
		if v.GetString(key) != "" {
			*dst = v.GetBool(key)
		}
	}

	str("log.level", &cfg.Log.Level)
	str("log.file", &cfg.Log.File)
	str("exchange.ws_url", &cfg.Exchange.WSURL)
	str("exchange.rest_url", &cfg.Exchange.RESTURL)
	list("feed.instruments", &cfg.Feed.Instruments)
	list("feed.intervals", &cfg.Feed.Intervals)
	if v.GetString("feed.depth_limit") != "" {
		cfg.Feed.DepthLimit = v.GetInt("feed.depth_limit")
	}
	dur("feed.ping_interval", &cfg.Feed.PingInterval)
	dur("feed.read_timeout", &cfg.Feed.ReadTimeout)
	str("watchlist.source", &cfg.Watchlist.Source)
	str("watchlist.dsn", &cfg.Watchlist.DSN)
	dur("watchlist.refresh", &cfg.Watchlist.Refresh)
	str("http.addr", &cfg.HTTP.Addr)
	boolean("redis.enabled", &cfg.Redis.Enabled)
	str("redis.addr", &cfg.Redis.Addr)
	str("redis.password", &cfg.Redis.Password)
	str("notify.telegram_token", &cfg.Notify.TelegramToken)
	if v.GetString("notify.telegram_chat_id") != "" {
		cfg.Notify.TelegramChatID = v.GetInt64("notify.telegram_chat_id")
	}
	str("notify.discord_webhook", &cfg.Notify.DiscordWebhook)
	boolean("tracing.enabled", &cfg.Tracing.Enabled)
	str("tracing.host", &cfg.Tracing.Host)

	// старые имена переменных
	if token := os.Getenv(tokenTelegramENV); token != "" {
		cfg.Notify.TelegramToken = token
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		cfg.Watchlist.DSN = dsn
	}
	if lvl := os.Getenv(logLevelENV); lvl != "" {
		cfg.Log.Level = lvl
	}
}

func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == ';' })
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate отсекает настройки, с которыми сервис заведомо не заработает.
func (c *Config) Validate() error {
	c.Feed.Instruments = models.NormSymbols(c.Feed.Instruments)

	if c.Exchange.WSURL == "" || c.Exchange.RESTURL == "" {
		return errors.New("exchange.ws_url and exchange.rest_url are required")
	}
	if c.Feed.DepthLimit <= 0 || c.Feed.DepthLimit > 5000 {
		return errors.Errorf("feed.depth_limit must be in 1..5000, got %d", c.Feed.DepthLimit)
	}
	if c.Feed.TradeTapeSize <= 0 {
		return errors.Errorf("feed.trade_tape_size must be positive, got %d", c.Feed.TradeTapeSize)
	}
	if c.Feed.CandleSeriesSize <= 0 {
		return errors.Errorf("feed.candle_series_size must be positive, got %d", c.Feed.CandleSeriesSize)
	}
	if c.Feed.DiffBuffer <= 0 {
		return errors.Errorf("feed.diff_buffer must be positive, got %d", c.Feed.DiffBuffer)
	}
	if c.Feed.Reconnect.Initial <= 0 {
		return errors.New("feed.reconnect.initial must be positive")
	}
	if c.Feed.SnapshotRetry.Initial <= 0 {
		return errors.New("feed.snapshot_retry.initial must be positive")
	}
	if c.Feed.PingInterval <= 0 || c.Feed.ReadTimeout <= c.Feed.PingInterval {
		return errors.Errorf("feed.read_timeout (%s) must exceed feed.ping_interval (%s)",
			c.Feed.ReadTimeout, c.Feed.PingInterval)
	}
	for _, iv := range c.Feed.Intervals {
		if !binance.ValidInterval(iv) {
			return errors.Errorf("feed.intervals: unsupported interval %q", iv)
		}
	}
	for _, kind := range []models.StreamKind{models.KindDepth, models.KindTrade, models.KindKline} {
		switch c.Feed.Topology.For(kind) {
		case TopologyMultiplexed, TopologyPerInstrument:
		default:
			return errors.Errorf("feed.topology.%s: unknown value %q", kind, c.Feed.Topology.For(kind))
		}
	}
	switch c.Watchlist.Source {
	case WatchlistStatic:
	case WatchlistPostgres:
		if c.Watchlist.DSN == "" {
			return errors.New("watchlist.dsn is required for postgres source")
		}
	default:
		return errors.Errorf("watchlist.source: unknown value %q", c.Watchlist.Source)
	}
	if c.Watchlist.Refresh <= 0 {
		c.Watchlist.Refresh = 30 * time.Second
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}
	return nil
}
