package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	DB      DBConfig      `mapstructure:"db"`
	Cron    CronConfig    `mapstructure:"cron"`
	Review  ReviewConfig  `mapstructure:"review"`
	Binance BinanceConfig `mapstructure:"binance"`
	OpenAI  OpenAIConfig  `mapstructure:"openai"`
	Redis   RedisConfig   `mapstructure:"redis"`
	News    NewsConfig    `mapstructure:"news"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

// CronConfig maps a review interval ("1h", "3d", ...) to the cron spec that
// triggers its batch.
type CronConfig struct {
	Enabled   bool              `mapstructure:"enabled"`
	Intervals map[string]string `mapstructure:"intervals"`
	NewsSync  string            `mapstructure:"news_sync"`
}

type ReviewConfig struct {
	MaxConcurrency     int           `mapstructure:"max_concurrency"`
	PreviousResults    int           `mapstructure:"previous_results"`
	PerformanceOrders  int           `mapstructure:"performance_orders"`
	TechnicalTimeframe string        `mapstructure:"technical_timeframe"`
	TechnicalCandles   int           `mapstructure:"technical_candles"`
	OrderbookDepth     int           `mapstructure:"orderbook_depth"`
	NewsLookback       time.Duration `mapstructure:"news_lookback"`
	NewsLimit          int           `mapstructure:"news_limit"`
	AnalystModel       string        `mapstructure:"analyst_model"`
}

type BinanceConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RecvWindow int           `mapstructure:"recv_window"`
	APIKey     string        `mapstructure:"api_key"`
	APISecret  string        `mapstructure:"api_secret"`
}

type OpenAIConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	APIKey          string        `mapstructure:"api_key"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type NewsConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
	Feeds   []string      `mapstructure:"feeds"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")

	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.intervals", DefaultIntervalSpecs())
	v.SetDefault("cron.news_sync", "0 */15 * * * *")

	v.SetDefault("review.max_concurrency", 8)
	v.SetDefault("review.previous_results", 5)
	v.SetDefault("review.performance_orders", 10)
	v.SetDefault("review.technical_timeframe", "1d")
	v.SetDefault("review.technical_candles", 100)
	v.SetDefault("review.orderbook_depth", 20)
	v.SetDefault("review.news_lookback", "24h")
	v.SetDefault("review.news_limit", 20)
	v.SetDefault("review.analyst_model", "gpt-4.1-mini")

	v.SetDefault("binance.base_url", "https://api.binance.com")
	v.SetDefault("binance.timeout", "15s")
	v.SetDefault("binance.recv_window", 5000)

	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.timeout", "120s")
	v.SetDefault("openai.max_output_tokens", 2048)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", "30m")

	v.SetDefault("news.enabled", false)
	v.SetDefault("news.timeout", "20s")
	v.SetDefault("news.feeds", []string{
		"https://www.coindesk.com/arc/outboundfeeds/rss/",
		"https://cointelegraph.com/rss",
	})

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if len(cfg.Cron.Intervals) == 0 {
		cfg.Cron.Intervals = DefaultIntervalSpecs()
	}
	return cfg, nil
}

// DefaultIntervalSpecs returns seconds-enabled cron specs for every supported
// review interval.
func DefaultIntervalSpecs() map[string]string {
	return map[string]string{
		"1h":  "0 0 * * * *",
		"3h":  "0 0 */3 * * *",
		"5h":  "0 0 */5 * * *",
		"12h": "0 0 */12 * * *",
		"24h": "0 0 0 * * *",
		"3d":  "0 0 0 */3 * *",
		"1w":  "0 0 0 * * 0",
	}
}
