// Package config defines the top-level configuration for the quantflow
// backend and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from
// a TOML file and then optionally overridden by QUANTFLOW_* environment
// variables.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Auth      AuthConfig      `toml:"auth"`
	Exchange  ExchangeConfig  `toml:"exchange"`
	Stocks    StocksConfig    `toml:"stocks"`
	AI        AIConfig        `toml:"ai"`
	Risk      RiskConfig      `toml:"risk"`
	Backtest  BacktestConfig  `toml:"backtest"`
	Collector CollectorConfig `toml:"collector"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimitPerMinute caps requests per client IP. Zero disables
	// the limiter.
	RateLimitPerMinute int `toml:"rate_limit_per_minute"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr            string `toml:"addr"`
	Password        string `toml:"password"`
	DB              int    `toml:"db"`
	PoolSize        int    `toml:"pool_size"`
	MaxRetries      int    `toml:"max_retries"`
	TLSEnabled      bool   `toml:"tls_enabled"`
	CacheTTLMinutes int    `toml:"cache_ttl_minutes"`
}

// S3Config holds S3-compatible object storage parameters for the kline
// archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// AuthConfig holds session-token and password hashing parameters.
type AuthConfig struct {
	TokenSecret string   `toml:"token_secret"`
	TokenTTL    duration `toml:"token_ttl"`
	BcryptCost  int      `toml:"bcrypt_cost"`
}

// ExchangeConfig holds crypto exchange API parameters. Public market
// data needs no credentials; the key pair is only required for signed
// account endpoints.
type ExchangeConfig struct {
	Name      string `toml:"name"`
	BaseURL   string `toml:"base_url"`
	WsURL     string `toml:"ws_url"`
	ApiKey    string `toml:"api_key"`
	ApiSecret string `toml:"api_secret"`
	Testnet   bool   `toml:"testnet"`
}

// StocksConfig holds the stock market data provider parameters.
type StocksConfig struct {
	BaseURL string `toml:"base_url"`
}

// AIConfig holds the language-model API parameters. When ApiKey is
// empty the AI endpoints report "not configured" instead of failing.
type AIConfig struct {
	ApiKey      string  `toml:"api_key"`
	BaseURL     string  `toml:"base_url"`
	Model       string  `toml:"model"`
	Temperature float64 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
}

// RiskConfig holds order risk limits.
type RiskConfig struct {
	MaxOrdersPerMinute int     `toml:"max_orders_per_minute"`
	MaxPositionSize    float64 `toml:"max_position_size"`
}

// BacktestConfig holds defaults applied when a run request omits them.
// The Run* fields describe the one-shot run executed in "backtest" mode
// and are ignored by the other modes.
type BacktestConfig struct {
	InitialCapital float64 `toml:"initial_capital"`
	CommissionRate float64 `toml:"commission_rate"`
	MaxSweepSize   int     `toml:"max_sweep_size"`

	RunKind      string         `toml:"run_kind"`
	RunSymbol    string         `toml:"run_symbol"`
	RunTimeframe string         `toml:"run_timeframe"`
	RunStart     string         `toml:"run_start"` // "2006-01-02"
	RunEnd       string         `toml:"run_end"`
	RunParams    map[string]any `toml:"run_params"`
}

// CollectorConfig holds kline collection and archival parameters.
type CollectorConfig struct {
	Enabled              bool     `toml:"enabled"`
	Exchange             string   `toml:"exchange"`
	Symbols              []string `toml:"symbols"`
	Timeframe            string   `toml:"timeframe"`
	FetchInterval        duration `toml:"fetch_interval"`
	FetchLimit           int      `toml:"fetch_limit"`
	ArchiveRetentionDays int      `toml:"archive_retention_days"`
	// ArchiveCron is a 5-field cron expression scheduling archive runs.
	ArchiveCron string `toml:"archive_cron"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder
// can parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Enabled:            true,
			Port:               8000,
			CORSOrigins:        []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitPerMinute: 300,
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "quantflow",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			DB:              0,
			PoolSize:        20,
			MaxRetries:      3,
			CacheTTLMinutes: 10,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "quantflow-data",
			ForcePathStyle: true,
		},
		Auth: AuthConfig{
			TokenTTL:   duration{30 * time.Minute},
			BcryptCost: 12,
		},
		Exchange: ExchangeConfig{
			Name:    "binance",
			BaseURL: "https://api.binance.com",
			WsURL:   "wss://stream.binance.com:9443",
			Testnet: false,
		},
		Stocks: StocksConfig{
			BaseURL: "https://query1.finance.yahoo.com",
		},
		AI: AIConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   2000,
		},
		Risk: RiskConfig{
			MaxOrdersPerMinute: 10,
			MaxPositionSize:    10000,
		},
		Backtest: BacktestConfig{
			InitialCapital: 100000,
			CommissionRate: 0.001,
			MaxSweepSize:   16,
		},
		Collector: CollectorConfig{
			Enabled:              false,
			Exchange:             "binance",
			Symbols:              []string{"BTCUSDT", "ETHUSDT"},
			Timeframe:            "1h",
			FetchInterval:        duration{5 * time.Minute},
			FetchLimit:           500,
			ArchiveRetentionDays: 365,
			ArchiveCron:          "0 3 * * *",
		},
		Notify: NotifyConfig{
			Events: []string{"backtest_finished", "collector_error"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":   true,
	"collect":  true,
	"backtest": true,
	"full":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, collect, backtest, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// The server cannot mint sessions without a secret.
	if c.Server.Enabled && c.Auth.TokenSecret == "" {
		errs = append(errs, "auth: token_secret must be set when the server is enabled")
	}
	if c.Auth.TokenTTL.Duration <= 0 {
		errs = append(errs, "auth: token_ttl must be positive")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Sprintf("auth: bcrypt_cost must be 4-31, got %d", c.Auth.BcryptCost))
	}

	// An exchange key without a secret (or vice versa) is a misconfig.
	ek := c.Exchange.ApiKey != ""
	es := c.Exchange.ApiSecret != ""
	if ek != es {
		errs = append(errs, "exchange: api_key and api_secret must be set together")
	}
	if c.Exchange.BaseURL == "" {
		errs = append(errs, "exchange: base_url must not be empty")
	}

	// Risk
	if c.Risk.MaxOrdersPerMinute < 1 {
		errs = append(errs, "risk: max_orders_per_minute must be >= 1")
	}

	// Backtest
	if c.Backtest.InitialCapital <= 0 {
		errs = append(errs, "backtest: initial_capital must be > 0")
	}
	if c.Backtest.CommissionRate < 0 {
		errs = append(errs, "backtest: commission_rate must be >= 0")
	}
	if c.Backtest.MaxSweepSize < 1 {
		errs = append(errs, "backtest: max_sweep_size must be >= 1")
	}

	// One-shot backtest mode needs a fully described run.
	if strings.ToLower(c.Mode) == "backtest" {
		if c.Backtest.RunKind == "" {
			errs = append(errs, "backtest: run_kind must be set in backtest mode")
		}
		if c.Backtest.RunSymbol == "" {
			errs = append(errs, "backtest: run_symbol must be set in backtest mode")
		}
		if c.Backtest.RunTimeframe == "" {
			errs = append(errs, "backtest: run_timeframe must be set in backtest mode")
		}
		if c.Backtest.RunStart == "" || c.Backtest.RunEnd == "" {
			errs = append(errs, "backtest: run_start and run_end must be set in backtest mode")
		}
	}

	// Collector
	if c.Collector.Enabled || c.Mode == "collect" || c.Mode == "full" {
		if len(c.Collector.Symbols) == 0 && c.Collector.Enabled {
			errs = append(errs, "collector: symbols must not be empty when enabled")
		}
		if c.Collector.FetchInterval.Duration <= 0 {
			errs = append(errs, "collector: fetch_interval must be positive")
		}
		if c.Collector.FetchLimit < 1 {
			errs = append(errs, "collector: fetch_limit must be >= 1")
		}
		if c.Collector.ArchiveRetentionDays > 0 && strings.TrimSpace(c.Collector.ArchiveCron) == "" {
			errs = append(errs, "collector: archive_cron must be set when archive_retention_days > 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
