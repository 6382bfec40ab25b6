package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies QUANTFLOW_* environment variable
// overrides, and returns the final Config. The returned Config has NOT
// been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known QUANTFLOW_* environment variables
// and overwrites the corresponding Config fields when a variable is set.
// This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setBool(&cfg.Server.Enabled, "QUANTFLOW_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "QUANTFLOW_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "QUANTFLOW_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimitPerMinute, "QUANTFLOW_SERVER_RATE_LIMIT_PER_MINUTE")

	// ── Database ──
	setStr(&cfg.Database.DSN, "QUANTFLOW_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "QUANTFLOW_DATABASE_HOST")
	setInt(&cfg.Database.Port, "QUANTFLOW_DATABASE_PORT")
	setStr(&cfg.Database.Database, "QUANTFLOW_DATABASE_NAME")
	setStr(&cfg.Database.User, "QUANTFLOW_DATABASE_USER")
	setStr(&cfg.Database.Password, "QUANTFLOW_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "QUANTFLOW_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "QUANTFLOW_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "QUANTFLOW_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "QUANTFLOW_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "QUANTFLOW_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "QUANTFLOW_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "QUANTFLOW_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "QUANTFLOW_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "QUANTFLOW_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "QUANTFLOW_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "QUANTFLOW_S3_REGION")
	setStr(&cfg.S3.Bucket, "QUANTFLOW_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "QUANTFLOW_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "QUANTFLOW_S3_SECRET_KEY")

	// ── Auth ──
	setStr(&cfg.Auth.TokenSecret, "QUANTFLOW_AUTH_TOKEN_SECRET")
	setDuration(&cfg.Auth.TokenTTL, "QUANTFLOW_AUTH_TOKEN_TTL")
	setInt(&cfg.Auth.BcryptCost, "QUANTFLOW_AUTH_BCRYPT_COST")

	// ── Exchange ──
	setStr(&cfg.Exchange.Name, "QUANTFLOW_EXCHANGE_NAME")
	setStr(&cfg.Exchange.BaseURL, "QUANTFLOW_EXCHANGE_BASE_URL")
	setStr(&cfg.Exchange.WsURL, "QUANTFLOW_EXCHANGE_WS_URL")
	setStr(&cfg.Exchange.ApiKey, "QUANTFLOW_EXCHANGE_API_KEY")
	setStr(&cfg.Exchange.ApiSecret, "QUANTFLOW_EXCHANGE_API_SECRET")
	setBool(&cfg.Exchange.Testnet, "QUANTFLOW_EXCHANGE_TESTNET")

	// ── Stocks ──
	setStr(&cfg.Stocks.BaseURL, "QUANTFLOW_STOCKS_BASE_URL")

	// ── AI ──
	setStr(&cfg.AI.ApiKey, "QUANTFLOW_AI_API_KEY")
	setStr(&cfg.AI.ApiKey, "OPENAI_API_KEY") // compatibility alias
	setStr(&cfg.AI.BaseURL, "QUANTFLOW_AI_BASE_URL")
	setStr(&cfg.AI.Model, "QUANTFLOW_AI_MODEL")
	setFloat64(&cfg.AI.Temperature, "QUANTFLOW_AI_TEMPERATURE")
	setInt(&cfg.AI.MaxTokens, "QUANTFLOW_AI_MAX_TOKENS")

	// ── Risk ──
	setInt(&cfg.Risk.MaxOrdersPerMinute, "QUANTFLOW_RISK_MAX_ORDERS_PER_MINUTE")
	setFloat64(&cfg.Risk.MaxPositionSize, "QUANTFLOW_RISK_MAX_POSITION_SIZE")

	// ── Backtest ──
	setFloat64(&cfg.Backtest.InitialCapital, "QUANTFLOW_BACKTEST_INITIAL_CAPITAL")
	setFloat64(&cfg.Backtest.CommissionRate, "QUANTFLOW_BACKTEST_COMMISSION_RATE")
	setInt(&cfg.Backtest.MaxSweepSize, "QUANTFLOW_BACKTEST_MAX_SWEEP_SIZE")

	// ── Collector ──
	setBool(&cfg.Collector.Enabled, "QUANTFLOW_COLLECTOR_ENABLED")
	setStr(&cfg.Collector.Exchange, "QUANTFLOW_COLLECTOR_EXCHANGE")
	setStringSlice(&cfg.Collector.Symbols, "QUANTFLOW_COLLECTOR_SYMBOLS")
	setStr(&cfg.Collector.Timeframe, "QUANTFLOW_COLLECTOR_TIMEFRAME")
	setDuration(&cfg.Collector.FetchInterval, "QUANTFLOW_COLLECTOR_FETCH_INTERVAL")
	setInt(&cfg.Collector.FetchLimit, "QUANTFLOW_COLLECTOR_FETCH_LIMIT")
	setInt(&cfg.Collector.ArchiveRetentionDays, "QUANTFLOW_COLLECTOR_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Collector.ArchiveCron, "QUANTFLOW_COLLECTOR_ARCHIVE_CRON")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "QUANTFLOW_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "QUANTFLOW_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "QUANTFLOW_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "QUANTFLOW_NOTIFY_EVENTS")

	// ── Top level ──
	setStr(&cfg.Mode, "QUANTFLOW_MODE")
	setStr(&cfg.LogLevel, "QUANTFLOW_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
