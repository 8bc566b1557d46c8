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
// built-in defaults, applies SPORTSARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known SPORTSARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Kalshi ──
	setStr(&cfg.Kalshi.ApiKey, "SPORTSARB_KALSHI_API_KEY")
	setStr(&cfg.Kalshi.RsaPrivateKey, "SPORTSARB_KALSHI_RSA_PRIVATE_KEY")
	setStr(&cfg.Kalshi.RsaPrivateKeyPath, "SPORTSARB_KALSHI_RSA_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.RsaEncryptedKeyPath, "SPORTSARB_KALSHI_RSA_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Kalshi.RsaKeyPassword, "SPORTSARB_KALSHI_RSA_KEY_PASSWORD")
	setStr(&cfg.Kalshi.BaseURL, "SPORTSARB_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.WsURL, "SPORTSARB_KALSHI_WS_URL")

	// ── Odds provider ──
	setStr(&cfg.OddsAPI.ApiKey, "SPORTSARB_ODDSAPI_API_KEY")
	setStr(&cfg.OddsAPI.BaseURL, "SPORTSARB_ODDSAPI_BASE_URL")
	setStringSlice(&cfg.OddsAPI.Bookmakers, "SPORTSARB_ODDSAPI_BOOKMAKERS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SPORTSARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SPORTSARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SPORTSARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SPORTSARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SPORTSARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SPORTSARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SPORTSARB_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SPORTSARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SPORTSARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SPORTSARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SPORTSARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SPORTSARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SPORTSARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SPORTSARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SPORTSARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SPORTSARB_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "SPORTSARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SPORTSARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "SPORTSARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SPORTSARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SPORTSARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SPORTSARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SPORTSARB_S3_FORCE_PATH_STYLE")

	// ── Scanner ──
	setDuration(&cfg.Scanner.Interval, "SPORTSARB_SCANNER_INTERVAL")
	setStringSlice(&cfg.Scanner.SportKeys, "SPORTSARB_SCANNER_SPORT_KEYS")
	setStringSlice(&cfg.Scanner.Series, "SPORTSARB_SCANNER_SERIES")
	setStringSlice(&cfg.Scanner.Regions, "SPORTSARB_SCANNER_REGIONS")
	setInt(&cfg.Scanner.BookConcurrency, "SPORTSARB_SCANNER_BOOK_CONCURRENCY")
	setInt(&cfg.Scanner.ExchangeRateLimit, "SPORTSARB_SCANNER_EXCHANGE_RATE_LIMIT")
	setInt(&cfg.Scanner.OddsRateLimit, "SPORTSARB_SCANNER_ODDS_RATE_LIMIT")

	// ── Detector ──
	setFloat64(&cfg.Detector.MinEdge, "SPORTSARB_DETECTOR_MIN_EDGE")
	setDuration(&cfg.Detector.Staleness, "SPORTSARB_DETECTOR_STALENESS")
	setInt(&cfg.Detector.MaxContracts, "SPORTSARB_DETECTOR_MAX_CONTRACTS")
	setFloat64(&cfg.Detector.MaxStakeUSD, "SPORTSARB_DETECTOR_MAX_STAKE_USD")
	setBool(&cfg.Detector.CrossBook, "SPORTSARB_DETECTOR_CROSS_BOOK")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxBetUSD, "SPORTSARB_RISK_MAX_BET_USD")
	setFloat64(&cfg.Risk.MaxDailyVolumeUSD, "SPORTSARB_RISK_MAX_DAILY_VOLUME_USD")
	setFloat64(&cfg.Risk.MaxGlobalOpenUSD, "SPORTSARB_RISK_MAX_GLOBAL_OPEN_USD")
	setFloat64(&cfg.Risk.MaxDailyLossUSD, "SPORTSARB_RISK_MAX_DAILY_LOSS_USD")
	setFloat64(&cfg.Risk.MaxDrawdownUSD, "SPORTSARB_RISK_MAX_DRAWDOWN_USD")
	setFloat64(&cfg.Risk.BankrollUSD, "SPORTSARB_RISK_BANKROLL_USD")
	setFloat64(&cfg.Risk.ReserveUSD, "SPORTSARB_RISK_RESERVE_USD")

	// ── Executor ──
	setBool(&cfg.Executor.DryRun, "SPORTSARB_EXECUTOR_DRY_RUN")
	setFloat64(&cfg.Executor.DryRunFillProb, "SPORTSARB_EXECUTOR_DRY_RUN_FILL_PROB")

	// ── Archive ──
	setInt(&cfg.Archive.RetentionDays, "SPORTSARB_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "SPORTSARB_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SPORTSARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SPORTSARB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SPORTSARB_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SPORTSARB_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "SPORTSARB_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SPORTSARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SPORTSARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SPORTSARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.MinSeverity, "SPORTSARB_NOTIFY_MIN_SEVERITY")

	// ── Top-level ──
	setStr(&cfg.Mode, "SPORTSARB_MODE")
	setStr(&cfg.LogLevel, "SPORTSARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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
