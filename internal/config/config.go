// Package config defines the top-level configuration for the arbitrage
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SPORTSARB_* environment variables.
type Config struct {
	Kalshi   KalshiConfig   `toml:"kalshi"`
	OddsAPI  OddsAPIConfig  `toml:"oddsapi"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Scanner  ScannerConfig  `toml:"scanner"`
	Matcher  MatcherConfig  `toml:"matcher"`
	Detector DetectorConfig `toml:"detector"`
	Risk     RiskConfig     `toml:"risk"`
	Executor ExecutorConfig `toml:"executor"`
	Fees     FeesConfig     `toml:"fees"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// KalshiConfig holds exchange API credentials. The RSA signing key can come
// from a plaintext PEM file, an encrypted key file plus password, or directly
// from the environment.
type KalshiConfig struct {
	ApiKey              string `toml:"api_key"`
	RsaPrivateKey       string `toml:"rsa_private_key"`
	RsaPrivateKeyPath   string `toml:"rsa_private_key_path"`
	RsaEncryptedKeyPath string `toml:"rsa_encrypted_key_path"`
	RsaKeyPassword      string `toml:"rsa_key_password"`
	BaseURL             string `toml:"base_url"`
	WsURL               string `toml:"ws_url"`
}

// OddsAPIConfig holds the odds provider's API parameters. Bookmakers narrows
// line fetches to specific books; empty means every book in the regions.
type OddsAPIConfig struct {
	ApiKey     string   `toml:"api_key"`
	BaseURL    string   `toml:"base_url"`
	Bookmakers []string `toml:"bookmakers"`
}

// PostgresConfig holds PostgreSQL connection parameters. DSN takes precedence
// over the discrete fields when set.
type PostgresConfig struct {
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
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ScannerConfig holds scan-loop pacing and venue rate-limit parameters.
type ScannerConfig struct {
	Interval           duration `toml:"interval"`
	SportKeys          []string `toml:"sport_keys"`
	Series             []string `toml:"series"`
	Regions            []string `toml:"regions"`
	Retries            int      `toml:"retries"`
	RetryBackoff       duration `toml:"retry_backoff"`
	BookConcurrency    int      `toml:"book_concurrency"`
	ExchangeRateLimit  int      `toml:"exchange_rate_limit"`
	ExchangeRateWindow duration `toml:"exchange_rate_window"`
	OddsRateLimit      int      `toml:"odds_rate_limit"`
	OddsRateWindow     duration `toml:"odds_rate_window"`
}

// MatcherConfig holds event-pairing parameters.
type MatcherConfig struct {
	Threshold     float64           `toml:"threshold"`
	TimeTolerance duration          `toml:"time_tolerance"`
	SeriesSports  map[string]string `toml:"series_sports"`
}

// DetectorConfig holds opportunity-detection thresholds.
type DetectorConfig struct {
	MinEdge        float64  `toml:"min_edge"`
	Staleness      duration `toml:"staleness"`
	LineMaxAge     duration `toml:"line_max_age"`
	NoiseThreshold float64  `toml:"noise_threshold"`
	DedupTTL       duration `toml:"dedup_ttl"`
	MaxContracts   int      `toml:"max_contracts"`
	MaxStakeUSD    float64  `toml:"max_stake_usd"`
	CrossBook      bool     `toml:"cross_book"`
}

// RiskConfig holds the capital protection limits. Zero values take the risk
// manager's documented defaults; negative values disable a check.
type RiskConfig struct {
	MaxBetUSD          float64            `toml:"max_bet_usd"`
	PerVenueBetUSD     map[string]float64 `toml:"per_venue_bet_usd"`
	MaxDailyVolumeUSD  float64            `toml:"max_daily_volume_usd"`
	MaxGlobalOpenUSD   float64            `toml:"max_global_open_usd"`
	MinFillUSD         float64            `toml:"min_fill_usd"`
	MaxDailyLossUSD    float64            `toml:"max_daily_loss_usd"`
	MaxDrawdownUSD     float64            `toml:"max_drawdown_usd"`
	ThrottleRejections int                `toml:"throttle_rejections"`
	ThrottleWindow     duration           `toml:"throttle_window"`
	BankrollUSD        float64            `toml:"bankroll_usd"`
	ReserveUSD         float64            `toml:"reserve_usd"`
	ReserveStepUSD     float64            `toml:"reserve_step_usd"`
	ReserveMinSettled  int                `toml:"reserve_min_settled"`
}

// ExecutorConfig holds two-leg execution timing parameters.
type ExecutorConfig struct {
	Leg1Wait       duration `toml:"leg1_wait"`
	Leg2Wait       duration `toml:"leg2_wait"`
	PollInterval   duration `toml:"poll_interval"`
	Staleness      duration `toml:"staleness"`
	Cooldown       duration `toml:"cooldown"`
	DryRun         bool     `toml:"dry_run"`
	DryRunFillProb float64  `toml:"dry_run_fill_prob"`
}

// FeesConfig holds per-venue fee parameters for edge computation.
type FeesConfig struct {
	ExchangeFactor float64            `toml:"exchange_factor"`
	PerBookBps     map[string]float64 `toml:"per_book_bps"`
	DefaultBookBps float64            `toml:"default_book_bps"`
}

// ArchiveConfig holds cold-storage retention parameters.
type ArchiveConfig struct {
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// ServerConfig holds HTTP API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
	MinSeverity       string `toml:"min_severity"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
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
		Kalshi: KalshiConfig{
			BaseURL: "https://api.elections.kalshi.com/trade-api/v2",
			WsURL:   "wss://api.elections.kalshi.com/trade-api/ws/v2",
		},
		OddsAPI: OddsAPIConfig{
			BaseURL:    "https://api.the-odds-api.com/v4",
			Bookmakers: []string{"fanduel", "draftkings", "betmgm"},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "sportsarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "sportsarb-archive",
			ForcePathStyle: true,
		},
		Scanner: ScannerConfig{
			Interval:           duration{2 * time.Second},
			SportKeys:          []string{"basketball_nba"},
			Series:             []string{"KXNBAGAME"},
			Regions:            []string{"us"},
			Retries:            2,
			RetryBackoff:       duration{200 * time.Millisecond},
			BookConcurrency:    8,
			ExchangeRateLimit:  10,
			ExchangeRateWindow: duration{time.Second},
			OddsRateLimit:      30,
			OddsRateWindow:     duration{time.Minute},
		},
		Matcher: MatcherConfig{
			Threshold:     0.85,
			TimeTolerance: duration{2 * time.Hour},
		},
		Detector: DetectorConfig{
			MinEdge:        0.05,
			Staleness:      duration{2 * time.Second},
			LineMaxAge:     duration{time.Hour},
			NoiseThreshold: 0.005,
			DedupTTL:       duration{5 * time.Minute},
			MaxContracts:   100,
			MaxStakeUSD:    50,
			CrossBook:      false,
		},
		Risk: RiskConfig{
			MaxBetUSD:          50,
			MaxDailyVolumeUSD:  500,
			MaxGlobalOpenUSD:   1000,
			MinFillUSD:         1,
			MaxDailyLossUSD:    100,
			MaxDrawdownUSD:     200,
			ThrottleRejections: 3,
			ThrottleWindow:     duration{10 * time.Minute},
			BankrollUSD:        200,
			ReserveUSD:         740,
			ReserveStepUSD:     100,
			ReserveMinSettled:  10,
		},
		Executor: ExecutorConfig{
			Leg1Wait:       duration{3 * time.Second},
			Leg2Wait:       duration{10 * time.Second},
			PollInterval:   duration{250 * time.Millisecond},
			Staleness:      duration{2 * time.Second},
			Cooldown:       duration{5 * time.Minute},
			DryRun:         true,
			DryRunFillProb: 1.0,
		},
		Fees: FeesConfig{
			ExchangeFactor: 0.07,
			PerBookBps:     map[string]float64{},
			DefaultBookBps: 0,
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   0,
			RateWindow:  duration{time.Second},
		},
		Notify: NotifyConfig{
			MinSeverity: "warning",
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":    true,
	"trade":   true,
	"archive": true,
	"server":  true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)

	// Mode
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, trade, archive, server, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Kalshi: credentials are required whenever the engine talks to the
	// exchange. Dry-run trading still reads instruments and orderbooks.
	needsVenues := mode == "scan" || mode == "trade" || mode == "full"
	if needsVenues {
		if c.Kalshi.ApiKey == "" {
			errs = append(errs, "kalshi: api_key is required for mode "+mode)
		}
		if c.Kalshi.BaseURL == "" {
			errs = append(errs, "kalshi: base_url must not be empty")
		}
	}
	if mode == "trade" || mode == "full" {
		if !c.Executor.DryRun {
			if c.Kalshi.RsaPrivateKey == "" && c.Kalshi.RsaPrivateKeyPath == "" && c.Kalshi.RsaEncryptedKeyPath == "" {
				errs = append(errs, "kalshi: an RSA private key source is required for live trading")
			}
			if c.Kalshi.RsaEncryptedKeyPath != "" && c.Kalshi.RsaKeyPassword == "" {
				errs = append(errs, "kalshi: rsa_key_password is required when rsa_encrypted_key_path is set")
			}
		}
	}

	// Odds provider
	if needsVenues {
		if c.OddsAPI.ApiKey == "" {
			errs = append(errs, "oddsapi: api_key is required for mode "+mode)
		}
		if c.OddsAPI.BaseURL == "" {
			errs = append(errs, "oddsapi: base_url must not be empty")
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3: only the archiver touches object storage.
	if mode == "archive" || mode == "full" {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty for mode "+mode)
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Matcher
	if c.Matcher.Threshold < 0 || c.Matcher.Threshold > 1 {
		errs = append(errs, fmt.Sprintf("matcher: threshold must be in [0, 1], got %g", c.Matcher.Threshold))
	}

	// Detector
	if c.Detector.MinEdge <= 0 || c.Detector.MinEdge >= 1 {
		errs = append(errs, fmt.Sprintf("detector: min_edge must be in (0, 1), got %g", c.Detector.MinEdge))
	}
	if c.Detector.MaxStakeUSD <= 0 {
		errs = append(errs, "detector: max_stake_usd must be > 0")
	}

	// Executor
	if c.Executor.DryRunFillProb < 0 || c.Executor.DryRunFillProb > 1 {
		errs = append(errs, fmt.Sprintf("executor: dry_run_fill_prob must be in [0, 1], got %g", c.Executor.DryRunFillProb))
	}

	// Fees
	if c.Fees.ExchangeFactor < 0 || c.Fees.ExchangeFactor >= 1 {
		errs = append(errs, fmt.Sprintf("fees: exchange_factor must be in [0, 1), got %g", c.Fees.ExchangeFactor))
	}
	for book, bps := range c.Fees.PerBookBps {
		if bps < 0 || bps >= 10_000 {
			errs = append(errs, fmt.Sprintf("fees: per_book_bps[%s] must be in [0, 10000), got %g", book, bps))
		}
	}

	// Risk: zero means default and negative disables, so only reserve
	// consistency needs checking here.
	if c.Risk.ReserveUSD > 0 && c.Risk.ReserveStepUSD < 0 {
		errs = append(errs, "risk: reserve_step_usd must not be negative when reserve_usd is set")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	// Notify: token and chat ID travel together.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
