package config

import "github.com/alanyoungcy/sportsarb/internal/crypto"

// RSAKeySecret maps the Kalshi key fields onto a crypto.SecretConfig so the
// signing key can be resolved from whichever source the operator configured.
func (k KalshiConfig) RSAKeySecret() crypto.SecretConfig {
	return crypto.SecretConfig{
		RawValue:      k.RsaPrivateKey,
		PlainPath:     k.RsaPrivateKeyPath,
		EncryptedPath: k.RsaEncryptedKeyPath,
		Password:      k.RsaKeyPassword,
	}
}

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Kalshi
	out.Kalshi = cfg.Kalshi
	redact(&out.Kalshi.ApiKey)
	redact(&out.Kalshi.RsaPrivateKey)
	redact(&out.Kalshi.RsaKeyPassword)

	// Odds provider
	out.OddsAPI = cfg.OddsAPI
	redact(&out.OddsAPI.ApiKey)

	// Postgres
	out.Postgres = cfg.Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// S3
	out.S3 = cfg.S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Server
	out.Server = cfg.Server
	redact(&out.Server.APIKey)

	// Notify
	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.OddsAPI.Bookmakers != nil {
		out.OddsAPI.Bookmakers = make([]string, len(cfg.OddsAPI.Bookmakers))
		copy(out.OddsAPI.Bookmakers, cfg.OddsAPI.Bookmakers)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = make([]string, len(cfg.Server.CORSOrigins))
		copy(out.Server.CORSOrigins, cfg.Server.CORSOrigins)
	}
	if cfg.Scanner.SportKeys != nil {
		out.Scanner.SportKeys = make([]string, len(cfg.Scanner.SportKeys))
		copy(out.Scanner.SportKeys, cfg.Scanner.SportKeys)
	}
	if cfg.Scanner.Series != nil {
		out.Scanner.Series = make([]string, len(cfg.Scanner.Series))
		copy(out.Scanner.Series, cfg.Scanner.Series)
	}
	if cfg.Scanner.Regions != nil {
		out.Scanner.Regions = make([]string, len(cfg.Scanner.Regions))
		copy(out.Scanner.Regions, cfg.Scanner.Regions)
	}

	// Copy maps so mutations to the redacted copy do not affect the original.
	if cfg.Risk.PerVenueBetUSD != nil {
		out.Risk.PerVenueBetUSD = make(map[string]float64, len(cfg.Risk.PerVenueBetUSD))
		for k, v := range cfg.Risk.PerVenueBetUSD {
			out.Risk.PerVenueBetUSD[k] = v
		}
	}
	if cfg.Fees.PerBookBps != nil {
		out.Fees.PerBookBps = make(map[string]float64, len(cfg.Fees.PerBookBps))
		for k, v := range cfg.Fees.PerBookBps {
			out.Fees.PerBookBps[k] = v
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
