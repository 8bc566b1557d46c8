package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validConfig returns defaults plus the credentials Validate requires.
func validConfig() Config {
	cfg := Defaults()
	cfg.Kalshi.ApiKey = "key-id"
	cfg.OddsAPI.ApiKey = "odds-key"
	return cfg
}

func TestValidateAcceptsDefaultsWithCredentials(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateRequiresVenueCredentials(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error for missing venue credentials")
	}
	if !strings.Contains(err.Error(), "kalshi: api_key") {
		t.Errorf("error missing kalshi api_key complaint: %v", err)
	}
	if !strings.Contains(err.Error(), "oddsapi: api_key") {
		t.Errorf("error missing oddsapi api_key complaint: %v", err)
	}
}

func TestValidateCombinesErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "yolo"
	cfg.LogLevel = "loud"
	cfg.Server.Port = 99999
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want combined error")
	}
	for _, want := range []string{"unknown mode", "unknown log_level", "server: port"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestValidateLiveTradeNeedsSigningKey(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "trade"
	cfg.Executor.DryRun = false
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "RSA private key") {
		t.Fatalf("Validate() = %v, want RSA key error", err)
	}

	cfg.Kalshi.RsaPrivateKeyPath = "/secrets/kalshi.pem"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() with key path = %v, want nil", err)
	}
}

func TestValidateTelegramFieldsTravelTogether(t *testing.T) {
	cfg := validConfig()
	cfg.Notify.TelegramToken = "tok"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "telegram") {
		t.Fatalf("Validate() = %v, want telegram pairing error", err)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "trade"

[kalshi]
api_key = "k-123"

[scanner]
interval = "5s"
series = ["KXNBAGAME", "KXNHLGAME"]

[risk]
bankroll_usd = 350.0
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Mode != "trade" {
		t.Errorf("Mode = %q, want trade", cfg.Mode)
	}
	if cfg.Kalshi.ApiKey != "k-123" {
		t.Errorf("Kalshi.ApiKey = %q, want k-123", cfg.Kalshi.ApiKey)
	}
	if got := cfg.Scanner.Interval.Duration; got != 5*time.Second {
		t.Errorf("Scanner.Interval = %v, want 5s", got)
	}
	if len(cfg.Scanner.Series) != 2 || cfg.Scanner.Series[1] != "KXNHLGAME" {
		t.Errorf("Scanner.Series = %v", cfg.Scanner.Series)
	}
	if cfg.Risk.BankrollUSD != 350 {
		t.Errorf("Risk.BankrollUSD = %g, want 350", cfg.Risk.BankrollUSD)
	}
	// Untouched sections keep their defaults.
	if cfg.Postgres.Port != 5432 {
		t.Errorf("Postgres.Port = %d, want default 5432", cfg.Postgres.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SPORTSARB_KALSHI_API_KEY", "env-key")
	t.Setenv("SPORTSARB_SCANNER_INTERVAL", "750ms")
	t.Setenv("SPORTSARB_ODDSAPI_BOOKMAKERS", "fanduel, draftkings")
	t.Setenv("SPORTSARB_EXECUTOR_DRY_RUN", "false")
	t.Setenv("SPORTSARB_RISK_BANKROLL_USD", "125.5")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Kalshi.ApiKey != "env-key" {
		t.Errorf("Kalshi.ApiKey = %q", cfg.Kalshi.ApiKey)
	}
	if cfg.Scanner.Interval.Duration != 750*time.Millisecond {
		t.Errorf("Scanner.Interval = %v", cfg.Scanner.Interval.Duration)
	}
	want := []string{"fanduel", "draftkings"}
	if len(cfg.OddsAPI.Bookmakers) != len(want) {
		t.Fatalf("Bookmakers = %v, want %v", cfg.OddsAPI.Bookmakers, want)
	}
	for i := range want {
		if cfg.OddsAPI.Bookmakers[i] != want[i] {
			t.Errorf("Bookmakers[%d] = %q, want %q", i, cfg.OddsAPI.Bookmakers[i], want[i])
		}
	}
	if cfg.Executor.DryRun {
		t.Error("Executor.DryRun = true, want false")
	}
	if cfg.Risk.BankrollUSD != 125.5 {
		t.Errorf("Risk.BankrollUSD = %g", cfg.Risk.BankrollUSD)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "hunter2"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Notify.TelegramToken = "tok"
	cfg.Notify.TelegramChatID = "42"

	red := RedactedConfig(&cfg)

	for name, got := range map[string]string{
		"kalshi api key":    red.Kalshi.ApiKey,
		"odds api key":      red.OddsAPI.ApiKey,
		"postgres password": red.Postgres.Password,
		"s3 secret":         red.S3.SecretKey,
		"telegram token":    red.Notify.TelegramToken,
	} {
		if got != redacted {
			t.Errorf("%s = %q, want %q", name, got, redacted)
		}
	}
	if cfg.Postgres.Password != "hunter2" {
		t.Error("original config mutated by redaction")
	}
	// Chat ID is routing, not a secret.
	if red.Notify.TelegramChatID != "42" {
		t.Errorf("TelegramChatID = %q, want 42", red.Notify.TelegramChatID)
	}
}

func TestRSAKeySecret(t *testing.T) {
	k := KalshiConfig{
		RsaEncryptedKeyPath: "/secrets/kalshi.enc.json",
		RsaKeyPassword:      "pw",
	}
	sec := k.RSAKeySecret()
	if sec.EncryptedPath != k.RsaEncryptedKeyPath || sec.Password != "pw" {
		t.Errorf("RSAKeySecret() = %+v", sec)
	}
	if sec.RawValue != "" || sec.PlainPath != "" {
		t.Errorf("unexpected secret sources set: %+v", sec)
	}
}
