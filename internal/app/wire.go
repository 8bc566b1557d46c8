package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/sportsarb/internal/blob/s3"
	"github.com/alanyoungcy/sportsarb/internal/cache/redis"
	"github.com/alanyoungcy/sportsarb/internal/config"
	"github.com/alanyoungcy/sportsarb/internal/crypto"
	"github.com/alanyoungcy/sportsarb/internal/domain"
	"github.com/alanyoungcy/sportsarb/internal/notify"
	"github.com/alanyoungcy/sportsarb/internal/platform/kalshi"
	"github.com/alanyoungcy/sportsarb/internal/platform/oddsapi"
	"github.com/alanyoungcy/sportsarb/internal/server/ws"
	"github.com/alanyoungcy/sportsarb/internal/store/postgres"
)

// Cache lifetimes. Orderbook snapshots are only useful while fresh enough for
// the detector; odds lines move slowly and double as the fallback when the
// provider is unreachable.
const (
	bookCacheTTL = 30 * time.Second
	lineCacheTTL = 10 * time.Minute
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	Scans         domain.ScanStore
	Opportunities domain.OpportunityStore
	Attempts      domain.AttemptStore
	Audit         domain.AuditStore

	// Caches
	Books       domain.BookCache
	Lines       domain.LineCache
	RateLimiter domain.RateLimiter

	// Venue clients
	Exchange     *kalshi.Client
	ExchangeFeed *kalshi.WSClient
	Odds         *oddsapi.Client

	// Blob storage
	BlobWriter domain.BlobWriter
	Archiver   *s3blob.Archiver

	// Realtime + alerts
	Hub      *ws.Hub
	Notifier *notify.Notifier
}

// needsVenues returns true for modes that talk to the exchange and the odds
// provider.
func needsVenues(mode string) bool {
	switch mode {
	case "scan", "trade", "full":
		return true
	default:
		return false
	}
}

// needsS3 returns true for modes that require object storage.
func needsS3(mode string) bool {
	switch mode {
	case "archive", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	// Every mode touches the journal: the scanner and coordinator write it,
	// the server and archiver read it.
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Scans = postgres.NewScanStore(pool)
	deps.Opportunities = postgres.NewOpportunityStore(pool)
	deps.Attempts = postgres.NewAttemptStore(pool)
	deps.Audit = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Books = redis.NewBookCache(redisClient, bookCacheTTL)
	deps.Lines = redis.NewLineCache(redisClient, lineCacheTTL)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	// --- Venue clients ---
	if needsVenues(cfg.Mode) {
		exchange := kalshi.NewClient(cfg.Kalshi.BaseURL, cfg.Kalshi.ApiKey)
		sec := cfg.Kalshi.RSAKeySecret()
		if sec.RawValue != "" || sec.PlainPath != "" || sec.EncryptedPath != "" {
			keyBytes, err := crypto.LoadSecret(sec)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: kalshi signing key: %w", err)
			}
			if err := exchange.SetRSAPrivateKey(keyBytes); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: kalshi signing key: %w", err)
			}
		} else {
			logger.Info("no exchange signing key configured, order placement unavailable")
		}
		deps.Exchange = exchange

		if cfg.Kalshi.WsURL != "" {
			feed := kalshi.NewWSClient(cfg.Kalshi.WsURL)
			closers = append(closers, func() { _ = feed.Close() })
			deps.ExchangeFeed = feed
		}

		odds := oddsapi.NewClient(cfg.OddsAPI.BaseURL, cfg.OddsAPI.ApiKey)
		if len(cfg.OddsAPI.Bookmakers) > 0 {
			odds.SetBookmakers(cfg.OddsAPI.Bookmakers...)
		}
		deps.Odds = odds
	}

	// --- S3 blob storage (only for modes that archive) ---
	if needsS3(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			deps.Opportunities,
			deps.Attempts,
			deps.Audit,
		)
	}

	// --- Realtime hub ---
	if cfg.Server.Enabled {
		hub := ws.NewHub(logger)
		closers = append(closers, hub.Close)
		deps.Hub = hub
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if deps.Hub != nil {
		senders = append(senders, deps.Hub)
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.MinSeverity, logger)

	return deps, cleanup, nil
}

// attemptJournal adapts the attempt store to the coordinator's write-only
// journal view.
type attemptJournal struct {
	store domain.AttemptStore
}

func (j attemptJournal) RecordAttempt(ctx context.Context, a domain.ExecutionAttempt) error {
	return j.store.Insert(ctx, a)
}
