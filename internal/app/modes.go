package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/sportsarb/internal/detector"
	"github.com/alanyoungcy/sportsarb/internal/domain"
	"github.com/alanyoungcy/sportsarb/internal/executor"
	"github.com/alanyoungcy/sportsarb/internal/matcher"
	"github.com/alanyoungcy/sportsarb/internal/odds"
	"github.com/alanyoungcy/sportsarb/internal/risk"
	"github.com/alanyoungcy/sportsarb/internal/scanner"
	"github.com/alanyoungcy/sportsarb/internal/server"
	"github.com/alanyoungcy/sportsarb/internal/server/handler"
)

// exposureBroadcastInterval paces the dashboard exposure push.
const exposureBroadcastInterval = 5 * time.Second

// reserveReleaseInterval paces the bankroll reserve check. Releases are gated
// on settled-bet count and cumulative P&L, so polling hourly is plenty.
const reserveReleaseInterval = time.Hour

// ScanMode runs detection only: the scanner journals every opportunity but
// nothing is executed. Useful for calibrating thresholds against live venues.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	g, ctx := errgroup.WithContext(ctx)

	oppCh := make(chan domain.Opportunity, 32)
	sc := a.buildScanner(deps, oppCh, nil)
	g.Go(func() error {
		return sc.Run(ctx)
	})

	// Drain and surface what would have been traded.
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case opp, ok := <-oppCh:
				if !ok {
					return nil
				}
				a.logger.InfoContext(ctx, "opportunity detected (scan only)",
					slog.String("id", opp.ID),
					slog.String("pair", opp.Pair.Key()),
					slog.Float64("net_edge", opp.NetEdge),
				)
				if deps.Hub != nil {
					deps.Hub.Broadcast("opportunity", opp)
				}
			}
		}
	})

	if a.cfg.Server.Enabled {
		riskMgr := a.newRiskManager(ctx, deps)
		a.startHTTPServer(ctx, g, deps, riskMgr)
	}

	return g.Wait()
}

// TradeMode runs the full engine: scanner, risk manager, and the two-leg
// execution coordinator.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.Bool("dry_run", a.cfg.Executor.DryRun),
	)

	g, ctx := errgroup.WithContext(ctx)

	riskMgr := a.newRiskManager(ctx, deps)
	a.startTrading(ctx, g, deps, riskMgr)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, riskMgr)
	}

	return g.Wait()
}

// ArchiveMode periodically moves journal rows past the retention window to
// object storage and prunes scan records.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode",
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)

	g, ctx := errgroup.WithContext(ctx)

	if err := a.startArchiveLoop(ctx, g, deps); err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}

	return g.Wait()
}

// ServerMode serves the REST and WebSocket API over the journal without
// touching any venue.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	riskMgr := a.newRiskManager(ctx, deps)
	a.startHTTPServer(ctx, g, deps, riskMgr)

	return g.Wait()
}

// FullMode starts all subsystems: trading, archival, and the HTTP server.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode",
		slog.Bool("dry_run", a.cfg.Executor.DryRun),
	)

	g, ctx := errgroup.WithContext(ctx)

	riskMgr := a.newRiskManager(ctx, deps)
	a.startTrading(ctx, g, deps, riskMgr)

	if err := a.startArchiveLoop(ctx, g, deps); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, riskMgr)
	}

	return g.Wait()
}

// startTrading adds the scanner, coordinator, exchange feed, and the periodic
// risk housekeeping goroutines to the group.
func (a *App) startTrading(ctx context.Context, g *errgroup.Group, deps *Dependencies, riskMgr *risk.Manager) {
	oppCh := make(chan domain.Opportunity, 32)

	sc := a.buildScanner(deps, oppCh, riskMgr)
	g.Go(func() error {
		return sc.Run(ctx)
	})

	// Odds venues expose no placement API, so the book map stays empty: in
	// dry-run the coordinator simulates both legs, and live book legs are
	// rejected and alerted for manual placement.
	coord := executor.NewCoordinator(
		oppCh,
		deps.Exchange,
		map[domain.VenueID]domain.BetPlacer{},
		riskMgr,
		riskMgr,
		attemptJournal{store: deps.Attempts},
		deps.Notifier,
		executor.Config{
			Leg1Wait:       a.cfg.Executor.Leg1Wait.Duration,
			Leg2Wait:       a.cfg.Executor.Leg2Wait.Duration,
			PollInterval:   a.cfg.Executor.PollInterval.Duration,
			Staleness:      a.cfg.Executor.Staleness.Duration,
			Cooldown:       a.cfg.Executor.Cooldown.Duration,
			DryRun:         a.cfg.Executor.DryRun,
			DryRunFillProb: a.cfg.Executor.DryRunFillProb,
		},
		a.logger,
	)
	g.Go(func() error {
		return coord.Run(ctx)
	})

	// Exchange market-data feed: orderbook snapshots land in the book cache
	// so scan cycles skip the REST fetch for subscribed instruments.
	if deps.ExchangeFeed != nil {
		feed := deps.ExchangeFeed
		feed.OnSnapshot(func(snap domain.OrderbookSnapshot) {
			if err := deps.Books.PutSnapshot(ctx, snap); err != nil {
				a.logger.WarnContext(ctx, "feed: cache snapshot failed",
					slog.String("ticker", snap.Ticker),
					slog.String("error", err.Error()),
				)
			}
		})
		g.Go(func() error {
			if err := feed.Connect(ctx); err != nil {
				a.logger.WarnContext(ctx, "feed: connect failed, scanning over REST only",
					slog.String("error", err.Error()),
				)
				return nil
			}
			tickers := a.watchTickers(ctx, deps, 100)
			if len(tickers) > 0 {
				if err := feed.Subscribe(ctx, tickers); err != nil {
					a.logger.WarnContext(ctx, "feed: subscribe failed",
						slog.String("error", err.Error()),
					)
				}
			}
			<-ctx.Done()
			return nil
		})
	}

	// Exposure push for dashboard clients.
	if deps.Hub != nil {
		hub := deps.Hub
		g.Go(func() error {
			ticker := time.NewTicker(exposureBroadcastInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					if hub.ClientCount() > 0 {
						hub.Broadcast("exposure", riskMgr.Snapshot())
					}
				}
			}
		})
	}

	// Reserve release: move bankroll reserve into working capital once the
	// track record justifies it.
	g.Go(func() error {
		ticker := time.NewTicker(reserveReleaseInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if _, err := riskMgr.ReleaseReserve(); err != nil {
					a.logger.DebugContext(ctx, "reserve still locked",
						slog.String("reason", err.Error()),
					)
				}
			}
		}
	})
}

// buildScanner assembles the matcher, detector, arena, and scanner from
// configuration. A non-nil selector rotates the book leg across venues with
// equivalent lines.
func (a *App) buildScanner(deps *Dependencies, oppCh chan<- domain.Opportunity, selector detector.VenueSelector) *scanner.Scanner {
	match := matcher.New(matcher.Config{
		Threshold:     a.cfg.Matcher.Threshold,
		TimeTolerance: a.cfg.Matcher.TimeTolerance.Duration,
		SeriesSports:  a.cfg.Matcher.SeriesSports,
	}, a.logger)

	fees := odds.NewTable(a.cfg.Fees.ExchangeFactor, a.cfg.Fees.PerBookBps, a.cfg.Fees.DefaultBookBps)

	det := detector.New(detector.Config{
		MinEdge:        a.cfg.Detector.MinEdge,
		Staleness:      a.cfg.Detector.Staleness.Duration,
		LineMaxAge:     a.cfg.Detector.LineMaxAge.Duration,
		NoiseThreshold: a.cfg.Detector.NoiseThreshold,
		MaxContracts:   a.cfg.Detector.MaxContracts,
		MaxStakeUSD:    a.cfg.Detector.MaxStakeUSD,
		CrossBook:      a.cfg.Detector.CrossBook,
	}, fees, a.logger)
	if selector != nil {
		det.SetSelector(selector)
	}

	arena := detector.NewArena(a.cfg.Detector.Staleness.Duration, a.cfg.Detector.NoiseThreshold, a.cfg.Detector.DedupTTL.Duration)

	return scanner.New(
		deps.Exchange,
		deps.Odds,
		deps.Books,
		deps.Lines,
		deps.RateLimiter,
		match,
		det,
		arena,
		deps.Scans,
		deps.Opportunities,
		oppCh,
		scanner.Config{
			Interval:           a.cfg.Scanner.Interval.Duration,
			SportKeys:          a.cfg.Scanner.SportKeys,
			Series:             a.cfg.Scanner.Series,
			Regions:            a.cfg.Scanner.Regions,
			Retries:            a.cfg.Scanner.Retries,
			RetryBackoff:       a.cfg.Scanner.RetryBackoff.Duration,
			BookConcurrency:    a.cfg.Scanner.BookConcurrency,
			BookFreshness:      a.cfg.Detector.Staleness.Duration,
			ExchangeRateLimit:  a.cfg.Scanner.ExchangeRateLimit,
			ExchangeRateWindow: a.cfg.Scanner.ExchangeRateWindow.Duration,
			OddsRateLimit:      a.cfg.Scanner.OddsRateLimit,
			OddsRateWindow:     a.cfg.Scanner.OddsRateWindow.Duration,
		},
		a.logger,
	)
}

// newRiskManager builds the risk manager and seeds its P&L state from the
// attempt journal so a restart inherits today's losses and the lifetime
// high-water mark.
func (a *App) newRiskManager(ctx context.Context, deps *Dependencies) *risk.Manager {
	mgr := risk.NewManager(risk.Limits{
		MaxBetUSD:          a.cfg.Risk.MaxBetUSD,
		PerVenueBetUSD:     a.cfg.Risk.PerVenueBetUSD,
		MaxDailyVolumeUSD:  a.cfg.Risk.MaxDailyVolumeUSD,
		MaxGlobalOpenUSD:   a.cfg.Risk.MaxGlobalOpenUSD,
		MinFillUSD:         a.cfg.Risk.MinFillUSD,
		MaxDailyLossUSD:    a.cfg.Risk.MaxDailyLossUSD,
		MaxDrawdownUSD:     a.cfg.Risk.MaxDrawdownUSD,
		ThrottleRejections: a.cfg.Risk.ThrottleRejections,
		ThrottleWindow:     a.cfg.Risk.ThrottleWindow.Duration,
		BankrollUSD:        a.cfg.Risk.BankrollUSD,
		ReserveUSD:         a.cfg.Risk.ReserveUSD,
		ReserveStepUSD:     a.cfg.Risk.ReserveStepUSD,
		ReserveMinSettled:  a.cfg.Risk.ReserveMinSettled,
	}, nil, a.logger)
	if deps.Notifier != nil {
		mgr.SetAlerter(deps.Notifier)
	}

	now := time.Now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	daily, err := deps.Attempts.SumRealizedPnL(ctx, startOfDay)
	if err != nil {
		a.logger.WarnContext(ctx, "risk: seeding daily pnl failed, starting from zero",
			slog.String("error", err.Error()),
		)
		return mgr
	}
	cumulative, err := deps.Attempts.SumRealizedPnL(ctx, time.Time{})
	if err != nil {
		a.logger.WarnContext(ctx, "risk: seeding cumulative pnl failed, starting from zero",
			slog.String("error", err.Error()),
		)
		return mgr
	}
	mgr.SeedPnL(daily, cumulative)

	a.logger.InfoContext(ctx, "risk state seeded from journal",
		slog.Float64("daily_pnl", daily),
		slog.Float64("cumulative_pnl", cumulative),
	)
	return mgr
}

// startArchiveLoop adds the retention worker: archive journal rows older than
// the retention cutoff to object storage, then prune scan records.
func (a *App) startArchiveLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if deps.Archiver == nil {
		return errors.New("archiver requires object storage")
	}

	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	retention := a.cfg.Archive.RetentionDays

	runOnce := func() {
		cutoff := time.Now().UTC().AddDate(0, 0, -retention)

		opps, err := deps.Archiver.ArchiveOpportunities(ctx, cutoff)
		if err != nil {
			a.logger.ErrorContext(ctx, "archive: opportunities failed",
				slog.String("error", err.Error()),
			)
		}
		attempts, err := deps.Archiver.ArchiveAttempts(ctx, cutoff)
		if err != nil {
			a.logger.ErrorContext(ctx, "archive: attempts failed",
				slog.String("error", err.Error()),
			)
		}
		scans, err := deps.Scans.DeleteBefore(ctx, cutoff)
		if err != nil {
			a.logger.ErrorContext(ctx, "archive: scan prune failed",
				slog.String("error", err.Error()),
			)
		}

		a.logger.InfoContext(ctx, "archive cycle complete",
			slog.Time("cutoff", cutoff),
			slog.Int64("opportunities", opps),
			slog.Int64("attempts", attempts),
			slog.Int64("scans_pruned", scans),
		)
	}

	g.Go(func() error {
		runOnce()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				runOnce()
			}
		}
	})

	return nil
}

// startHTTPServer adds the API server goroutines to the group. The server is
// shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, riskMgr *risk.Manager) {
	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(a.cfg.Mode, a.logger),
		Opportunities: handler.NewOpportunityHandler(deps.Opportunities, a.logger),
		Attempts:      handler.NewAttemptHandler(deps.Attempts, a.logger),
		Risk:          handler.NewRiskHandler(riskMgr, a.logger),
		Scans:         handler.NewScanHandler(deps.Scans, a.logger),
		Audit:         handler.NewAuditHandler(deps.Audit, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		Limiter:     deps.RateLimiter,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, deps.Hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// watchTickers returns open instrument tickers for the configured series, up
// to maxTickers, for the market-data subscription.
func (a *App) watchTickers(ctx context.Context, deps *Dependencies, maxTickers int) []string {
	var tickers []string
	for _, series := range a.cfg.Scanner.Series {
		instruments, err := deps.Exchange.GetInstruments(ctx, domain.InstrumentFilter{
			Series: []string{series},
			Status: "open",
		})
		if err != nil {
			a.logger.WarnContext(ctx, "watch tickers: list instruments failed",
				slog.String("series", series),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, inst := range instruments {
			tickers = append(tickers, inst.Ticker)
			if len(tickers) >= maxTickers {
				return tickers
			}
		}
	}
	return tickers
}
