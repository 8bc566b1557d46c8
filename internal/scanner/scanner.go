package scanner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/sportsarb/internal/detector"
	"github.com/alanyoungcy/sportsarb/internal/domain"
	"github.com/alanyoungcy/sportsarb/internal/matcher"
)

// Config tunes the scan cycle. Zero values fall back to defaults.
type Config struct {
	// Interval paces scan cycles.
	Interval time.Duration
	// SportKeys are the odds-venue sports to pull lines for.
	SportKeys []string
	// Series are the exchange series to list instruments from.
	Series []string
	// Regions narrows the odds-venue bookmaker regions.
	Regions []string
	// Retries bounds re-fetch attempts on transient venue errors.
	Retries int
	// RetryBackoff is the initial backoff between retries; it doubles per
	// attempt.
	RetryBackoff time.Duration
	// BookConcurrency bounds parallel orderbook fetches.
	BookConcurrency int
	// BookFreshness is how recent a cached snapshot must be to stand in for
	// a REST fetch. Keep it at or below the detector's staleness bound, or
	// cache hits produce snapshots the detector refuses.
	BookFreshness time.Duration
	// ExchangeRateLimit caps exchange requests per ExchangeRateWindow.
	ExchangeRateLimit  int
	ExchangeRateWindow time.Duration
	// OddsRateLimit caps lines requests per OddsRateWindow. The odds venue
	// bills per request, so this window is long.
	OddsRateLimit  int
	OddsRateWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if len(c.SportKeys) == 0 {
		c.SportKeys = []string{"basketball_nba"}
	}
	if len(c.Series) == 0 {
		c.Series = []string{"KXNBAGAME"}
	}
	if len(c.Regions) == 0 {
		c.Regions = []string{"us"}
	}
	if c.Retries <= 0 {
		c.Retries = 2
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
	if c.BookConcurrency <= 0 {
		c.BookConcurrency = 8
	}
	if c.BookFreshness <= 0 {
		c.BookFreshness = 2 * time.Second
	}
	if c.ExchangeRateLimit <= 0 {
		c.ExchangeRateLimit = 10
	}
	if c.ExchangeRateWindow <= 0 {
		c.ExchangeRateWindow = time.Second
	}
	if c.OddsRateLimit <= 0 {
		c.OddsRateLimit = 30
	}
	if c.OddsRateWindow <= 0 {
		c.OddsRateWindow = time.Minute
	}
	return c
}

// venueOdds names the limiter bucket shared by all bookmaker venues: lines
// arrive through one aggregating provider, so they spend one request budget.
const venueOdds domain.VenueID = "oddsapi"

// Scanner drives the fixed-interval scan cycle: list instruments, refresh
// orderbooks and lines through their caches, pair, detect, and hand cleared
// opportunities to the coordinator channel. Every cycle is journaled whether
// or not it found anything. A venue failure degrades that cycle to cached
// data; it never aborts the loop.
type Scanner struct {
	exchange domain.ExchangeClient
	lines    domain.OddsClient
	books    domain.BookCache
	events   domain.LineCache
	limiter  domain.RateLimiter
	match    *matcher.Matcher
	detect   *detector.Detector
	arena    *detector.Arena
	scans    domain.ScanStore
	opps     domain.OpportunityStore
	out      chan<- domain.Opportunity
	cfg      Config
	clock    domain.Clock
	logger   *slog.Logger
}

func New(
	exchange domain.ExchangeClient,
	lines domain.OddsClient,
	books domain.BookCache,
	events domain.LineCache,
	limiter domain.RateLimiter,
	match *matcher.Matcher,
	detect *detector.Detector,
	arena *detector.Arena,
	scans domain.ScanStore,
	opps domain.OpportunityStore,
	out chan<- domain.Opportunity,
	cfg Config,
	logger *slog.Logger,
) *Scanner {
	return &Scanner{
		exchange: exchange,
		lines:    lines,
		books:    books,
		events:   events,
		limiter:  limiter,
		match:    match,
		detect:   detect,
		arena:    arena,
		scans:    scans,
		opps:     opps,
		out:      out,
		cfg:      cfg.withDefaults(),
		clock:    domain.RealClock{},
		logger:   logger.With(slog.String("component", "scanner")),
	}
}

// Run scans on a fixed interval until the context is cancelled. The first
// cycle runs immediately.
func (s *Scanner) Run(ctx context.Context) error {
	s.logger.Info("scanner started",
		slog.Duration("interval", s.cfg.Interval),
		slog.Any("sports", s.cfg.SportKeys),
		slog.Any("series", s.cfg.Series))
	defer s.logger.Info("scanner stopped")

	s.Cycle(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Cycle(ctx)
		}
	}
}

// Cycle runs one full scan and journals its record.
func (s *Scanner) Cycle(ctx context.Context) domain.ScanRecord {
	started := s.clock.Now()
	rec := domain.ScanRecord{ID: uuid.NewString(), StartedAt: started}

	instruments, err := s.fetchInstruments(ctx)
	if err != nil {
		s.logger.Warn("instrument listing failed", slog.String("error", err.Error()))
		rec.Errors++
	}
	rec.Instruments = len(instruments)

	snaps, bookErrs := s.refreshOrderbooks(ctx, instruments)
	rec.Errors += bookErrs

	events, lineErrs := s.refreshLines(ctx)
	rec.Errors += lineErrs
	rec.OddsEvents = len(events)

	now := s.clock.Now()
	pairs := s.match.Pair(now, instruments, events)
	rec.Pairs = len(pairs)

	byEvent := make(map[string]domain.OddsEvent, len(events))
	for _, ev := range events {
		byEvent[ev.ID] = ev
	}

	for _, pair := range pairs {
		ev, ok := byEvent[pair.EventID]
		if !ok {
			continue
		}
		snap, ok := snaps[pair.InstrumentTicker]
		if !ok {
			continue
		}
		opp, ok := s.detect.Evaluate(now, pair, snap, ev)
		if !ok {
			continue
		}
		rec.Opportunities++
		if s.offer(ctx, now, opp) {
			rec.Dispatched++
		}
	}
	for _, ev := range events {
		opp, ok := s.detect.EvaluateCrossBook(now, ev)
		if !ok {
			continue
		}
		rec.Opportunities++
		if s.offer(ctx, now, opp) {
			rec.Dispatched++
		}
	}

	if swept := s.arena.Sweep(now); swept > 0 {
		s.logger.Debug("swept stale opportunities", slog.Int("count", swept))
	}

	rec.DurationMs = s.clock.Now().Sub(started).Milliseconds()
	if err := s.scans.Insert(ctx, rec); err != nil {
		s.logger.Warn("scan journal write failed", slog.String("error", err.Error()))
	}
	s.logger.Debug("scan cycle complete",
		slog.Int64("duration_ms", rec.DurationMs),
		slog.Int("instruments", rec.Instruments),
		slog.Int("events", rec.OddsEvents),
		slog.Int("pairs", rec.Pairs),
		slog.Int("opportunities", rec.Opportunities),
		slog.Int("dispatched", rec.Dispatched),
		slog.Int("errors", rec.Errors))
	return rec
}

// offer routes a detected opportunity through the arena and, when the arena
// admits it as new, journals it and hands it to the coordinator. The entry is
// only consumed on a successful handoff, so the next cycle's unchanged
// recomputation of the same pair is swallowed instead of re-dispatched. The
// channel send never blocks: if the coordinator is saturated the entry stays
// pending and retries once the incumbent ages out.
func (s *Scanner) offer(ctx context.Context, now time.Time, opp domain.Opportunity) bool {
	if !s.arena.Offer(now, opp) {
		return false
	}
	if err := s.opps.Insert(ctx, opp); err != nil {
		s.logger.Warn("opportunity journal write failed",
			slog.String("opportunity_id", opp.ID),
			slog.String("error", err.Error()))
	}

	select {
	case s.out <- opp:
	default:
		s.logger.Warn("coordinator channel full, opportunity dropped",
			slog.String("opportunity_id", opp.ID),
			slog.Float64("net_edge", opp.NetEdge))
		return false
	}
	s.arena.Take(now, opp.Pair.Key())
	if err := s.opps.MarkDispatched(ctx, opp.ID); err != nil {
		s.logger.Warn("dispatch mark failed",
			slog.String("opportunity_id", opp.ID),
			slog.String("error", err.Error()))
	}
	return true
}

func (s *Scanner) fetchInstruments(ctx context.Context) ([]domain.Instrument, error) {
	var all []domain.Instrument
	for _, series := range s.cfg.Series {
		if !s.allow(ctx, domain.VenueKalshi, s.cfg.ExchangeRateLimit, s.cfg.ExchangeRateWindow) {
			return all, domain.ErrRateLimited
		}
		var got []domain.Instrument
		err := s.withRetry(ctx, func(ctx context.Context) error {
			var ferr error
			got, ferr = s.exchange.GetInstruments(ctx, domain.InstrumentFilter{
				Series: []string{series},
				Status: "open",
			})
			return ferr
		})
		if err != nil {
			return all, err
		}
		all = append(all, got...)
	}
	return all, nil
}

// refreshOrderbooks returns a snapshot per instrument. A cached snapshot (the
// websocket feed writes them too) short-circuits the REST fetch only while it
// is within BookFreshness of now; an aged entry still serves as fallback when
// the fetch fails or the request budget is spent.
func (s *Scanner) refreshOrderbooks(ctx context.Context, instruments []domain.Instrument) (map[string]domain.OrderbookSnapshot, int) {
	type result struct {
		snap domain.OrderbookSnapshot
		ok   bool
	}
	results := make([]result, len(instruments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BookConcurrency)
	for i, inst := range instruments {
		g.Go(func() error {
			cached, err := s.books.GetSnapshot(gctx, inst.Ticker)
			haveCached := err == nil
			if haveCached && s.clock.Now().Sub(cached.Timestamp) <= s.cfg.BookFreshness {
				results[i] = result{snap: cached, ok: true}
				return nil
			}
			if !s.allow(gctx, domain.VenueKalshi, s.cfg.ExchangeRateLimit, s.cfg.ExchangeRateWindow) {
				results[i] = result{snap: cached, ok: haveCached}
				return nil
			}
			snap, err := s.exchange.GetOrderbook(gctx, inst.Ticker)
			if err != nil {
				s.logger.Debug("orderbook fetch failed",
					slog.String("ticker", inst.Ticker),
					slog.String("error", err.Error()))
				results[i] = result{snap: cached, ok: haveCached}
				return nil
			}
			if err := s.books.PutSnapshot(gctx, snap); err != nil {
				s.logger.Debug("orderbook cache write failed",
					slog.String("ticker", inst.Ticker),
					slog.String("error", err.Error()))
			}
			results[i] = result{snap: snap, ok: true}
			return nil
		})
	}
	_ = g.Wait()

	snaps := make(map[string]domain.OrderbookSnapshot, len(instruments))
	for i, inst := range instruments {
		if results[i].ok {
			snaps[inst.Ticker] = results[i].snap
		}
	}
	return snaps, len(instruments) - len(snaps)
}

// refreshLines fetches each sport's lines, falling back to cached events when
// the venue is down or the request budget is spent.
func (s *Scanner) refreshLines(ctx context.Context) ([]domain.OddsEvent, int) {
	var all []domain.OddsEvent
	errs := 0
	for _, sport := range s.cfg.SportKeys {
		if !s.allow(ctx, venueOdds, s.cfg.OddsRateLimit, s.cfg.OddsRateWindow) {
			all = append(all, s.cachedLines(ctx, sport)...)
			continue
		}
		var events []domain.OddsEvent
		err := s.withRetry(ctx, func(ctx context.Context) error {
			var ferr error
			events, ferr = s.lines.GetLines(ctx, domain.LineQuery{
				SportKey:    sport,
				Regions:     s.cfg.Regions,
				MarketTypes: []domain.MarketType{domain.MarketMoneyline, domain.MarketSpread, domain.MarketTotal},
			})
			return ferr
		})
		if err != nil {
			s.logger.Warn("lines fetch failed, using cache",
				slog.String("sport", sport),
				slog.String("error", err.Error()))
			errs++
			all = append(all, s.cachedLines(ctx, sport)...)
			continue
		}
		if err := s.events.PutEvents(ctx, sport, events); err != nil {
			s.logger.Debug("line cache write failed",
				slog.String("sport", sport),
				slog.String("error", err.Error()))
		}
		all = append(all, events...)
	}
	return all, errs
}

func (s *Scanner) cachedLines(ctx context.Context, sport string) []domain.OddsEvent {
	events, err := s.events.GetEvents(ctx, sport)
	if err != nil {
		if !errors.Is(err, domain.ErrStaleData) {
			s.logger.Debug("line cache read failed",
				slog.String("sport", sport),
				slog.String("error", err.Error()))
		}
		return nil
	}
	return events
}

// allow consults the limiter. A nil limiter or a limiter error admits the
// request: pacing is protective, not load-bearing.
func (s *Scanner) allow(ctx context.Context, venue domain.VenueID, limit int, window time.Duration) bool {
	if s.limiter == nil {
		return true
	}
	ok, err := s.limiter.Allow(ctx, venue, limit, window)
	if err != nil {
		s.logger.Debug("rate limiter unavailable, admitting request",
			slog.String("venue", string(venue)),
			slog.String("error", err.Error()))
		return true
	}
	return ok
}

// withRetry runs fn up to Retries+1 times with doubling backoff. Rate-limit
// errors are not retried: the venue told us to stop, the next cycle is soon.
func (s *Scanner) withRetry(ctx context.Context, fn func(context.Context) error) error {
	backoff := s.cfg.RetryBackoff
	var err error
	for attempt := 0; attempt <= s.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrRateLimited) || ctx.Err() != nil {
			return err
		}
	}
	return err
}
