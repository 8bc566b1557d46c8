package scanner

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/sportsarb/internal/detector"
	"github.com/alanyoungcy/sportsarb/internal/domain"
	"github.com/alanyoungcy/sportsarb/internal/matcher"
	"github.com/alanyoungcy/sportsarb/internal/odds"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeExchange struct {
	mu            sync.Mutex
	instruments   []domain.Instrument
	instErr       error
	orderbooks    map[string]domain.OrderbookSnapshot
	bookFetches   int
	instrumentGot int
}

func (f *fakeExchange) GetInstruments(context.Context, domain.InstrumentFilter) ([]domain.Instrument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instrumentGot++
	if f.instErr != nil {
		return nil, f.instErr
	}
	return f.instruments, nil
}

func (f *fakeExchange) GetOrderbook(_ context.Context, ticker string) (domain.OrderbookSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookFetches++
	snap, ok := f.orderbooks[ticker]
	if !ok {
		return domain.OrderbookSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (f *fakeExchange) PlaceOrder(context.Context, domain.OrderRequest) (domain.OrderHandle, error) {
	return domain.OrderHandle{}, domain.ErrRejected
}

func (f *fakeExchange) GetOrderStatus(context.Context, domain.OrderHandle) (domain.OrderStatus, error) {
	return domain.OrderStatus{}, domain.ErrNotFound
}

func (f *fakeExchange) CancelOrder(context.Context, domain.OrderHandle) error { return nil }

type fakeOdds struct {
	mu     sync.Mutex
	events []domain.OddsEvent
	err    error
	errN   int // fail this many calls, then succeed
	calls  int
}

func (f *fakeOdds) GetLines(context.Context, domain.LineQuery) ([]domain.OddsEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil && (f.errN == 0 || f.calls <= f.errN) {
		return nil, f.err
	}
	return f.events, nil
}

type memBookCache struct {
	mu    sync.Mutex
	snaps map[string]domain.OrderbookSnapshot
}

func newMemBookCache() *memBookCache {
	return &memBookCache{snaps: make(map[string]domain.OrderbookSnapshot)}
}

func (c *memBookCache) PutSnapshot(_ context.Context, snap domain.OrderbookSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[snap.Ticker] = snap
	return nil
}

func (c *memBookCache) GetSnapshot(_ context.Context, ticker string) (domain.OrderbookSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snaps[ticker]
	if !ok {
		return domain.OrderbookSnapshot{}, domain.ErrStaleData
	}
	return snap, nil
}

type memLineCache struct {
	mu     sync.Mutex
	events map[string][]domain.OddsEvent
}

func newMemLineCache() *memLineCache {
	return &memLineCache{events: make(map[string][]domain.OddsEvent)}
}

func (c *memLineCache) PutEvents(_ context.Context, sportKey string, events []domain.OddsEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[sportKey] = events
	return nil
}

func (c *memLineCache) GetEvents(_ context.Context, sportKey string) ([]domain.OddsEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	events, ok := c.events[sportKey]
	if !ok {
		return nil, domain.ErrStaleData
	}
	return events, nil
}

type memScanStore struct {
	mu      sync.Mutex
	records []domain.ScanRecord
}

func (s *memScanStore) Insert(_ context.Context, rec domain.ScanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memScanStore) ListRecent(context.Context, int) ([]domain.ScanRecord, error) {
	return nil, nil
}

func (s *memScanStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type memOppStore struct {
	mu         sync.Mutex
	inserted   []domain.Opportunity
	dispatched []string
}

func (s *memOppStore) Insert(_ context.Context, opp domain.Opportunity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, opp)
	return nil
}

func (s *memOppStore) MarkDispatched(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatched = append(s.dispatched, id)
	return nil
}

func (s *memOppStore) ListRecent(context.Context, int) ([]domain.Opportunity, error) {
	return nil, nil
}

func (s *memOppStore) ListBefore(context.Context, time.Time, int) ([]domain.Opportunity, error) {
	return nil, nil
}

func (s *memOppStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

// denyVenues admits everything except the listed venues.
type denyVenues map[domain.VenueID]bool

func (d denyVenues) Allow(_ context.Context, venue domain.VenueID, _ int, _ time.Duration) (bool, error) {
	return !d[venue], nil
}

const ticker = "KXNBAGAME-26MAR14BOSMEM-BOS"

func fixtureInstrument(start time.Time) domain.Instrument {
	return domain.Instrument{
		Ticker:      ticker,
		Series:      "KXNBAGAME",
		Title:       "Boston at Memphis Winner?",
		Outcome:     "Boston",
		OutcomeFull: "Boston Celtics",
		StartTime:   start,
		Status:      "open",
	}
}

func fixtureEvent(now, start time.Time) domain.OddsEvent {
	return domain.OddsEvent{
		ID:           "evt1",
		SportKey:     "basketball_nba",
		CommenceTime: start,
		HomeTeam:     "Memphis Grizzlies",
		AwayTeam:     "Boston Celtics",
		Books: []domain.BookLines{
			{
				Venue:      "fanduel",
				LastUpdate: now,
				Markets: []domain.MarketLines{
					{
						Type: domain.MarketMoneyline,
						Outcomes: []domain.LineOutcome{
							{Name: "Boston Celtics", American: 120},
							{Name: "Memphis Grizzlies", American: -160},
						},
					},
				},
			},
		},
	}
}

func fixtureSnapshot(now time.Time) domain.OrderbookSnapshot {
	return domain.OrderbookSnapshot{
		Ticker:    ticker,
		YesAsks:   []domain.PriceLevel{{PriceCents: 35, Count: 40}},
		YesBids:   []domain.PriceLevel{{PriceCents: 30, Count: 100}},
		Timestamp: now,
	}
}

type fixture struct {
	scanner  *Scanner
	exchange *fakeExchange
	oddsc    *fakeOdds
	books    *memBookCache
	lines    *memLineCache
	scans    *memScanStore
	opps     *memOppStore
	out      chan domain.Opportunity
}

func newFixture(t *testing.T, limiter domain.RateLimiter, cfg Config) *fixture {
	t.Helper()
	now := time.Now()
	start := now.Add(time.Hour)

	ex := &fakeExchange{
		instruments: []domain.Instrument{fixtureInstrument(start)},
		orderbooks:  map[string]domain.OrderbookSnapshot{ticker: fixtureSnapshot(now)},
	}
	oddsc := &fakeOdds{events: []domain.OddsEvent{fixtureEvent(now, start)}}
	books := newMemBookCache()
	lines := newMemLineCache()
	scans := &memScanStore{}
	opps := &memOppStore{}
	out := make(chan domain.Opportunity, 4)

	if cfg.Retries == 0 {
		cfg.Retries = 1
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Millisecond
	}
	noFees := odds.NewTable(1e-12, nil, 0)
	s := New(ex, oddsc, books, lines, limiter,
		matcher.New(matcher.Config{}, testLogger()),
		detector.New(detector.Config{Staleness: time.Minute}, noFees, testLogger()),
		detector.NewArena(time.Minute, 0.005, 5*time.Minute),
		scans, opps, out, cfg, testLogger())
	return &fixture{scanner: s, exchange: ex, oddsc: oddsc, books: books, lines: lines, scans: scans, opps: opps, out: out}
}

func TestCycleDetectsAndDispatches(t *testing.T) {
	f := newFixture(t, nil, Config{})

	rec := f.scanner.Cycle(context.Background())

	if rec.Instruments != 1 || rec.OddsEvents != 1 || rec.Pairs != 1 {
		t.Fatalf("record = %+v, want 1 instrument, 1 event, 1 pair", rec)
	}
	if rec.Opportunities != 1 || rec.Dispatched != 1 {
		t.Fatalf("record = %+v, want 1 opportunity dispatched", rec)
	}
	if rec.Errors != 0 {
		t.Errorf("Errors = %d, want 0", rec.Errors)
	}

	select {
	case opp := <-f.out:
		if opp.Pair.InstrumentTicker != ticker || opp.NetEdge < 0.05 {
			t.Errorf("dispatched opportunity = %+v", opp)
		}
	default:
		t.Fatal("opportunity must reach the coordinator channel")
	}

	if len(f.opps.inserted) != 1 || len(f.opps.dispatched) != 1 {
		t.Errorf("journal: %d inserted, %d dispatched, want 1 each",
			len(f.opps.inserted), len(f.opps.dispatched))
	}
	if len(f.scans.records) != 1 {
		t.Errorf("scan journal has %d records, want 1", len(f.scans.records))
	}
}

func TestCycleFallsBackToCachedLines(t *testing.T) {
	f := newFixture(t, nil, Config{})

	// Prime the cache, then take the venue down.
	now := time.Now()
	_ = f.lines.PutEvents(context.Background(), "basketball_nba",
		[]domain.OddsEvent{fixtureEvent(now, now.Add(time.Hour))})
	f.oddsc.mu.Lock()
	f.oddsc.err = domain.ErrVenueUnavailable
	f.oddsc.mu.Unlock()

	rec := f.scanner.Cycle(context.Background())
	if rec.Errors == 0 {
		t.Error("venue failure must be counted")
	}
	if rec.OddsEvents != 1 {
		t.Fatalf("OddsEvents = %d, want cached event", rec.OddsEvents)
	}
	if rec.Dispatched != 1 {
		t.Errorf("Dispatched = %d, cached lines must still feed detection", rec.Dispatched)
	}
}

func TestCycleRateLimitedOddsSkipsFetch(t *testing.T) {
	f := newFixture(t, denyVenues{venueOdds: true}, Config{})

	rec := f.scanner.Cycle(context.Background())
	f.oddsc.mu.Lock()
	calls := f.oddsc.calls
	f.oddsc.mu.Unlock()
	if calls != 0 {
		t.Errorf("odds client called %d times past a spent budget, want 0", calls)
	}
	// Nothing cached yet, so the cycle simply finds no events.
	if rec.OddsEvents != 0 {
		t.Errorf("OddsEvents = %d, want 0", rec.OddsEvents)
	}
}

func TestCycleUsesCachedOrderbook(t *testing.T) {
	f := newFixture(t, nil, Config{})
	_ = f.books.PutSnapshot(context.Background(), fixtureSnapshot(time.Now()))

	rec := f.scanner.Cycle(context.Background())
	f.exchange.mu.Lock()
	fetches := f.exchange.bookFetches
	f.exchange.mu.Unlock()
	if fetches != 0 {
		t.Errorf("orderbook fetched %d times with a fresh cache, want 0", fetches)
	}
	if rec.Dispatched != 1 {
		t.Errorf("Dispatched = %d, want 1", rec.Dispatched)
	}
}

// A cached snapshot older than BookFreshness must not stand in for a REST
// fetch: the websocket feed may be down, and detection goes dark if the scan
// loop keeps serving the aged entry.
func TestCycleRefetchesAgedCachedOrderbook(t *testing.T) {
	f := newFixture(t, nil, Config{})
	aged := fixtureSnapshot(time.Now().Add(-5 * time.Minute))
	_ = f.books.PutSnapshot(context.Background(), aged)

	rec := f.scanner.Cycle(context.Background())
	f.exchange.mu.Lock()
	fetches := f.exchange.bookFetches
	f.exchange.mu.Unlock()
	if fetches != 1 {
		t.Errorf("orderbook fetched %d times past an aged cache entry, want 1", fetches)
	}
	if rec.Dispatched != 1 {
		t.Errorf("Dispatched = %d, want detection on the refetched book", rec.Dispatched)
	}
}

func TestCycleFallsBackToAgedCacheOnFetchFailure(t *testing.T) {
	f := newFixture(t, nil, Config{})
	aged := fixtureSnapshot(time.Now().Add(-30 * time.Second))
	_ = f.books.PutSnapshot(context.Background(), aged)
	f.exchange.mu.Lock()
	f.exchange.orderbooks = nil // REST fetch now fails
	f.exchange.mu.Unlock()

	rec := f.scanner.Cycle(context.Background())
	// The fixture detector tolerates a 1m-old snapshot, so the aged cache
	// entry still feeds detection once the fetch fails.
	if rec.Dispatched != 1 {
		t.Errorf("Dispatched = %d, aged cache must serve as fallback", rec.Dispatched)
	}
}

// Unchanged prices across consecutive cycles are one opportunity, not one per
// cycle: the dispatched entry suppresses its own recomputations.
func TestCycleUnchangedPricesDispatchOnce(t *testing.T) {
	f := newFixture(t, nil, Config{})

	first := f.scanner.Cycle(context.Background())
	if first.Dispatched != 1 {
		t.Fatalf("first cycle Dispatched = %d, want 1", first.Dispatched)
	}
	second := f.scanner.Cycle(context.Background())
	if second.Dispatched != 0 {
		t.Errorf("second cycle Dispatched = %d, unchanged prices must not re-dispatch", second.Dispatched)
	}

	f.opps.mu.Lock()
	defer f.opps.mu.Unlock()
	if len(f.opps.inserted) != 1 || len(f.opps.dispatched) != 1 {
		t.Errorf("journal: %d inserted, %d dispatched, want 1 each",
			len(f.opps.inserted), len(f.opps.dispatched))
	}
}

func TestCycleDropsWhenCoordinatorSaturated(t *testing.T) {
	f := newFixture(t, nil, Config{})
	f.out <- domain.Opportunity{}
	f.out <- domain.Opportunity{}
	f.out <- domain.Opportunity{}
	f.out <- domain.Opportunity{} // channel now full

	rec := f.scanner.Cycle(context.Background())
	if rec.Opportunities != 1 {
		t.Fatalf("Opportunities = %d, want 1", rec.Opportunities)
	}
	if rec.Dispatched != 0 {
		t.Errorf("Dispatched = %d, full channel must drop", rec.Dispatched)
	}
	if len(f.opps.dispatched) != 0 {
		t.Error("undispatched opportunity must not be marked dispatched")
	}
	if len(f.opps.inserted) != 1 {
		t.Error("dropped opportunity still gets journaled")
	}
}

func TestWithRetryRecoversTransientFailure(t *testing.T) {
	f := newFixture(t, nil, Config{Retries: 2, RetryBackoff: time.Millisecond})
	f.oddsc.mu.Lock()
	f.oddsc.err = domain.ErrVenueUnavailable
	f.oddsc.errN = 1 // first call fails, retry succeeds
	f.oddsc.mu.Unlock()

	rec := f.scanner.Cycle(context.Background())
	if rec.Errors != 0 {
		t.Errorf("Errors = %d, transient failure must be retried away", rec.Errors)
	}
	if rec.Dispatched != 1 {
		t.Errorf("Dispatched = %d, want 1", rec.Dispatched)
	}
}

func TestWithRetryGivesUpOnRateLimit(t *testing.T) {
	f := newFixture(t, nil, Config{Retries: 3, RetryBackoff: time.Millisecond})
	f.oddsc.mu.Lock()
	f.oddsc.err = domain.ErrRateLimited
	f.oddsc.mu.Unlock()

	f.scanner.Cycle(context.Background())
	f.oddsc.mu.Lock()
	calls := f.oddsc.calls
	f.oddsc.mu.Unlock()
	if calls != 1 {
		t.Errorf("rate-limited fetch retried %d times, want no retries", calls)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, nil, Config{Interval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.scanner.Run(ctx) }()

	time.Sleep(25 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run must return on cancel")
	}

	f.scans.mu.Lock()
	defer f.scans.mu.Unlock()
	if len(f.scans.records) == 0 {
		t.Error("Run must journal cycles")
	}
}
