package executor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeExchange struct {
	mu        sync.Mutex
	placeErr  error
	status    domain.OrderStatus
	placed    []domain.OrderRequest
	cancelled []string
}

func (f *fakeExchange) GetInstruments(context.Context, domain.InstrumentFilter) ([]domain.Instrument, error) {
	return nil, nil
}

func (f *fakeExchange) GetOrderbook(context.Context, string) (domain.OrderbookSnapshot, error) {
	return domain.OrderbookSnapshot{}, nil
}

func (f *fakeExchange) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.OrderHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return domain.OrderHandle{}, f.placeErr
	}
	f.placed = append(f.placed, req)
	return domain.OrderHandle{Venue: domain.VenueKalshi, OrderID: "ord1"}, nil
}

func (f *fakeExchange) GetOrderStatus(context.Context, domain.OrderHandle) (domain.OrderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, nil
}

func (f *fakeExchange) CancelOrder(_ context.Context, h domain.OrderHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, h.OrderID)
	return nil
}

type fakePlacer struct {
	mu     sync.Mutex
	result domain.BetResult
	err    error
	calls  []domain.BetRequest
}

func (f *fakePlacer) PlaceBet(_ context.Context, req domain.BetRequest) (domain.BetResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return domain.BetResult{}, f.err
	}
	res := f.result
	if res.Stake == 0 && res.Accepted {
		res.Stake = req.Stake
	}
	return res, f.err
}

func (f *fakePlacer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakePortfolio struct {
	mu       sync.Mutex
	attempts []domain.ExecutionAttempt
}

func (f *fakePortfolio) RecordAttempt(a domain.ExecutionAttempt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, a)
}

type fakeJournal struct {
	mu       sync.Mutex
	attempts []domain.ExecutionAttempt
}

func (f *fakeJournal) RecordAttempt(_ context.Context, a domain.ExecutionAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, a)
	return nil
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []string
	fired  chan struct{}
}

func newFakeAlerter() *fakeAlerter {
	return &fakeAlerter{fired: make(chan struct{}, 8)}
}

func (f *fakeAlerter) Alert(_ context.Context, severity, message string, _ map[string]string) {
	f.mu.Lock()
	f.alerts = append(f.alerts, severity+": "+message)
	f.mu.Unlock()
	f.fired <- struct{}{}
}

type approveAll struct{}

func (approveAll) Approve(domain.Opportunity) error { return nil }

func testOpportunity() domain.Opportunity {
	return domain.Opportunity{
		ID:      "opp1",
		Kind:    domain.OppCrossVenue,
		Pair:    domain.MatchedPair{InstrumentTicker: "TICK", EventID: "evt1"},
		NetEdge: 0.10,
		MaxSize: 10,
		Legs: [2]domain.PlannedLeg{
			{
				Venue: domain.VenueKalshi, Instrument: "TICK", Outcome: "Thunder",
				Side: domain.SideYes, Price: 0.35, Size: 10, Stake: 3.5, Liquidity: 3.5,
			},
			{
				Venue: "fanduel", Instrument: "evt1", Outcome: "Grizzlies",
				Market: domain.MarketMoneyline, American: 122, Price: 0.45,
				Size: 4.5, Stake: 4.5, Liquidity: 50,
			},
		},
		DetectedAt: time.Now(),
	}
}

func testCoordinator(ex *fakeExchange, placer *fakePlacer) (*Coordinator, *fakePortfolio, *fakeJournal, *fakeAlerter) {
	portfolio := &fakePortfolio{}
	journal := &fakeJournal{}
	alerter := newFakeAlerter()
	c := NewCoordinator(nil, ex, map[domain.VenueID]domain.BetPlacer{"fanduel": placer},
		approveAll{}, portfolio, journal, alerter,
		Config{Leg1Wait: 60 * time.Millisecond, Leg2Wait: 60 * time.Millisecond, PollInterval: 5 * time.Millisecond},
		testLogger())
	return c, portfolio, journal, alerter
}

func TestBothFilled(t *testing.T) {
	ex := &fakeExchange{status: domain.OrderStatus{State: domain.LegFilled, FilledCount: 10, AvgPriceCents: 35}}
	placer := &fakePlacer{result: domain.BetResult{Accepted: true, BetID: "bet1", American: 122}}
	c, portfolio, journal, _ := testCoordinator(ex, placer)

	a := c.execute(context.Background(), testOpportunity())
	c.finish(context.Background(), a)

	if a.Outcome != domain.OutcomeBothFilled {
		t.Fatalf("Outcome = %v, want both_filled", a.Outcome)
	}
	if a.RealizedEdge <= 0 {
		t.Errorf("RealizedEdge = %v, want positive", a.RealizedEdge)
	}
	if a.CompletedAt == nil {
		t.Error("terminal attempt must carry a completion time")
	}
	if len(portfolio.attempts) != 1 || len(journal.attempts) != 1 {
		t.Errorf("portfolio=%d journal=%d records, want 1 each", len(portfolio.attempts), len(journal.attempts))
	}
}

// Leg1 rejected: no position, no leg2 placement, no alert.
func TestLeg1RejectedNoLeg2(t *testing.T) {
	ex := &fakeExchange{placeErr: domain.ErrRejected}
	placer := &fakePlacer{result: domain.BetResult{Accepted: true}}
	c, portfolio, _, alerter := testCoordinator(ex, placer)

	a := c.execute(context.Background(), testOpportunity())
	c.finish(context.Background(), a)

	if a.Outcome != domain.OutcomeAbandoned {
		t.Fatalf("Outcome = %v, want abandoned", a.Outcome)
	}
	if placer.callCount() != 0 {
		t.Error("leg2 must never be submitted when leg1 did not fill")
	}
	select {
	case <-alerter.fired:
		t.Error("abandoned attempt must not alert")
	case <-time.After(30 * time.Millisecond):
	}
	if len(portfolio.attempts) != 1 {
		t.Error("abandoned attempt still gets recorded")
	}
}

// Leg1 never fills: resting order cancelled, abandoned.
func TestLeg1TimeoutCancels(t *testing.T) {
	ex := &fakeExchange{status: domain.OrderStatus{State: domain.LegSubmitted}}
	placer := &fakePlacer{}
	c, _, _, _ := testCoordinator(ex, placer)

	a := c.execute(context.Background(), testOpportunity())
	if a.Outcome != domain.OutcomeAbandoned {
		t.Fatalf("Outcome = %v, want abandoned", a.Outcome)
	}
	if a.Legs[0].State != domain.LegTimedOut {
		t.Errorf("leg1 state = %v, want timed_out", a.Legs[0].State)
	}
	ex.mu.Lock()
	cancelled := len(ex.cancelled)
	ex.mu.Unlock()
	if cancelled != 1 {
		t.Errorf("cancelled %d orders, want the resting leg1 cancelled once", cancelled)
	}
	if placer.callCount() != 0 {
		t.Error("no leg2 after timeout")
	}
}

// Leg1 fills 8 of 10: leg2 sized to the realized fill, not the plan.
func TestLeg2SizedToRealizedFill(t *testing.T) {
	ex := &fakeExchange{status: domain.OrderStatus{State: domain.LegSubmitted, FilledCount: 8, AvgPriceCents: 35}}
	placer := &fakePlacer{result: domain.BetResult{Accepted: true, American: 122}}
	c, _, _, _ := testCoordinator(ex, placer)

	a := c.execute(context.Background(), testOpportunity())

	if a.Legs[0].State != domain.LegPartiallyFilled || a.Legs[0].FilledSize != 8 {
		t.Fatalf("leg1 = %v filled %v, want partial fill of 8", a.Legs[0].State, a.Legs[0].FilledSize)
	}
	placer.mu.Lock()
	defer placer.mu.Unlock()
	if len(placer.calls) != 1 {
		t.Fatalf("leg2 placed %d times, want 1", len(placer.calls))
	}
	want := 4.5 * 0.8
	if got := placer.calls[0].Stake; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("leg2 stake = %v, want %v (scaled by fill ratio)", got, want)
	}
	if a.Outcome != domain.OutcomeBothFilled {
		t.Errorf("Outcome = %v, want both_filled", a.Outcome)
	}
}

// Leg2 rejected after leg1 filled: naked exposure, exactly one alert, the
// unhedged position lands at the portfolio.
func TestLeg2RejectedNakedExposure(t *testing.T) {
	ex := &fakeExchange{status: domain.OrderStatus{State: domain.LegFilled, FilledCount: 10, AvgPriceCents: 35}}
	placer := &fakePlacer{result: domain.BetResult{Accepted: false, Message: "limits"}}
	c, portfolio, _, alerter := testCoordinator(ex, placer)

	a := c.execute(context.Background(), testOpportunity())
	c.finish(context.Background(), a)

	if a.Outcome != domain.OutcomeNakedExposure {
		t.Fatalf("Outcome = %v, want naked_exposure", a.Outcome)
	}
	select {
	case <-alerter.fired:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("naked exposure must alert")
	}
	select {
	case <-alerter.fired:
		t.Error("exactly one alert per naked exposure")
	case <-time.After(30 * time.Millisecond):
	}
	if len(portfolio.attempts) != 1 || portfolio.attempts[0].Outcome != domain.OutcomeNakedExposure {
		t.Error("unhedged attempt must reach the portfolio")
	}
}

func TestPartialBookAcceptance(t *testing.T) {
	ex := &fakeExchange{status: domain.OrderStatus{State: domain.LegFilled, FilledCount: 10, AvgPriceCents: 35}}
	placer := &fakePlacer{result: domain.BetResult{Accepted: true, Stake: 2.0, American: 122}}
	c, _, _, _ := testCoordinator(ex, placer)

	a := c.execute(context.Background(), testOpportunity())
	if a.Outcome != domain.OutcomeLeg2Partial {
		t.Fatalf("Outcome = %v, want leg2_partial", a.Outcome)
	}
	if a.Legs[1].State != domain.LegPartiallyFilled {
		t.Errorf("leg2 state = %v", a.Legs[1].State)
	}
}

func TestDryRunFillsBothLegs(t *testing.T) {
	ex := &fakeExchange{placeErr: domain.ErrVenueUnavailable}
	placer := &fakePlacer{err: domain.ErrVenueUnavailable}
	portfolio := &fakePortfolio{}
	c := NewCoordinator(nil, ex, map[domain.VenueID]domain.BetPlacer{"fanduel": placer},
		approveAll{}, portfolio, &fakeJournal{}, newFakeAlerter(),
		Config{DryRun: true}, testLogger())

	a := c.execute(context.Background(), testOpportunity())
	if a.Outcome != domain.OutcomeBothFilled {
		t.Fatalf("dry run Outcome = %v, want both_filled", a.Outcome)
	}
	if placer.callCount() != 0 {
		t.Error("dry run must not reach any venue")
	}
	if a.Legs[0].FilledPrice != 0.35 || a.Legs[1].FilledPrice != 0.45 {
		t.Errorf("dry run fills at planned prices, got %v and %v",
			a.Legs[0].FilledPrice, a.Legs[1].FilledPrice)
	}
}

// Dry run with a fill probability: a missed leg2 walks the same
// naked-exposure path as a live rejection.
func TestDryRunFillProbability(t *testing.T) {
	c := NewCoordinator(nil, &fakeExchange{}, nil,
		approveAll{}, &fakePortfolio{}, &fakeJournal{}, newFakeAlerter(),
		Config{DryRun: true, DryRunFillProb: 0.5}, testLogger())
	rolls := []float64{0.1, 0.9} // leg1 fills, leg2 misses
	c.randFloat = func() float64 {
		r := rolls[0]
		rolls = rolls[1:]
		return r
	}

	a := c.execute(context.Background(), testOpportunity())
	if a.Outcome != domain.OutcomeNakedExposure {
		t.Fatalf("Outcome = %v, want naked_exposure", a.Outcome)
	}
	if a.Legs[1].State != domain.LegRejected {
		t.Errorf("leg2 state = %v, want rejected", a.Legs[1].State)
	}
}

func TestDispatchGuards(t *testing.T) {
	ex := &fakeExchange{status: domain.OrderStatus{State: domain.LegFilled, FilledCount: 10, AvgPriceCents: 35}}
	placer := &fakePlacer{result: domain.BetResult{Accepted: true, American: 122}}
	c, portfolio, _, _ := testCoordinator(ex, placer)

	ctx := context.Background()

	stale := testOpportunity()
	stale.DetectedAt = time.Now().Add(-5 * time.Second)
	c.dispatch(ctx, stale)
	c.wg.Wait()
	if len(portfolio.attempts) != 0 {
		t.Fatal("stale opportunity must not execute")
	}

	if !c.inflight.tryAcquire(stale.Pair.Key()) {
		t.Fatal("setup")
	}
	c.dispatch(ctx, testOpportunity())
	c.wg.Wait()
	if len(portfolio.attempts) != 0 {
		t.Fatal("in-flight pair must not double-leg")
	}
	c.inflight.release(stale.Pair.Key())

	c.cooldown.mark(stale.Pair.Key(), time.Now())
	c.dispatch(ctx, testOpportunity())
	c.wg.Wait()
	if len(portfolio.attempts) != 0 {
		t.Fatal("pair in cooldown must not execute")
	}
}

func TestCooldown(t *testing.T) {
	cd := newCooldown(time.Minute)
	now := time.Now()
	if cd.active("k", now) {
		t.Fatal("unmarked key must not be active")
	}
	cd.mark("k", now)
	if !cd.active("k", now.Add(30*time.Second)) {
		t.Fatal("inside window must be active")
	}
	if cd.active("k", now.Add(2*time.Minute)) {
		t.Fatal("past window must expire")
	}
	cd.cleanup(now.Add(2 * time.Minute))
	cd.mu.Lock()
	defer cd.mu.Unlock()
	if len(cd.marked) != 0 {
		t.Error("cleanup must drop expired entries")
	}
}
