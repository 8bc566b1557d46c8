package risk

import (
	"context"
	"errors"
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

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(limits Limits) (*Manager, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
	return NewManager(limits, clock, testLogger()), clock
}

func opportunity(stake1, stake2 float64) domain.Opportunity {
	return domain.Opportunity{
		ID: "opp1",
		Legs: [2]domain.PlannedLeg{
			{Venue: domain.VenueKalshi, Stake: stake1, Size: stake1},
			{Venue: "fanduel", Stake: stake2, Size: stake2},
		},
	}
}

func filledAttempt(id string, outcome domain.AttemptOutcome, edge, size float64) domain.ExecutionAttempt {
	done := time.Now()
	a := domain.ExecutionAttempt{
		ID:           id,
		PairKey:      "T|e",
		Outcome:      outcome,
		RealizedEdge: edge,
		CompletedAt:  &done,
		Legs: [2]domain.LegResult{
			{Venue: domain.VenueKalshi, State: domain.LegFilled, FilledSize: size, FilledPrice: 0.35, Stake: size * 0.35},
			// Book legs fill in stake dollars, not contracts.
			{Venue: "fanduel", State: domain.LegFilled, FilledSize: size * 0.40, FilledPrice: 0.40, Stake: size * 0.40},
		},
	}
	if outcome == domain.OutcomeNakedExposure {
		a.Legs[1].State = domain.LegRejected
		a.Legs[1].FilledSize = 0
		a.Legs[1].Stake = 0
	}
	return a
}

func TestApproveHappyPath(t *testing.T) {
	m, _ := newTestManager(Limits{})
	if err := m.Approve(opportunity(17.5, 20)); err != nil {
		t.Fatalf("Approve = %v, want nil", err)
	}
}

func TestApprovePerBetCap(t *testing.T) {
	m, _ := newTestManager(Limits{MaxBetUSD: 50})
	if err := m.Approve(opportunity(60, 20)); err == nil {
		t.Fatal("stake above per-bet cap must be rejected")
	}
}

func TestApproveMinFill(t *testing.T) {
	m, _ := newTestManager(Limits{MinFillUSD: 5})
	if err := m.Approve(opportunity(1, 1)); err == nil {
		t.Fatal("below minimum actionable size must be rejected")
	}
}

func TestApproveDailyVolumeCap(t *testing.T) {
	m, _ := newTestManager(Limits{MaxDailyVolumeUSD: 100})
	// Three hedged attempts of $40 at fanduel use $120 of the $100 cap.
	for i := 0; i < 3; i++ {
		m.RecordAttempt(filledAttempt("a", domain.OutcomeBothFilled, 0.01, 100))
	}
	err := m.Approve(opportunity(10, 10))
	if err == nil {
		t.Fatal("daily volume cap must reject")
	}
}

func TestApproveGlobalOpenCap(t *testing.T) {
	m, _ := newTestManager(Limits{MaxGlobalOpenUSD: 100, MaxDailyVolumeUSD: 10_000})
	m.RecordAttempt(filledAttempt("a", domain.OutcomeBothFilled, 0.01, 120)) // $42 + $48 open
	if err := m.Approve(opportunity(10, 10)); err == nil {
		t.Fatal("global exposure cap must reject")
	}
}

func TestApproveThrottledVenue(t *testing.T) {
	m, clock := newTestManager(Limits{ThrottleRejections: 2, ThrottleWindow: time.Minute})
	for i := 0; i < 2; i++ {
		m.RecordAttempt(filledAttempt("a", domain.OutcomeNakedExposure, 0, 10))
		clock.advance(time.Second)
	}
	err := m.Approve(opportunity(5, 5))
	if !errors.Is(err, domain.ErrThrottled) {
		t.Fatalf("Approve = %v, want ErrThrottled", err)
	}

	m.ClearThrottle("fanduel")
	if err := m.Approve(opportunity(5, 5)); err != nil {
		t.Fatalf("after ClearThrottle: %v", err)
	}
}

// Abandoned attempts reject at the exchange leg. The exchange cannot ban us
// the way a book can, so those rejections must never trip the throttle and
// veto all trading.
func TestExchangeRejectionsNeverThrottle(t *testing.T) {
	m, clock := newTestManager(Limits{ThrottleRejections: 3, ThrottleWindow: 10 * time.Minute})

	for i := 0; i < 5; i++ {
		a := filledAttempt("a", domain.OutcomeAbandoned, 0, 10)
		a.Legs[0].State = domain.LegRejected
		a.Legs[0].FilledSize = 0
		a.Legs[0].Stake = 0
		a.Legs[1].State = domain.LegCancelled
		a.Legs[1].FilledSize = 0
		a.Legs[1].Stake = 0
		m.RecordAttempt(a)
		clock.advance(time.Second)
	}

	if err := m.Approve(opportunity(5, 5)); errors.Is(err, domain.ErrThrottled) {
		t.Fatalf("exchange-leg rejections tripped the throttle: %v", err)
	}
}

func TestThrottleWindowExpires(t *testing.T) {
	m, clock := newTestManager(Limits{ThrottleRejections: 2, ThrottleWindow: time.Minute})
	m.RecordAttempt(filledAttempt("a", domain.OutcomeNakedExposure, 0, 10))
	clock.advance(2 * time.Minute)
	m.RecordAttempt(filledAttempt("b", domain.OutcomeNakedExposure, 0, 10))
	if err := m.Approve(opportunity(5, 5)); errors.Is(err, domain.ErrThrottled) {
		t.Fatal("rejections outside the window must not throttle")
	}
}

// Daily P&L at -$48 with a $50 limit: an attempt whose worst-case loss is $5
// must be rejected even though the limit has not tripped yet.
func TestApproveWorstCaseLoss(t *testing.T) {
	m, _ := newTestManager(Limits{MaxDailyLossUSD: 50, MaxDailyVolumeUSD: 100_000, MaxGlobalOpenUSD: 100_000})
	m.ResolveNaked("x", "fanduel", 0, -48)

	if halted, _ := m.Halted(); halted {
		t.Fatal("-48 against a 50 limit must not halt yet")
	}
	if err := m.Approve(opportunity(5, 4)); err == nil {
		t.Fatal("worst-case loss breaching the daily limit must reject")
	}
	if err := m.Approve(opportunity(1.5, 1)); err != nil {
		t.Fatalf("small attempt within the remaining budget: %v", err)
	}
}

func TestKillSwitchOnDailyLoss(t *testing.T) {
	m, _ := newTestManager(Limits{MaxDailyLossUSD: 50})
	m.ResolveNaked("x", "fanduel", 0, -60)

	halted, reason := m.Halted()
	if !halted {
		t.Fatal("daily loss past the limit must halt")
	}
	if reason == "" {
		t.Error("halt must carry a reason")
	}
	err := m.Approve(opportunity(1.5, 1))
	if !errors.Is(err, domain.ErrKillSwitch) {
		t.Fatalf("Approve while halted = %v, want ErrKillSwitch", err)
	}

	m.Reset()
	if halted, _ := m.Halted(); halted {
		t.Fatal("Reset must clear the halt")
	}
}

func TestKillSwitchOnDrawdown(t *testing.T) {
	m, _ := newTestManager(Limits{MaxDailyLossUSD: 1_000, MaxDrawdownUSD: 100})
	m.ResolveNaked("a", "fanduel", 0, 150) // high-water mark 150
	m.ResolveNaked("b", "fanduel", 0, -120)

	if halted, _ := m.Halted(); !halted {
		t.Fatal("drawdown of 120 from high-water mark must halt")
	}
}

func TestRecordAttemptSettlesPnL(t *testing.T) {
	m, _ := newTestManager(Limits{})
	m.RecordAttempt(filledAttempt("a", domain.OutcomeBothFilled, 0.10, 50))

	snap := m.Snapshot()
	if got := snap.DailyPnL.InexactFloat64(); got != 5.0 {
		t.Errorf("DailyPnL = %v, want 5.0", got)
	}
	if got := snap.GlobalOpen.InexactFloat64(); got != 50*0.35+50*0.40 {
		t.Errorf("GlobalOpen = %v", got)
	}
	if snap.Venues[domain.VenueKalshi].BetsToday != 1 {
		t.Errorf("BetsToday = %d, want 1", snap.Venues[domain.VenueKalshi].BetsToday)
	}
}

// The book leg reports its fill in stake dollars; settling must convert it
// to contracts before applying the per-contract edge, or a $20 book fill
// against 50 exchange contracts would be priced as 20 contracts.
func TestRecordAttemptSettlesInContractUnits(t *testing.T) {
	m, _ := newTestManager(Limits{})
	a := filledAttempt("a", domain.OutcomeBothFilled, 0.10, 50)
	// Book hedged only 30 of the 50 contracts: $12 at 0.40.
	a.Outcome = domain.OutcomeLeg2Partial
	a.Legs[1].FilledSize = 12
	a.Legs[1].Stake = 12
	m.RecordAttempt(a)

	snap := m.Snapshot()
	if got := snap.DailyPnL.InexactFloat64(); got != 3.0 {
		t.Errorf("DailyPnL = %v, want 0.10 x 30 contracts = 3.0", got)
	}
}

type recordingAlerter struct {
	mu     sync.Mutex
	fired  chan struct{}
	events []string
}

func (a *recordingAlerter) Alert(_ context.Context, severity, message string, _ map[string]string) {
	a.mu.Lock()
	a.events = append(a.events, severity+": "+message)
	a.mu.Unlock()
	a.fired <- struct{}{}
}

func TestKillSwitchAlerts(t *testing.T) {
	m, _ := newTestManager(Limits{MaxDailyLossUSD: 50})
	alerter := &recordingAlerter{fired: make(chan struct{}, 1)}
	m.SetAlerter(alerter)

	m.ResolveNaked("x", "fanduel", 0, -60)

	select {
	case <-alerter.fired:
	case <-time.After(time.Second):
		t.Fatal("kill switch trip must fire an alert")
	}
	alerter.mu.Lock()
	defer alerter.mu.Unlock()
	if len(alerter.events) != 1 || alerter.events[0] != "critical: kill switch engaged" {
		t.Errorf("alerts = %v", alerter.events)
	}
}

func TestRecordNakedExposure(t *testing.T) {
	m, _ := newTestManager(Limits{})
	m.RecordAttempt(filledAttempt("a", domain.OutcomeNakedExposure, 0, 10))

	snap := m.Snapshot()
	if len(snap.Naked) != 1 {
		t.Fatalf("Naked = %d positions, want 1", len(snap.Naked))
	}
	n := snap.Naked[0]
	if n.AttemptID != "a" || n.Venue != domain.VenueKalshi || n.Size != 10 {
		t.Errorf("naked position = %+v", n)
	}

	m.ResolveNaked("a", domain.VenueKalshi, 3.5, -3.5)
	snap = m.Snapshot()
	if len(snap.Naked) != 0 {
		t.Errorf("naked position must clear on resolve")
	}
	if got := snap.DailyPnL.InexactFloat64(); got != -3.5 {
		t.Errorf("DailyPnL after unwind = %v, want -3.5", got)
	}
}

func TestDailyReset(t *testing.T) {
	m, clock := newTestManager(Limits{})
	m.RecordAttempt(filledAttempt("a", domain.OutcomeBothFilled, 0.10, 50))

	clock.advance(24 * time.Hour)
	snap := m.Snapshot()
	if !snap.DailyPnL.IsZero() {
		t.Errorf("DailyPnL must reset on day roll, got %v", snap.DailyPnL)
	}
	if snap.GlobalOpen.IsZero() {
		t.Error("open notional must survive the day roll")
	}
	if snap.Venues["fanduel"].DailyVolume.IsZero() != true {
		t.Error("daily volume must reset on day roll")
	}
}

func TestSelectBookRotation(t *testing.T) {
	m, clock := newTestManager(Limits{MaxDailyVolumeUSD: 100})
	books := []domain.VenueID{"fanduel", "draftkings"}

	// Burn headroom at fanduel.
	a := filledAttempt("a", domain.OutcomeBothFilled, 0.01, 100)
	m.RecordAttempt(a)

	got, ok := m.SelectBook(books)
	if !ok || got != "draftkings" {
		t.Fatalf("SelectBook = (%v, %v), want the venue with more headroom", got, ok)
	}

	// Equal headroom: least recent activity wins.
	m2, _ := newTestManager(Limits{MaxDailyVolumeUSD: 100})
	b := filledAttempt("b", domain.OutcomeBothFilled, 0.01, 10)
	b.Legs[1].Venue = "draftkings"
	b.Legs[1].Stake = 0 // volume equal, activity differs
	m2.RecordAttempt(b)
	clock.advance(time.Minute)

	got, ok = m2.SelectBook(books)
	if !ok || got != "fanduel" {
		t.Fatalf("SelectBook = (%v, %v), want least recently active", got, ok)
	}
}

func TestSelectBookExcludesThrottled(t *testing.T) {
	m, clock := newTestManager(Limits{ThrottleRejections: 1, ThrottleWindow: time.Minute})
	m.RecordAttempt(filledAttempt("a", domain.OutcomeNakedExposure, 0, 10))
	clock.advance(time.Second)

	got, ok := m.SelectBook([]domain.VenueID{"fanduel", "draftkings"})
	if !ok || got != "draftkings" {
		t.Fatalf("SelectBook = (%v, %v), throttled venue must be excluded", got, ok)
	}

	if _, ok := m.SelectBook([]domain.VenueID{"fanduel"}); ok {
		t.Fatal("no eligible venue must report false")
	}
}
