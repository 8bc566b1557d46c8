package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// Ledger is the process-wide exposure state. It is the only mutable resource
// shared across concurrent attempts, so every read and write goes through the
// one mutex: two attempts must never both pass a cap check against stale
// numbers. Readers get a deep-copied snapshot.
type Ledger struct {
	// All fields below guarded by the Manager's mutex; see Manager. The
	// ledger itself carries no lock so the pre-trade check and the update it
	// is based on stay in one critical section.
	day        string
	venues     map[domain.VenueID]*venueState
	globalOpen decimal.Decimal
	dailyPnL   decimal.Decimal
	cumPnL     decimal.Decimal
	highWater  decimal.Decimal
	halted     bool
	haltReason string
	naked      []domain.NakedPosition
	settled    int
	// reserveFreed is the slice of the reserve already moved into the
	// bankroll. Never shrinks.
	reserveFreed decimal.Decimal
}

type venueState struct {
	openNotional decimal.Decimal
	dailyVolume  decimal.Decimal
	dailyPnL     decimal.Decimal
	betsToday    int
	throttled    bool
	throttledAt  time.Time
	lastActivity time.Time
	rejections   []time.Time // recent leg rejections, for throttle detection
}

func newLedger() *Ledger {
	return &Ledger{
		venues:       make(map[domain.VenueID]*venueState),
		globalOpen:   decimal.Zero,
		dailyPnL:     decimal.Zero,
		cumPnL:       decimal.Zero,
		highWater:    decimal.Zero,
		reserveFreed: decimal.Zero,
	}
}

func (l *Ledger) venue(v domain.VenueID) *venueState {
	s, ok := l.venues[v]
	if !ok {
		s = &venueState{
			openNotional: decimal.Zero,
			dailyVolume:  decimal.Zero,
			dailyPnL:     decimal.Zero,
		}
		l.venues[v] = s
	}
	return s
}

// rollDay zeroes the daily counters when now crosses the day boundary.
// Open notional, cumulative P&L, the high-water mark, throttle flags, and
// naked positions survive the roll.
func (l *Ledger) rollDay(now time.Time) {
	day := now.UTC().Format("2006-01-02")
	if l.day == day {
		return
	}
	l.day = day
	l.dailyPnL = decimal.Zero
	for _, s := range l.venues {
		s.dailyVolume = decimal.Zero
		s.dailyPnL = decimal.Zero
		s.betsToday = 0
		s.rejections = nil
	}
}

// addFill records one filled leg: open notional and daily counters move on
// the leg's venue.
func (l *Ledger) addFill(v domain.VenueID, stake decimal.Decimal, now time.Time) {
	s := l.venue(v)
	s.openNotional = s.openNotional.Add(stake)
	s.dailyVolume = s.dailyVolume.Add(stake)
	s.betsToday++
	s.lastActivity = now
	l.globalOpen = l.globalOpen.Add(stake)
}

// settle books realized P&L against a venue and the global counters.
func (l *Ledger) settle(v domain.VenueID, pnl decimal.Decimal) {
	s := l.venue(v)
	s.dailyPnL = s.dailyPnL.Add(pnl)
	l.dailyPnL = l.dailyPnL.Add(pnl)
	l.cumPnL = l.cumPnL.Add(pnl)
	l.settled++
	if l.cumPnL.GreaterThan(l.highWater) {
		l.highWater = l.cumPnL
	}
}

// release reduces open notional after a position unwinds.
func (l *Ledger) release(v domain.VenueID, stake decimal.Decimal) {
	s := l.venue(v)
	s.openNotional = s.openNotional.Sub(stake)
	if s.openNotional.IsNegative() {
		s.openNotional = decimal.Zero
	}
	l.globalOpen = l.globalOpen.Sub(stake)
	if l.globalOpen.IsNegative() {
		l.globalOpen = decimal.Zero
	}
}

// snapshot deep-copies the ledger into the read-only view handed to callers.
func (l *Ledger) snapshot() domain.ExposureSnapshot {
	venues := make(map[domain.VenueID]domain.VenueExposure, len(l.venues))
	for id, s := range l.venues {
		venues[id] = domain.VenueExposure{
			Venue:        id,
			OpenNotional: s.openNotional,
			DailyVolume:  s.dailyVolume,
			DailyPnL:     s.dailyPnL,
			BetsToday:    s.betsToday,
			Throttled:    s.throttled,
			ThrottledAt:  s.throttledAt,
			LastActivity: s.lastActivity,
		}
	}
	naked := make([]domain.NakedPosition, len(l.naked))
	copy(naked, l.naked)
	return domain.ExposureSnapshot{
		Day:           l.day,
		Venues:        venues,
		GlobalOpen:    l.globalOpen,
		DailyPnL:      l.dailyPnL,
		HighWaterMark: l.highWater,
		Halted:        l.halted,
		HaltReason:    l.haltReason,
		Naked:         naked,
	}
}
