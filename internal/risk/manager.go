package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// Alerter delivers out-of-band notifications. Implementations must be safe to
// call from a goroutine; the manager never waits on delivery.
type Alerter interface {
	Alert(ctx context.Context, severity, message string, fields map[string]string)
}

// Limits are the capital protection rules. Dollar values; zero means the
// documented default, negative disables the check.
type Limits struct {
	// MaxBetUSD caps the stake of any single leg.
	MaxBetUSD float64
	// PerVenueBetUSD overrides MaxBetUSD for specific venues.
	PerVenueBetUSD map[string]float64
	// MaxDailyVolumeUSD caps dollars staked per venue per day.
	MaxDailyVolumeUSD float64
	// MaxGlobalOpenUSD caps open notional across all venues.
	MaxGlobalOpenUSD float64
	// MinFillUSD rejects opportunities too small to be worth legging.
	MinFillUSD float64
	// MaxDailyLossUSD trips the kill switch on realized daily loss.
	MaxDailyLossUSD float64
	// MaxDrawdownUSD trips the kill switch on drawdown from the high-water
	// mark of cumulative realized P&L.
	MaxDrawdownUSD float64
	// ThrottleRejections flags a venue after this many leg rejections within
	// ThrottleWindow.
	ThrottleRejections int
	ThrottleWindow     time.Duration
	// BankrollUSD is the working capital new stakes draw from. Available
	// bankroll is BankrollUSD plus realized P&L minus open notional.
	BankrollUSD float64
	// ReserveUSD sits outside the bankroll until ReleaseReserve moves it in,
	// ReserveStepUSD at a time, once ReserveMinSettled bets have settled with
	// positive cumulative P&L.
	ReserveUSD        float64
	ReserveStepUSD    float64
	ReserveMinSettled int
}

func (l Limits) withDefaults() Limits {
	if l.MaxBetUSD == 0 {
		l.MaxBetUSD = 50
	}
	if l.MaxDailyVolumeUSD == 0 {
		l.MaxDailyVolumeUSD = 500
	}
	if l.MaxGlobalOpenUSD == 0 {
		l.MaxGlobalOpenUSD = 1000
	}
	if l.MinFillUSD == 0 {
		l.MinFillUSD = 1
	}
	if l.MaxDailyLossUSD == 0 {
		l.MaxDailyLossUSD = 50
	}
	if l.MaxDrawdownUSD == 0 {
		l.MaxDrawdownUSD = 100
	}
	if l.ThrottleRejections == 0 {
		l.ThrottleRejections = 3
	}
	if l.ThrottleWindow == 0 {
		l.ThrottleWindow = 10 * time.Minute
	}
	if l.BankrollUSD == 0 {
		l.BankrollUSD = 200
	}
	if l.ReserveUSD == 0 {
		l.ReserveUSD = 740
	}
	if l.ReserveStepUSD == 0 {
		l.ReserveStepUSD = 100
	}
	if l.ReserveMinSettled == 0 {
		l.ReserveMinSettled = 10
	}
	return l
}

func (l Limits) betCap(v domain.VenueID) decimal.Decimal {
	if c, ok := l.PerVenueBetUSD[string(v)]; ok {
		return decimal.NewFromFloat(c)
	}
	return decimal.NewFromFloat(l.MaxBetUSD)
}

// Manager owns the exposure ledger and makes every pre-trade decision. One
// mutex serializes approval checks and post-trade updates, which is what
// keeps two concurrent attempts from both passing a cap check against the
// same headroom.
type Manager struct {
	mu      sync.Mutex
	limits  Limits
	ledger  *Ledger
	clock   domain.Clock
	alerter Alerter
	logger  *slog.Logger
}

func NewManager(limits Limits, clock domain.Clock, logger *slog.Logger) *Manager {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &Manager{
		limits: limits.withDefaults(),
		ledger: newLedger(),
		clock:  clock,
		logger: logger.With(slog.String("component", "risk")),
	}
}

// SetAlerter attaches an out-of-band notification sink for kill-switch trips.
func (m *Manager) SetAlerter(a Alerter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerter = a
}

// Approve runs the pre-trade filter. The kill switch is checked first,
// synchronously, before anything else. A nil error means the opportunity may
// be handed to the coordinator.
func (m *Manager) Approve(o domain.Opportunity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	m.ledger.rollDay(now)

	if m.ledger.halted {
		return fmt.Errorf("%w: %s", domain.ErrKillSwitch, m.ledger.haltReason)
	}

	total := decimal.Zero
	worstLoss := decimal.Zero
	for _, leg := range o.Legs {
		stake := decimal.NewFromFloat(leg.Stake)
		s := m.ledger.venue(leg.Venue)
		if s.throttled {
			return fmt.Errorf("%w: %s", domain.ErrThrottled, leg.Venue)
		}
		if limit := m.limits.betCap(leg.Venue); stake.GreaterThan(limit) {
			return fmt.Errorf("leg stake %s exceeds per-bet cap %s at %s",
				stake.StringFixed(2), limit.StringFixed(2), leg.Venue)
		}
		if m.limits.MaxDailyVolumeUSD > 0 {
			limit := decimal.NewFromFloat(m.limits.MaxDailyVolumeUSD)
			if s.dailyVolume.Add(stake).GreaterThan(limit) {
				return fmt.Errorf("daily volume cap reached at %s", leg.Venue)
			}
		}
		total = total.Add(stake)
		if stake.GreaterThan(worstLoss) {
			worstLoss = stake
		}
	}

	if total.LessThan(decimal.NewFromFloat(m.limits.MinFillUSD)) {
		return fmt.Errorf("fill size %s below minimum actionable size", total.StringFixed(2))
	}
	if m.limits.MaxGlobalOpenUSD > 0 {
		limit := decimal.NewFromFloat(m.limits.MaxGlobalOpenUSD)
		if m.ledger.globalOpen.Add(total).GreaterThan(limit) {
			return fmt.Errorf("global exposure cap reached")
		}
	}
	if m.limits.BankrollUSD > 0 {
		if avail := m.availableBankroll(); total.GreaterThan(avail) {
			return fmt.Errorf("stake %s exceeds available bankroll %s",
				total.StringFixed(2), avail.StringFixed(2))
		}
	}

	// Worst case one leg goes naked and loses its whole stake. If that alone
	// would breach the daily loss limit, the trade is not worth the tail.
	if m.limits.MaxDailyLossUSD > 0 {
		floor := decimal.NewFromFloat(-m.limits.MaxDailyLossUSD)
		if m.ledger.dailyPnL.Sub(worstLoss).LessThan(floor) {
			return fmt.Errorf("worst-case loss %s would breach daily loss limit", worstLoss.StringFixed(2))
		}
	}
	return nil
}

// RecordAttempt books a terminal attempt into the ledger: fills move open
// notional and daily counters, the success path settles realized edge as
// P&L, naked exposure registers the unhedged position, and leg rejections
// feed throttle detection. The kill switch is evaluated after every update.
func (m *Manager) RecordAttempt(a domain.ExecutionAttempt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	m.ledger.rollDay(now)

	for _, leg := range a.Legs {
		if leg.State.Filled() {
			m.ledger.addFill(leg.Venue, decimal.NewFromFloat(leg.Stake), now)
		}
		// Throttle detection watches for account-level bans at the books.
		// Exchange rejections are order-level noise and never count.
		if leg.State == domain.LegRejected && leg.Venue != domain.VenueKalshi {
			m.noteRejection(leg.Venue, now)
		}
	}

	switch a.Outcome {
	case domain.OutcomeBothFilled, domain.OutcomeLeg2Partial:
		// Edge is per contract, so the matched size must be in contract
		// units too; book legs fill in stake dollars.
		profit := decimal.NewFromFloat(a.RealizedEdge * a.HedgedContracts())
		m.ledger.settle(a.Legs[0].Venue, profit)
	case domain.OutcomeNakedExposure:
		leg1 := a.Legs[0]
		m.ledger.naked = append(m.ledger.naked, domain.NakedPosition{
			AttemptID:  a.ID,
			Venue:      leg1.Venue,
			Instrument: leg1.Instrument,
			Outcome:    leg1.Outcome,
			Size:       leg1.FilledSize,
			Price:      leg1.FilledPrice,
			CreatedAt:  now,
		})
	}

	m.checkKillSwitch()
}

// ResolveNaked closes out an unhedged position with its realized P&L.
func (m *Manager) ResolveNaked(attemptID string, venue domain.VenueID, stake, pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger.rollDay(m.clock.Now())

	kept := m.ledger.naked[:0]
	for _, n := range m.ledger.naked {
		if n.AttemptID != attemptID {
			kept = append(kept, n)
		}
	}
	m.ledger.naked = kept
	m.ledger.release(venue, decimal.NewFromFloat(stake))
	m.ledger.settle(venue, decimal.NewFromFloat(pnl))
	m.checkKillSwitch()
}

func (m *Manager) noteRejection(v domain.VenueID, now time.Time) {
	s := m.ledger.venue(v)
	cutoff := now.Add(-m.limits.ThrottleWindow)
	recent := s.rejections[:0]
	for _, t := range s.rejections {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	s.rejections = append(recent, now)
	if !s.throttled && len(s.rejections) >= m.limits.ThrottleRejections {
		s.throttled = true
		s.throttledAt = now
		m.logger.Warn("venue throttled",
			slog.String("venue", string(v)),
			slog.Int("rejections", len(s.rejections)))
	}
}

// ClearThrottle manually re-admits a venue to rotation.
func (m *Manager) ClearThrottle(v domain.VenueID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.ledger.venue(v)
	s.throttled = false
	s.rejections = nil
	m.logger.Info("venue throttle cleared", slog.String("venue", string(v)))
}

func (m *Manager) checkKillSwitch() {
	if m.ledger.halted {
		return
	}
	if m.limits.MaxDailyLossUSD > 0 {
		floor := decimal.NewFromFloat(-m.limits.MaxDailyLossUSD)
		if m.ledger.dailyPnL.LessThanOrEqual(floor) {
			m.halt(fmt.Sprintf("daily loss limit: %s", m.ledger.dailyPnL.StringFixed(2)))
			return
		}
	}
	if m.limits.MaxDrawdownUSD > 0 {
		drawdown := m.ledger.highWater.Sub(m.ledger.cumPnL)
		if drawdown.GreaterThanOrEqual(decimal.NewFromFloat(m.limits.MaxDrawdownUSD)) {
			m.halt(fmt.Sprintf("drawdown from high-water mark: %s", drawdown.StringFixed(2)))
		}
	}
}

func (m *Manager) halt(reason string) {
	m.ledger.halted = true
	m.ledger.haltReason = reason
	m.logger.Error("kill switch engaged", slog.String("reason", reason))
	if m.alerter != nil {
		go m.alerter.Alert(context.Background(), "critical", "kill switch engaged",
			map[string]string{"reason": reason})
	}
}

// Halt trips the kill switch manually.
func (m *Manager) Halt(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.halt(reason)
}

// Reset clears the kill switch. Exposure and P&L are untouched; if the
// breaching condition still holds the next recorded attempt re-trips it.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger.halted = false
	m.ledger.haltReason = ""
	m.logger.Info("kill switch reset")
}

// Halted reports the kill switch state.
func (m *Manager) Halted() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger.halted, m.ledger.haltReason
}

// Snapshot returns a consistent copy of the exposure state.
func (m *Manager) Snapshot() domain.ExposureSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger.rollDay(m.clock.Now())
	return m.ledger.snapshot()
}
