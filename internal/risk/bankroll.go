package risk

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

// Bankroll accounting. The working bankroll is Limits.BankrollUSD plus any
// reserve already released; available bankroll nets out realized P&L and the
// notional currently tied up in open positions. Approve draws against the
// available number so a burst of approvals cannot stake money the book does
// not have.

// AvailableBankroll reports the capital free for new stakes right now.
func (m *Manager) AvailableBankroll() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.availableBankroll()
}

func (m *Manager) availableBankroll() decimal.Decimal {
	base := decimal.NewFromFloat(m.limits.BankrollUSD).Add(m.ledger.reserveFreed)
	return base.Add(m.ledger.cumPnL).Sub(m.ledger.globalOpen)
}

// ReleaseReserve moves one ReserveStepUSD slice of the reserve into the
// working bankroll. It refuses until ReserveMinSettled bets have settled
// with positive cumulative P&L, and once the reserve is exhausted.
func (m *Manager) ReleaseReserve() (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ledger.settled < m.limits.ReserveMinSettled {
		return decimal.Zero, fmt.Errorf("reserve locked: %d settled bets, need %d",
			m.ledger.settled, m.limits.ReserveMinSettled)
	}
	if !m.ledger.cumPnL.IsPositive() {
		return decimal.Zero, fmt.Errorf("reserve locked: cumulative P&L %s not positive",
			m.ledger.cumPnL.StringFixed(2))
	}
	remaining := decimal.NewFromFloat(m.limits.ReserveUSD).Sub(m.ledger.reserveFreed)
	if !remaining.IsPositive() {
		return decimal.Zero, fmt.Errorf("reserve exhausted")
	}
	step := decimal.NewFromFloat(m.limits.ReserveStepUSD)
	if step.GreaterThan(remaining) {
		step = remaining
	}
	m.ledger.reserveFreed = m.ledger.reserveFreed.Add(step)
	m.logger.Info("reserve released",
		slog.String("amount", step.StringFixed(2)),
		slog.String("freed_total", m.ledger.reserveFreed.StringFixed(2)))
	return step, nil
}

// SeedPnL primes the ledger with realized P&L journaled before this process
// started, so the loss limits and the bankroll survive a restart.
func (m *Manager) SeedPnL(daily, cumulative float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger.rollDay(m.clock.Now())
	m.ledger.dailyPnL = decimal.NewFromFloat(daily)
	m.ledger.cumPnL = decimal.NewFromFloat(cumulative)
	if m.ledger.cumPnL.GreaterThan(m.ledger.highWater) {
		m.ledger.highWater = m.ledger.cumPnL
	}
	m.checkKillSwitch()
}
