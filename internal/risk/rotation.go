package risk

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// SelectBook picks one odds venue from the candidates offering equivalent
// lines. Preference order: most remaining daily headroom, then least recent
// activity (spreads flow across venues over time), then highest remaining
// per-bet cap. Throttled venues are excluded; false means no venue is
// eligible.
func (m *Manager) SelectBook(candidates []domain.VenueID) (domain.VenueID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger.rollDay(m.clock.Now())

	var best domain.VenueID
	found := false
	var bestHeadroom, bestBetCap decimal.Decimal
	var bestState *venueState

	dailyCap := decimal.NewFromFloat(m.limits.MaxDailyVolumeUSD)
	for _, v := range candidates {
		s := m.ledger.venue(v)
		if s.throttled {
			continue
		}
		headroom := dailyCap.Sub(s.dailyVolume)
		if !headroom.IsPositive() {
			continue
		}
		betCap := m.limits.betCap(v)

		if !found {
			best, bestHeadroom, bestBetCap, bestState, found = v, headroom, betCap, s, true
			continue
		}
		switch {
		case headroom.GreaterThan(bestHeadroom):
		case headroom.Equal(bestHeadroom) && s.lastActivity.Before(bestState.lastActivity):
		case headroom.Equal(bestHeadroom) && s.lastActivity.Equal(bestState.lastActivity) &&
			betCap.GreaterThan(bestBetCap):
		default:
			continue
		}
		best, bestHeadroom, bestBetCap, bestState = v, headroom, betCap, s
	}
	return best, found
}
