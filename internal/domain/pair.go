package domain

import "time"

// MatchBasis records the evidence a match was scored on.
type MatchBasis struct {
	NameScore  float64 // fuzzy participant-name similarity, 0..1
	TimeScore  float64 // start-time proximity, 0..1
	MarketType MarketType
}

// MatchedPair associates one exchange instrument with the odds-venue lines
// believed to reference the same event and side. Pairs are recomputed from
// scratch each scan cycle; a stale pair is discarded, never patched.
type MatchedPair struct {
	InstrumentTicker string
	ExchangeOutcome  string // full team name the exchange YES side pays on
	EventID          string // odds event id
	OddsOutcome      string // same outcome as named by the odds venues
	OppOutcome       string // the complementary outcome on the odds side
	Books            []VenueID
	Confidence       float64 // 0..1
	Basis            MatchBasis
	MatchedAt        time.Time
}

// Key identifies the pair across cycles for dedup and in-flight guarding.
func (p MatchedPair) Key() string {
	return p.InstrumentTicker + "|" + p.EventID
}
