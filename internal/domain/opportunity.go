package domain

import "time"

// OpportunityKind classifies how the edge arises.
type OpportunityKind string

const (
	// OppCrossVenue is exchange-vs-sportsbook: buy the cheap exchange
	// contract, bet the complementary outcome at the book.
	OppCrossVenue OpportunityKind = "cross_venue"
	// OppCrossBook is book-vs-book: complementary outcomes at two books whose
	// implied probabilities sum below one.
	OppCrossBook OpportunityKind = "cross_book"
)

// PlannedLeg is one atomic action within an execution plan: a single order or
// bet at a single venue.
type PlannedLeg struct {
	Venue      VenueID
	Instrument string // exchange ticker or odds event id
	Market     MarketType
	Outcome    string
	Side       Side    // exchange legs only
	Price      float64 // probability-space target price
	American   int     // odds-venue legs only
	Point      *float64
	Size       float64 // contracts (exchange); always matches Stake/Price
	Stake      float64 // dollars at risk on this leg
	Liquidity  float64 // displayed size observed at compute time
}

// Opportunity is a detected arbitrage window. Created by the detector,
// consumed exactly once by the coordinator or discarded when stale or
// superseded by a fresher computation for the same pair.
type Opportunity struct {
	ID         string
	Kind       OpportunityKind
	Pair       MatchedPair
	GrossEdge  float64       // probability-space edge before fees
	NetEdge    float64       // after both venues' fee models
	MaxSize    float64       // bounded by the thinner venue's displayed liquidity
	Legs       [2]PlannedLeg // ordered: less liquid / slower-to-confirm first
	DetectedAt time.Time
}

// Age reports how long ago the opportunity was detected.
func (o Opportunity) Age(now time.Time) time.Duration {
	return now.Sub(o.DetectedAt)
}

// Stale reports whether the opportunity has outlived the staleness bound.
func (o Opportunity) Stale(now time.Time, bound time.Duration) bool {
	return o.Age(now) > bound
}
