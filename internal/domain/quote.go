package domain

import "time"

// Instrument is a binary contract on the exchange venue. One game produces two
// instruments (one per team); the Outcome field names the team whose win the
// YES side pays on.
type Instrument struct {
	Ticker      string
	EventTicker string
	Series      string // e.g. "KXNBAGAME"
	Title       string
	Outcome     string // short team name, e.g. "Oklahoma City"
	OutcomeFull string // resolved full name, e.g. "Oklahoma City Thunder"
	HomeTeam    string
	AwayTeam    string
	StartTime   time.Time
	YesBidCents int
	YesAskCents int
	Volume24h   int64
	Status      string
}

// PriceLevel is one price+size entry in an exchange orderbook.
type PriceLevel struct {
	PriceCents int
	Count      int
}

// OrderbookSnapshot is the exchange book for one instrument at a point in
// time. YesAsks are sorted best (lowest) first, YesBids best (highest) first.
type OrderbookSnapshot struct {
	Ticker    string
	YesBids   []PriceLevel
	YesAsks   []PriceLevel
	Timestamp time.Time
}

// BestYesAsk returns the lowest ask and its displayed size, or (0, 0) when the
// book is empty on that side.
func (s OrderbookSnapshot) BestYesAsk() (priceCents, count int) {
	if len(s.YesAsks) == 0 {
		return 0, 0
	}
	return s.YesAsks[0].PriceCents, s.YesAsks[0].Count
}

// BestYesBid returns the highest bid and its displayed size.
func (s OrderbookSnapshot) BestYesBid() (priceCents, count int) {
	if len(s.YesBids) == 0 {
		return 0, 0
	}
	return s.YesBids[0].PriceCents, s.YesBids[0].Count
}

// LineOutcome is one priced outcome at one bookmaker.
type LineOutcome struct {
	Name     string
	American int      // e.g. -150, +240
	Point    *float64 // spread/total value when applicable
}

// MarketLines is one market type at one bookmaker.
type MarketLines struct {
	Type     MarketType
	Outcomes []LineOutcome
}

// BookLines groups one bookmaker's markets for an event.
type BookLines struct {
	Venue      VenueID
	Title      string
	LastUpdate time.Time
	Markets    []MarketLines
}

// OddsEvent is one real-world event as priced by the odds venues.
type OddsEvent struct {
	ID           string
	SportKey     string
	CommenceTime time.Time
	HomeTeam     string
	AwayTeam     string
	Books        []BookLines
}

// Name returns the display name "Home vs Away".
func (e OddsEvent) Name() string { return e.HomeTeam + " vs " + e.AwayTeam }

// FindMarket returns the lines of the given type at the given book, or false.
func (b BookLines) FindMarket(t MarketType) (MarketLines, bool) {
	for _, m := range b.Markets {
		if m.Type == t {
			return m, true
		}
	}
	return MarketLines{}, false
}

// PriceKind distinguishes the native price representation of a Quote.
type PriceKind int

const (
	PriceProb     PriceKind = iota // probability-denominated (exchange, 0..1)
	PriceAmerican                  // American odds (odds venues)
)

// Quote is one venue's price for one side of one event at a point in time.
// Immutable once created.
type Quote struct {
	Venue        VenueID
	InstrumentID string // exchange ticker or odds event id
	Outcome      string
	Kind         PriceKind
	Prob         float64 // set when Kind == PriceProb
	American     int     // set when Kind == PriceAmerican
	Size         float64 // displayed size (contracts or notional headroom)
	Timestamp    time.Time
}

// NormalizedQuote is a Quote translated to implied probability plus a
// fee-adjusted achievable probability. Derived on demand from its source
// Quote, never persisted independently.
type NormalizedQuote struct {
	Quote
	Implied     float64 // implied probability before fees, after de-vig
	FeeAdjusted float64 // achievable probability after the venue's fee model
}

// Age reports how old the quote is relative to now.
func (q Quote) Age(now time.Time) time.Duration { return now.Sub(q.Timestamp) }
