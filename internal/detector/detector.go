package detector

import (
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/sportsarb/internal/domain"
	"github.com/alanyoungcy/sportsarb/internal/odds"
)

// Config tunes detection. Zero values fall back to defaults.
type Config struct {
	// MinEdge is the minimum net edge (probability space) to emit an
	// opportunity.
	MinEdge float64
	// Staleness bounds how old an orderbook snapshot may be at evaluation
	// time.
	Staleness time.Duration
	// LineMaxAge bounds a book's last_update age. The provider stamps the
	// last line *change*, not the last confirmation, so a stable line is
	// routinely minutes old and still live. Kept loose for that reason.
	LineMaxAge time.Duration
	// NoiseThreshold is the minimum edge delta for a fresher computation to
	// replace a pending opportunity for the same pair.
	NoiseThreshold float64
	// MaxContracts caps a single attempt's exchange size.
	MaxContracts int
	// MaxStakeUSD caps the dollars at risk on any single leg.
	MaxStakeUSD float64
	// CrossBook enables book-vs-book detection alongside the exchange pairs.
	CrossBook bool
}

func (c Config) withDefaults() Config {
	if c.MinEdge <= 0 {
		c.MinEdge = 0.05
	}
	if c.Staleness <= 0 {
		c.Staleness = 2 * time.Second
	}
	if c.LineMaxAge <= 0 {
		c.LineMaxAge = time.Hour
	}
	if c.NoiseThreshold <= 0 {
		c.NoiseThreshold = 0.005
	}
	if c.MaxContracts <= 0 {
		c.MaxContracts = 100
	}
	if c.MaxStakeUSD <= 0 {
		c.MaxStakeUSD = 50
	}
	return c
}

// Detector scores matched pairs against live snapshots. The edge convention
// is fixed one way and used everywhere: with the exchange side buying YES on
// outcome A,
//
//	net edge = book's fee-adjusted implied probability of A's complement
//	         - exchange's fee-adjusted ask for A
//
// A positive edge means the book prices A's complement rich relative to the
// exchange ask, so buying the cheap exchange contract and betting the
// complement at the book locks the spread.
type Detector struct {
	cfg      Config
	fees     *odds.Table
	selector VenueSelector
	logger   *slog.Logger
}

// VenueSelector breaks ties between books quoting near-equivalent lines, so
// stakes rotate across venues instead of hammering one book until it limits
// the account.
type VenueSelector interface {
	SelectBook(candidates []domain.VenueID) (domain.VenueID, bool)
}

func New(cfg Config, fees *odds.Table, logger *slog.Logger) *Detector {
	return &Detector{
		cfg:    cfg.withDefaults(),
		fees:   fees,
		logger: logger.With(slog.String("component", "detector")),
	}
}

// SetSelector installs the venue rotation policy. A nil selector keeps the
// pure best-price choice.
func (d *Detector) SetSelector(s VenueSelector) {
	d.selector = s
}

// Evaluate scores one matched pair against the exchange book and the odds
// event's lines. Returns false when no opportunity clears the threshold.
func (d *Detector) Evaluate(now time.Time, pair domain.MatchedPair, snap domain.OrderbookSnapshot, ev domain.OddsEvent) (domain.Opportunity, bool) {
	if now.Sub(snap.Timestamp) > d.cfg.Staleness {
		return domain.Opportunity{}, false
	}
	askCents, askCount := snap.BestYesAsk()
	if askCount <= 0 || askCents <= 0 || askCents >= 100 {
		return domain.Opportunity{}, false
	}
	askProb := odds.CentsToProb(askCents)
	askAdj := d.fees.Exchange().Adjust(askProb)

	best, ok := d.bestComplement(pair, ev, now)
	if !ok {
		return domain.Opportunity{}, false
	}

	gross := best.implied - askProb
	net := best.adjusted - askAdj
	if net < d.cfg.MinEdge {
		return domain.Opportunity{}, false
	}

	size := d.fillSize(askProb, askCount)
	if size <= 0 {
		return domain.Opportunity{}, false
	}

	// The exchange contract pays $1; size the book stake so a book win pays
	// the same gross amount.
	dec, err := odds.AmericanToDecimal(best.american)
	if err != nil {
		return domain.Opportunity{}, false
	}
	bookStake := size / dec

	exchangeLeg := domain.PlannedLeg{
		Venue:      domain.VenueKalshi,
		Instrument: pair.InstrumentTicker,
		Market:     domain.MarketMoneyline,
		Outcome:    pair.ExchangeOutcome,
		Side:       domain.SideYes,
		Price:      askProb,
		Size:       size,
		Stake:      size * askProb,
		Liquidity:  float64(askCount) * askProb,
	}
	bookLeg := domain.PlannedLeg{
		Venue:      best.venue,
		Instrument: pair.EventID,
		Market:     domain.MarketMoneyline,
		Outcome:    pair.OppOutcome,
		Price:      best.implied,
		American:   best.american,
		Size:       bookStake,
		Stake:      bookStake,
		Liquidity:  d.cfg.MaxStakeUSD,
	}

	opp := domain.Opportunity{
		ID:         uuid.NewString(),
		Kind:       domain.OppCrossVenue,
		Pair:       pair,
		GrossEdge:  gross,
		NetEdge:    net,
		MaxSize:    size,
		Legs:       orderLegs(exchangeLeg, bookLeg),
		DetectedAt: now,
	}
	d.logger.Debug("opportunity",
		slog.String("pair", pair.Key()),
		slog.Float64("net_edge", net),
		slog.Float64("size", size),
		slog.String("book", string(best.venue)))
	return opp, true
}

type complementPrice struct {
	venue    domain.VenueID
	american int
	implied  float64 // de-vigged, before fees
	adjusted float64 // after the book's fee model
}

// bestComplement finds the book offering the richest de-vigged, fee-adjusted
// implied probability on the pair's complementary outcome. When several books
// quote within the noise threshold of the best price, the selector (if any)
// picks among them.
func (d *Detector) bestComplement(pair domain.MatchedPair, ev domain.OddsEvent, now time.Time) (complementPrice, bool) {
	var prices []complementPrice
	for _, book := range ev.Books {
		if !book.LastUpdate.IsZero() && now.Sub(book.LastUpdate) > d.cfg.LineMaxAge {
			continue
		}
		lines, ok := book.FindMarket(domain.MarketMoneyline)
		if !ok {
			continue
		}
		side, opp, ok := twoWay(lines, pair.OddsOutcome, pair.OppOutcome)
		if !ok {
			continue
		}
		sideProb, err := odds.AmericanToImplied(side.American)
		if err != nil {
			continue
		}
		oppProb, err := odds.AmericanToImplied(opp.American)
		if err != nil {
			continue
		}
		_, implied, err := odds.DeVig(sideProb, oppProb)
		if err != nil {
			continue
		}
		adjusted := d.fees.Book(string(book.Venue)).Adjust(implied)
		prices = append(prices, complementPrice{
			venue:    book.Venue,
			american: opp.American,
			implied:  implied,
			adjusted: adjusted,
		})
	}
	if len(prices) == 0 {
		return complementPrice{}, false
	}

	best := prices[0]
	for _, p := range prices[1:] {
		if p.adjusted > best.adjusted {
			best = p
		}
	}

	if d.selector == nil {
		return best, true
	}

	// Rotate among books priced within the noise threshold of the best.
	var candidates []domain.VenueID
	byVenue := make(map[domain.VenueID]complementPrice)
	for _, p := range prices {
		if best.adjusted-p.adjusted <= d.cfg.NoiseThreshold {
			candidates = append(candidates, p.venue)
			byVenue[p.venue] = p
		}
	}
	if len(candidates) < 2 {
		return best, true
	}
	chosen, ok := d.selector.SelectBook(candidates)
	if !ok {
		return best, true
	}
	if p, present := byVenue[chosen]; present {
		return p, true
	}
	return best, true
}

func twoWay(lines domain.MarketLines, sideName, oppName string) (side, opp domain.LineOutcome, ok bool) {
	var haveSide, haveOpp bool
	for _, o := range lines.Outcomes {
		switch o.Name {
		case sideName:
			side, haveSide = o, true
		case oppName:
			opp, haveOpp = o, true
		}
	}
	return side, opp, haveSide && haveOpp
}

// fillSize bounds the exchange size by displayed liquidity, the contract cap,
// and the dollar cap.
func (d *Detector) fillSize(price float64, displayed int) float64 {
	size := float64(displayed)
	if c := float64(d.cfg.MaxContracts); c < size {
		size = c
	}
	if byStake := math.Floor(d.cfg.MaxStakeUSD / price); byStake < size {
		size = byStake
	}
	return size
}

// orderLegs puts the thinner leg first so the harder fill happens before any
// capital is committed at the deeper venue. The exchange leg leads on ties.
func orderLegs(exchange, book domain.PlannedLeg) [2]domain.PlannedLeg {
	if book.Liquidity < exchange.Liquidity {
		return [2]domain.PlannedLeg{book, exchange}
	}
	return [2]domain.PlannedLeg{exchange, book}
}
