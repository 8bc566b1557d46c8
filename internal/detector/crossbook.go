package detector

import (
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/sportsarb/internal/domain"
	"github.com/alanyoungcy/sportsarb/internal/odds"
)

// bookPrice is one book's actual price on one outcome. Raw implieds, not
// de-vigged: a cross-book bet settles at the posted odds, so the vig estimate
// has no role here.
type bookPrice struct {
	venue    domain.VenueID
	american int
	implied  float64
	// effective carries the book's fee as a cost markup, mirroring the
	// payout haircut the fee table applies.
	effective float64
}

// twoWayMarket names one complementary outcome pair to price across books:
// home/away moneyline, home/away at a spread point, or over/under at a total.
type twoWayMarket struct {
	market domain.MarketType
	sideA  string
	sideB  string
	pointA *float64
	pointB *float64
}

// EvaluateCrossBook looks for complementary outcomes priced below 1.0
// combined across two books: moneyline, plus every spread point and total
// the books quote. At most one opportunity is emitted per event, the best
// net edge across all markets, with the cheapest price on each side.
func (d *Detector) EvaluateCrossBook(now time.Time, ev domain.OddsEvent) (domain.Opportunity, bool) {
	if !d.cfg.CrossBook {
		return domain.Opportunity{}, false
	}

	var bestOpp domain.Opportunity
	found := false
	for _, tw := range d.twoWayMarkets(ev, now) {
		sideA, okA := d.cheapestOutcome(ev, tw.market, tw.sideA, tw.pointA, now)
		sideB, okB := d.cheapestOutcome(ev, tw.market, tw.sideB, tw.pointB, now)
		if !okA || !okB || sideA.venue == sideB.venue {
			continue
		}
		opp, ok := d.crossBookOpportunity(now, ev, tw, sideA, sideB)
		if ok && (!found || opp.NetEdge > bestOpp.NetEdge) {
			bestOpp = opp
			found = true
		}
	}
	return bestOpp, found
}

// twoWayMarkets enumerates the complementary pairs quoted for the event:
// the moneyline, each spread point offered on the home side, and each total.
func (d *Detector) twoWayMarkets(ev domain.OddsEvent, now time.Time) []twoWayMarket {
	markets := []twoWayMarket{{
		market: domain.MarketMoneyline,
		sideA:  ev.HomeTeam,
		sideB:  ev.AwayTeam,
	}}

	spreadPoints := map[float64]bool{}
	totalPoints := map[float64]bool{}
	for _, book := range ev.Books {
		if d.lineExpired(book, now) {
			continue
		}
		if lines, ok := book.FindMarket(domain.MarketSpread); ok {
			for _, o := range lines.Outcomes {
				if o.Name == ev.HomeTeam && o.Point != nil {
					spreadPoints[*o.Point] = true
				}
			}
		}
		if lines, ok := book.FindMarket(domain.MarketTotal); ok {
			for _, o := range lines.Outcomes {
				if o.Point != nil {
					totalPoints[*o.Point] = true
				}
			}
		}
	}

	for p := range spreadPoints {
		home, away := p, -p
		markets = append(markets, twoWayMarket{
			market: domain.MarketSpread,
			sideA:  ev.HomeTeam,
			sideB:  ev.AwayTeam,
			pointA: &home,
			pointB: &away,
		})
	}
	for p := range totalPoints {
		point := p
		markets = append(markets, twoWayMarket{
			market: domain.MarketTotal,
			sideA:  "Over",
			sideB:  "Under",
			pointA: &point,
			pointB: &point,
		})
	}
	return markets
}

func (d *Detector) crossBookOpportunity(now time.Time, ev domain.OddsEvent, tw twoWayMarket, sideA, sideB bookPrice) (domain.Opportunity, bool) {
	gross := 1 - (sideA.implied + sideB.implied)
	net := 1 - (sideA.effective + sideB.effective)
	if net < d.cfg.MinEdge {
		return domain.Opportunity{}, false
	}

	// Stakes split proportionally to the implieds so both outcomes pay out
	// the same total. The per-leg dollar cap bounds the split.
	total := 2 * d.cfg.MaxStakeUSD
	stakeA, stakeB := odds.ProportionalStakes(total, sideA.implied, sideB.implied)
	if stakeA > d.cfg.MaxStakeUSD || stakeB > d.cfg.MaxStakeUSD {
		scale := d.cfg.MaxStakeUSD / max(stakeA, stakeB)
		stakeA *= scale
		stakeB *= scale
	}

	legA := domain.PlannedLeg{
		Venue:      sideA.venue,
		Instrument: ev.ID,
		Market:     tw.market,
		Outcome:    tw.sideA,
		Price:      sideA.implied,
		American:   sideA.american,
		Point:      tw.pointA,
		Size:       stakeA,
		Stake:      stakeA,
		Liquidity:  d.cfg.MaxStakeUSD,
	}
	legB := domain.PlannedLeg{
		Venue:      sideB.venue,
		Instrument: ev.ID,
		Market:     tw.market,
		Outcome:    tw.sideB,
		Price:      sideB.implied,
		American:   sideB.american,
		Point:      tw.pointB,
		Size:       stakeB,
		Stake:      stakeB,
		Liquidity:  d.cfg.MaxStakeUSD,
	}

	pair := domain.MatchedPair{
		EventID:         ev.ID,
		OddsOutcome:     tw.sideA,
		OppOutcome:      tw.sideB,
		Books:           []domain.VenueID{sideA.venue, sideB.venue},
		Confidence:      1, // both legs quote the same odds event
		MatchedAt:       now,
		ExchangeOutcome: "",
		Basis:           domain.MatchBasis{MarketType: tw.market},
	}

	opp := domain.Opportunity{
		ID:         uuid.NewString(),
		Kind:       domain.OppCrossBook,
		Pair:       pair,
		GrossEdge:  gross,
		NetEdge:    net,
		MaxSize:    stakeA + stakeB,
		Legs:       orderLegs(legA, legB),
		DetectedAt: now,
	}
	d.logger.Debug("cross-book opportunity",
		slog.String("event", ev.ID),
		slog.String("market", string(tw.market)),
		slog.Float64("net_edge", net),
		slog.String("side_a_book", string(sideA.venue)),
		slog.String("side_b_book", string(sideB.venue)))
	return opp, true
}

// cheapestOutcome finds the lowest effective implied probability offered on
// the named outcome (at the given point, when the market carries one) across
// the event's live books.
func (d *Detector) cheapestOutcome(ev domain.OddsEvent, market domain.MarketType, outcome string, point *float64, now time.Time) (bookPrice, bool) {
	var best bookPrice
	found := false
	for _, book := range ev.Books {
		if d.lineExpired(book, now) {
			continue
		}
		lines, ok := book.FindMarket(market)
		if !ok {
			continue
		}
		for _, o := range lines.Outcomes {
			if o.Name != outcome || !pointsEqual(o.Point, point) {
				continue
			}
			implied, err := odds.AmericanToImplied(o.American)
			if err != nil {
				continue
			}
			// Adjust haircuts the payout by the fee; mirroring it onto the
			// cost side marks the implied up by the same rate.
			effective := 2*implied - d.fees.Book(string(book.Venue)).Adjust(implied)
			if !found || effective < best.effective {
				best = bookPrice{
					venue:     book.Venue,
					american:  o.American,
					implied:   implied,
					effective: effective,
				}
				found = true
			}
		}
	}
	return best, found
}

func (d *Detector) lineExpired(book domain.BookLines, now time.Time) bool {
	return !book.LastUpdate.IsZero() && now.Sub(book.LastUpdate) > d.cfg.LineMaxAge
}

func pointsEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return math.Abs(*a-*b) < 1e-9
}
