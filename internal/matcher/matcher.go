package matcher

import (
	"log/slog"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// Config tunes the pairing scorer. Zero values fall back to defaults.
type Config struct {
	// Threshold is the minimum weighted confidence for a pair to be emitted.
	Threshold float64
	// TimeTolerance bounds the start-time proximity component. Events further
	// apart than this score zero on time.
	TimeTolerance time.Duration

	NameWeight float64
	TimeWeight float64
	TypeWeight float64

	// SeriesSports maps an exchange series to the odds-venue sport key its
	// events come from. A mapped series never pairs outside its sport; an
	// unmapped series pairs anywhere.
	SeriesSports map[string]string
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = 0.85
	}
	if c.TimeTolerance <= 0 {
		c.TimeTolerance = 2 * time.Hour
	}
	if c.SeriesSports == nil {
		c.SeriesSports = map[string]string{
			"KXNBAGAME": "basketball_nba",
			"KXNHLGAME": "icehockey_nhl",
			"KXNFLGAME": "americanfootball_nfl",
			"KXMLBGAME": "baseball_mlb",
		}
	}
	if c.NameWeight <= 0 && c.TimeWeight <= 0 && c.TypeWeight <= 0 {
		c.NameWeight = 0.5
		c.TimeWeight = 0.3
		c.TypeWeight = 0.2
	}
	return c
}

// Matcher pairs exchange instruments with odds-venue events by weighted
// participant-name similarity, start-time proximity, and market-type
// compatibility. It holds no state between cycles; pairs are recomputed from
// scratch every scan.
type Matcher struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Matcher {
	return &Matcher{
		cfg:    cfg.withDefaults(),
		logger: logger.With(slog.String("component", "matcher")),
	}
}

// Pair scores every instrument against every odds event and returns the best
// pairing per instrument that clears the confidence threshold. Ties within
// epsilon break on time proximity, then name similarity.
func (m *Matcher) Pair(now time.Time, instruments []domain.Instrument, events []domain.OddsEvent) []domain.MatchedPair {
	pairs := make([]domain.MatchedPair, 0, len(instruments))
	for _, inst := range instruments {
		best, ok := m.bestCandidate(inst, events)
		if !ok {
			continue
		}
		best.pair.MatchedAt = now
		pairs = append(pairs, best.pair)
	}
	m.logger.Debug("pairing complete",
		slog.Int("instruments", len(instruments)),
		slog.Int("events", len(events)),
		slog.Int("pairs", len(pairs)))
	return pairs
}

type candidate struct {
	pair      domain.MatchedPair
	timeDelta time.Duration
}

const scoreEpsilon = 1e-9

func (m *Matcher) bestCandidate(inst domain.Instrument, events []domain.OddsEvent) (candidate, bool) {
	outcome := inst.OutcomeFull
	if outcome == "" {
		if full, ok := ResolveTeam(inst.Outcome, inst.Series); ok {
			outcome = full
		} else {
			outcome = inst.Outcome
		}
	}
	if outcome == "" {
		return candidate{}, false
	}

	var best candidate
	found := false
	for _, ev := range events {
		if !m.sportCompatible(inst.Series, ev.SportKey) {
			continue
		}
		cand, ok := m.score(inst, outcome, ev)
		if !ok || cand.pair.Confidence < m.cfg.Threshold {
			continue
		}
		if !found || better(cand, best) {
			best = cand
			found = true
		}
	}
	return best, found
}

// sportCompatible gates candidates by category. Cross-sport team names
// collide often enough (shared cities, shared nicknames) that name similarity
// alone cannot be trusted across leagues.
func (m *Matcher) sportCompatible(series, sportKey string) bool {
	want, ok := m.cfg.SeriesSports[series]
	if !ok || sportKey == "" {
		return true
	}
	return sportKey == want
}

func better(a, b candidate) bool {
	if a.pair.Confidence > b.pair.Confidence+scoreEpsilon {
		return true
	}
	if b.pair.Confidence > a.pair.Confidence+scoreEpsilon {
		return false
	}
	if a.timeDelta != b.timeDelta {
		return a.timeDelta < b.timeDelta
	}
	return a.pair.Basis.NameScore > b.pair.Basis.NameScore
}

func (m *Matcher) score(inst domain.Instrument, outcome string, ev domain.OddsEvent) (candidate, bool) {
	// An exchange binary winner market only pairs with a moneyline market.
	books := booksWithMarket(ev, domain.MarketMoneyline)
	typeScore := 0.0
	if len(books) > 0 {
		typeScore = 1.0
	}

	homeScore := Similarity(outcome, ev.HomeTeam)
	awayScore := Similarity(outcome, ev.AwayTeam)
	nameScore, oddsOutcome, oppOutcome := homeScore, ev.HomeTeam, ev.AwayTeam
	if awayScore > homeScore {
		nameScore, oddsOutcome, oppOutcome = awayScore, ev.AwayTeam, ev.HomeTeam
	}

	delta := inst.StartTime.Sub(ev.CommenceTime)
	if delta < 0 {
		delta = -delta
	}
	timeScore := 0.0
	if delta < m.cfg.TimeTolerance {
		timeScore = 1.0 - float64(delta)/float64(m.cfg.TimeTolerance)
	}

	conf := m.cfg.NameWeight*nameScore + m.cfg.TimeWeight*timeScore + m.cfg.TypeWeight*typeScore
	if conf <= 0 {
		return candidate{}, false
	}
	return candidate{
		pair: domain.MatchedPair{
			InstrumentTicker: inst.Ticker,
			ExchangeOutcome:  outcome,
			EventID:          ev.ID,
			OddsOutcome:      oddsOutcome,
			OppOutcome:       oppOutcome,
			Books:            books,
			Confidence:       conf,
			Basis: domain.MatchBasis{
				NameScore:  nameScore,
				TimeScore:  timeScore,
				MarketType: domain.MarketMoneyline,
			},
		},
		timeDelta: delta,
	}, true
}

func booksWithMarket(ev domain.OddsEvent, t domain.MarketType) []domain.VenueID {
	var venues []domain.VenueID
	for _, b := range ev.Books {
		if _, ok := b.FindMarket(t); ok {
			venues = append(venues, b.Venue)
		}
	}
	return venues
}

// Similarity returns the normalized Levenshtein ratio of two names in [0, 1],
// case-insensitive. Identical strings score 1.
func Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1.0
	}
	longest := len([]rune(a))
	if n := len([]rune(b)); n > longest {
		longest = n
	}
	if longest == 0 {
		return 0.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longest)
}
