package matcher

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveTeam(t *testing.T) {
	tests := []struct {
		short  string
		series string
		want   string
		ok     bool
	}{
		{"Oklahoma City", "KXNBAGAME", "Oklahoma City Thunder", true},
		{"chicago", "KXNBAGAME", "Chicago Bulls", true},
		{"chicago", "KXNHLGAME", "Chicago Blackhawks", true},
		{"Los Angeles L", "KXNBAGAME", "Los Angeles Lakers", true},
		{"st. louis", "KXNHLGAME", "St. Louis Blues", true},
		{"chicago", "", "", false},
		{"narnia", "KXNBAGAME", "", false},
		{"", "KXNBAGAME", "", false},
	}
	for _, tt := range tests {
		got, ok := ResolveTeam(tt.short, tt.series)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ResolveTeam(%q, %q) = (%q, %v), want (%q, %v)",
				tt.short, tt.series, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSimilarity(t *testing.T) {
	if got := Similarity("Boston Celtics", "boston celtics"); got != 1.0 {
		t.Errorf("identical names (case-insensitive) = %v, want 1.0", got)
	}
	if got := Similarity("", ""); got != 1.0 {
		t.Errorf("two empty names = %v, want 1.0", got)
	}
	if got := Similarity("Boston Celtics", ""); got != 0.0 {
		t.Errorf("empty vs non-empty = %v, want 0.0", got)
	}
	near := Similarity("Boston Celtics", "Boston Celtic")
	far := Similarity("Boston Celtics", "Miami Heat")
	if near <= far {
		t.Errorf("one-edit name (%v) must outscore unrelated name (%v)", near, far)
	}
	if near < 0.9 {
		t.Errorf("one-edit name similarity = %v, want >= 0.9", near)
	}
}

func gameEvent(id string, commence time.Time, books ...domain.VenueID) domain.OddsEvent {
	ev := domain.OddsEvent{
		ID:           id,
		SportKey:     "basketball_nba",
		CommenceTime: commence,
		HomeTeam:     "Oklahoma City Thunder",
		AwayTeam:     "Memphis Grizzlies",
	}
	for _, v := range books {
		ev.Books = append(ev.Books, domain.BookLines{
			Venue: v,
			Markets: []domain.MarketLines{{
				Type: domain.MarketMoneyline,
				Outcomes: []domain.LineOutcome{
					{Name: ev.HomeTeam, American: -150},
					{Name: ev.AwayTeam, American: +130},
				},
			}},
		})
	}
	return ev
}

func TestPairExactMatch(t *testing.T) {
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	tip := now.Add(time.Hour)

	inst := domain.Instrument{
		Ticker:    "KXNBAGAME-26MAR14OKCMEM-OKC",
		Series:    "KXNBAGAME",
		Outcome:   "Oklahoma City",
		StartTime: tip,
	}
	ev := gameEvent("evt1", tip, "fanduel", "draftkings")

	m := New(Config{}, testLogger())
	pairs := m.Pair(now, []domain.Instrument{inst}, []domain.OddsEvent{ev})
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(pairs))
	}
	p := pairs[0]
	if p.ExchangeOutcome != "Oklahoma City Thunder" {
		t.Errorf("ExchangeOutcome = %q, alias resolution failed", p.ExchangeOutcome)
	}
	if p.OddsOutcome != "Oklahoma City Thunder" || p.OppOutcome != "Memphis Grizzlies" {
		t.Errorf("outcome split wrong: odds=%q opp=%q", p.OddsOutcome, p.OppOutcome)
	}
	if len(p.Books) != 2 {
		t.Errorf("Books = %v, want both bookmakers", p.Books)
	}
	if p.Confidence < 0.99 {
		t.Errorf("exact match confidence = %v, want ~1.0", p.Confidence)
	}
	if p.Key() != "KXNBAGAME-26MAR14OKCMEM-OKC|evt1" {
		t.Errorf("Key = %q", p.Key())
	}
}

// An NBA series must never pair into another sport's events, no matter how
// well the names score: cities and nicknames repeat across leagues.
func TestPairRespectsSeriesSport(t *testing.T) {
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	tip := now.Add(time.Hour)

	inst := domain.Instrument{
		Ticker:    "KXNBAGAME-26MAR14OKCMEM-OKC",
		Series:    "KXNBAGAME",
		Outcome:   "Oklahoma City",
		StartTime: tip,
	}
	ev := gameEvent("evt1", tip, "fanduel")
	ev.SportKey = "icehockey_nhl"

	m := New(Config{}, testLogger())
	if pairs := m.Pair(now, []domain.Instrument{inst}, []domain.OddsEvent{ev}); len(pairs) != 0 {
		t.Fatalf("got %d pairs across sports, want 0", len(pairs))
	}

	// An unmapped series carries no sport restriction.
	inst.Series = "KXELECTION"
	inst.Outcome = "Oklahoma City Thunder"
	if pairs := m.Pair(now, []domain.Instrument{inst}, []domain.OddsEvent{ev}); len(pairs) != 1 {
		t.Fatalf("unmapped series must still pair, got %d", len(pairs))
	}
}

func TestPairAwaySide(t *testing.T) {
	now := time.Now()
	inst := domain.Instrument{
		Ticker:    "KXNBAGAME-X-MEM",
		Series:    "KXNBAGAME",
		Outcome:   "Memphis",
		StartTime: now,
	}
	ev := gameEvent("evt1", now, "fanduel")

	pairs := New(Config{}, testLogger()).Pair(now, []domain.Instrument{inst}, []domain.OddsEvent{ev})
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(pairs))
	}
	if pairs[0].OddsOutcome != "Memphis Grizzlies" || pairs[0].OppOutcome != "Oklahoma City Thunder" {
		t.Errorf("away-side split wrong: %+v", pairs[0])
	}
}

func TestPairRejectsTimeMismatch(t *testing.T) {
	now := time.Now()
	inst := domain.Instrument{
		Ticker:    "KXNBAGAME-X-OKC",
		Series:    "KXNBAGAME",
		Outcome:   "Oklahoma City",
		StartTime: now,
	}
	// Same teams, but a game six hours away is a different game.
	ev := gameEvent("evt1", now.Add(6*time.Hour), "fanduel")

	pairs := New(Config{}, testLogger()).Pair(now, []domain.Instrument{inst}, []domain.OddsEvent{ev})
	if len(pairs) != 0 {
		t.Fatalf("got %d pairs, want 0", len(pairs))
	}
}

func TestPairRequiresMoneylineMarket(t *testing.T) {
	now := time.Now()
	inst := domain.Instrument{
		Ticker:    "KXNBAGAME-X-OKC",
		Series:    "KXNBAGAME",
		Outcome:   "Oklahoma City",
		StartTime: now,
	}
	ev := gameEvent("evt1", now)
	ev.Books = []domain.BookLines{{
		Venue: "fanduel",
		Markets: []domain.MarketLines{{
			Type: domain.MarketTotal,
			Outcomes: []domain.LineOutcome{
				{Name: "Over", American: -110},
				{Name: "Under", American: -110},
			},
		}},
	}}

	pairs := New(Config{}, testLogger()).Pair(now, []domain.Instrument{inst}, []domain.OddsEvent{ev})
	if len(pairs) != 0 {
		t.Fatalf("got %d pairs without a moneyline market, want 0", len(pairs))
	}
}

func TestPairPicksCloserEvent(t *testing.T) {
	now := time.Now()
	inst := domain.Instrument{
		Ticker:    "KXNBAGAME-X-OKC",
		Series:    "KXNBAGAME",
		Outcome:   "Oklahoma City",
		StartTime: now,
	}
	near := gameEvent("near", now.Add(10*time.Minute), "fanduel")
	far := gameEvent("far", now.Add(90*time.Minute), "fanduel")

	pairs := New(Config{}, testLogger()).Pair(now, []domain.Instrument{inst}, []domain.OddsEvent{far, near})
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(pairs))
	}
	if pairs[0].EventID != "near" {
		t.Errorf("picked event %q, want the closer start time", pairs[0].EventID)
	}
}

// Degrading any single component must never raise the overall confidence.
func TestConfidenceMonotonic(t *testing.T) {
	now := time.Now()
	m := New(Config{}, testLogger())
	inst := domain.Instrument{
		Ticker:    "KXNBAGAME-X-OKC",
		Series:    "KXNBAGAME",
		Outcome:   "Oklahoma City",
		StartTime: now,
	}

	base := gameEvent("base", now, "fanduel")
	basePairs := m.Pair(now, []domain.Instrument{inst}, []domain.OddsEvent{base})
	if len(basePairs) != 1 {
		t.Fatalf("baseline did not pair")
	}
	baseConf := basePairs[0].Confidence

	worseTime := gameEvent("worse-time", now.Add(time.Hour), "fanduel")
	worseName := gameEvent("worse-name", now, "fanduel")
	worseName.HomeTeam = "Oklahoma State Thunder"
	worseName.Books[0].Markets[0].Outcomes[0].Name = worseName.HomeTeam

	for _, ev := range []domain.OddsEvent{worseTime, worseName} {
		got := m.Pair(now, []domain.Instrument{inst}, []domain.OddsEvent{ev})
		if len(got) == 0 {
			continue
		}
		if got[0].Confidence > baseConf {
			t.Errorf("event %q: degraded component raised confidence %v > %v",
				ev.ID, got[0].Confidence, baseConf)
		}
	}
}
