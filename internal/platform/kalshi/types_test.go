package kalshi

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

func TestToInstrument(t *testing.T) {
	m := marketDTO{
		Ticker:      "KXNBAGAME-26MAR14BOSMEM-BOS",
		EventTicker: "KXNBAGAME-26MAR14BOSMEM",
		Title:       "Boston at Memphis Winner?",
		Status:      "open",
		YesBid:      34,
		YesAsk:      36,
		Volume24H:   1200,
		CloseTime:   "2026-03-15T03:00:00Z",
	}

	inst, ok := toInstrument(m, "KXNBAGAME")
	if !ok {
		t.Fatal("expected a parseable instrument")
	}
	if inst.Outcome != "Boston" {
		t.Errorf("Outcome = %q, want the side picked by the ticker abbreviation", inst.Outcome)
	}
	if inst.HomeTeam != "Memphis" || inst.AwayTeam != "Boston" {
		t.Errorf("home/away = %q/%q", inst.HomeTeam, inst.AwayTeam)
	}
	if inst.StartTime.IsZero() {
		t.Error("close time must parse")
	}

	home := m
	home.Ticker = "KXNBAGAME-26MAR14BOSMEM-MEM"
	inst, ok = toInstrument(home, "KXNBAGAME")
	if !ok || inst.Outcome != "Memphis" {
		t.Errorf("home-side market Outcome = %q, want Memphis", inst.Outcome)
	}
}

func TestToInstrumentSkipsUnparseable(t *testing.T) {
	tests := []marketDTO{
		{Ticker: "KXNBAGAME-X-BOS", Title: "Some Prop Market?"},
		{Ticker: "SHORT", Title: "Boston at Memphis Winner?"},
		{Ticker: "KXNBAGAME-X-ZZZ", Title: "Boston at Memphis Winner?"},
	}
	for _, m := range tests {
		if _, ok := toInstrument(m, "KXNBAGAME"); ok {
			t.Errorf("market %q / %q must be skipped", m.Ticker, m.Title)
		}
	}
}

func TestToSnapshot(t *testing.T) {
	now := time.Now()
	// Venue reports bids ascending; a NO bid at 58 is a YES ask at 42.
	snap := toSnapshot("TICK",
		[][2]int{{30, 100}, {35, 40}},
		[][2]int{{55, 80}, {58, 25}},
		now)

	bid, bidCount := snap.BestYesBid()
	if bid != 35 || bidCount != 40 {
		t.Errorf("BestYesBid = (%d, %d), want (35, 40)", bid, bidCount)
	}
	ask, askCount := snap.BestYesAsk()
	if ask != 42 || askCount != 25 {
		t.Errorf("BestYesAsk = (%d, %d), want (42, 25)", ask, askCount)
	}
}

func TestOrderState(t *testing.T) {
	tests := []struct {
		name   string
		dto    orderDTO
		want   domain.LegState
		filled int
	}{
		{"resting unfilled", orderDTO{Status: "resting", RemainingCount: 10}, domain.LegSubmitted, 0},
		{"resting partial", orderDTO{Status: "resting", TakerFillCount: 4, TakerFillCost: 140, RemainingCount: 6}, domain.LegPartiallyFilled, 4},
		{"executed", orderDTO{Status: "executed", TakerFillCount: 6, TakerFillCost: 210, MakerFillCount: 4, MakerFillCost: 140}, domain.LegFilled, 10},
		{"cancelled clean", orderDTO{Status: "canceled"}, domain.LegCancelled, 0},
		{"cancelled after fills", orderDTO{Status: "canceled", MakerFillCount: 3, MakerFillCost: 105}, domain.LegPartiallyFilled, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := orderState(tt.dto)
			if got.State != tt.want {
				t.Errorf("State = %v, want %v", got.State, tt.want)
			}
			if got.FilledCount != tt.filled {
				t.Errorf("FilledCount = %d, want %d", got.FilledCount, tt.filled)
			}
			if tt.filled > 0 && got.AvgPriceCents != 35 {
				t.Errorf("AvgPriceCents = %v, want 35", got.AvgPriceCents)
			}
		})
	}
}

func TestCheckStatusErrorKinds(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusInternalServerError, domain.ErrVenueUnavailable},
		{http.StatusBadGateway, domain.ErrVenueUnavailable},
		{http.StatusBadRequest, domain.ErrRejected},
		{http.StatusConflict, domain.ErrRejected},
	}
	for _, tt := range tests {
		err := checkStatus(tt.code, []byte(`{"code":"x","message":"y"}`))
		if !errors.Is(err, tt.want) {
			t.Errorf("checkStatus(%d) = %v, want %v", tt.code, err, tt.want)
		}
	}
	if err := checkStatus(200, nil); err != nil {
		t.Errorf("2xx must be nil, got %v", err)
	}
}
