package kalshi

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// --------------------------------------------------------------------------
// REST DTOs
// --------------------------------------------------------------------------

type marketDTO struct {
	Ticker      string `json:"ticker"`
	EventTicker string `json:"event_ticker"`
	Title       string `json:"title"`
	Status      string `json:"status"` // "open", "closed", "settled"
	YesBid      int    `json:"yes_bid"`
	YesAsk      int    `json:"yes_ask"`
	Volume24H   int64  `json:"volume_24h"`
	CloseTime   string `json:"close_time"`
}

type orderbookDTO struct {
	Yes [][2]int `json:"yes"` // [price_cents, count], resting YES bids
	No  [][2]int `json:"no"`  // resting NO bids; a NO bid at p is a YES ask at 100-p
}

type orderDTO struct {
	OrderID        string `json:"order_id"`
	Ticker         string `json:"ticker"`
	Status         string `json:"status"` // "resting", "canceled", "executed", "pending"
	YesPrice       int    `json:"yes_price"`
	RemainingCount int    `json:"remaining_count"`
	TakerFillCount int    `json:"taker_fill_count"`
	TakerFillCost  int    `json:"taker_fill_cost"` // cents, total
	MakerFillCount int    `json:"maker_fill_count"`
	MakerFillCost  int    `json:"maker_fill_cost"`
}

type orderRequestDTO struct {
	Ticker   string `json:"ticker"`
	Action   string `json:"action"` // "buy"
	Side     string `json:"side"`   // "yes" or "no"
	Type     string `json:"type"`   // "limit"
	Count    int    `json:"count"`
	YesPrice *int   `json:"yes_price,omitempty"`
	NoPrice  *int   `json:"no_price,omitempty"`
	ClientID string `json:"client_order_id,omitempty"`
}

type errorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// wsEnvelope wraps every message on the market-data socket.
type wsEnvelope struct {
	Type string          `json:"type"` // "orderbook_snapshot", "orderbook_delta", ...
	Msg  json.RawMessage `json:"msg"`
	SID  int64           `json:"sid"`
}

type wsOrderbook struct {
	Ticker string   `json:"market_ticker"`
	Yes    [][2]int `json:"yes"`
	No     [][2]int `json:"no"`
}

type wsSubscribeCmd struct {
	ID     int64             `json:"id"`
	Cmd    string            `json:"cmd"`
	Params wsSubscribeParams `json:"params"`
}

type wsSubscribeParams struct {
	Channels []string `json:"channels"`
	Tickers  []string `json:"market_tickers"`
}

// --------------------------------------------------------------------------
// Conversions
// --------------------------------------------------------------------------

// toSnapshot converts exchange book levels to the domain snapshot. The venue
// reports resting YES bids and resting NO bids; a NO bid at p cents is a YES
// ask at 100-p. Bids come back sorted ascending, so best-first means walking
// them in reverse.
func toSnapshot(ticker string, yes, no [][2]int, ts time.Time) domain.OrderbookSnapshot {
	snap := domain.OrderbookSnapshot{Ticker: ticker, Timestamp: ts}
	for i := len(yes) - 1; i >= 0; i-- {
		snap.YesBids = append(snap.YesBids, domain.PriceLevel{
			PriceCents: yes[i][0],
			Count:      yes[i][1],
		})
	}
	for i := len(no) - 1; i >= 0; i-- {
		snap.YesAsks = append(snap.YesAsks, domain.PriceLevel{
			PriceCents: 100 - no[i][0],
			Count:      no[i][1],
		})
	}
	return snap
}

// toInstrument parses one market into a domain instrument. Game markets title
// as "Away at Home Winner?" and ticker as SERIES-DATECODE-ABBREV; the
// abbreviation picks which side this market pays on. Markets whose side
// cannot be determined are skipped.
func toInstrument(m marketDTO, series string) (domain.Instrument, bool) {
	title := strings.TrimSuffix(m.Title, " Winner?")
	away, home, ok := strings.Cut(title, " at ")
	if !ok {
		return domain.Instrument{}, false
	}
	away = strings.TrimSpace(away)
	home = strings.TrimSpace(home)

	parts := strings.Split(m.Ticker, "-")
	if len(parts) < 3 {
		return domain.Instrument{}, false
	}
	abbrev := strings.ToUpper(parts[len(parts)-1])

	outcome := ""
	switch {
	case strings.Contains(squash(home), abbrev):
		outcome = home
	case strings.Contains(squash(away), abbrev):
		outcome = away
	default:
		return domain.Instrument{}, false
	}

	inst := domain.Instrument{
		Ticker:      m.Ticker,
		EventTicker: m.EventTicker,
		Series:      series,
		Title:       m.Title,
		Outcome:     outcome,
		HomeTeam:    home,
		AwayTeam:    away,
		YesBidCents: m.YesBid,
		YesAskCents: m.YesAsk,
		Volume24h:   m.Volume24H,
		Status:      m.Status,
	}
	if m.CloseTime != "" {
		if t, err := time.Parse(time.RFC3339, m.CloseTime); err == nil {
			inst.StartTime = t
		}
	}
	return inst, true
}

func squash(name string) string {
	return strings.ToUpper(strings.NewReplacer(" ", "", ".", "").Replace(name))
}

// orderState maps the venue's order status plus fill counts to a leg state.
func orderState(o orderDTO) domain.OrderStatus {
	filled := o.TakerFillCount + o.MakerFillCount
	status := domain.OrderStatus{
		FilledCount:    filled,
		RemainingCount: o.RemainingCount,
	}
	if filled > 0 {
		cost := o.TakerFillCost + o.MakerFillCost
		status.AvgPriceCents = float64(cost) / float64(filled)
	}
	switch o.Status {
	case "executed":
		status.State = domain.LegFilled
	case "canceled":
		if filled > 0 {
			status.State = domain.LegPartiallyFilled
		} else {
			status.State = domain.LegCancelled
		}
	case "resting", "pending":
		if filled > 0 {
			status.State = domain.LegPartiallyFilled
		} else {
			status.State = domain.LegSubmitted
		}
	default:
		status.State = domain.LegRejected
	}
	return status
}
