// Package domain defines the core types shared across the arbitrage engine:
// venue clients, quotes, matched pairs, opportunities, execution attempts, and
// the store/cache interfaces implemented by the infrastructure packages.
package domain

import (
	"context"
	"time"
)

// VenueID identifies a trading venue ("kalshi", "fanduel", "draftkings", ...).
type VenueID string

// VenueKalshi is the exchange venue; odds venues are identified by the
// bookmaker keys returned by the lines provider.
const VenueKalshi VenueID = "kalshi"

// Side is the side of a binary contract on the exchange venue.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// MarketType classifies a market so only compatible types are matched across
// venues: a moneyline pairs with a binary winner contract, a spread with a
// spread contract, a total with an above/below contract.
type MarketType string

const (
	MarketMoneyline MarketType = "h2h"
	MarketSpread    MarketType = "spreads"
	MarketTotal     MarketType = "totals"
)

// InstrumentFilter narrows an exchange instrument listing.
type InstrumentFilter struct {
	Series []string // e.g. ["KXNBAGAME", "KXNHLGAME"]
	Status string   // e.g. "open"
}

// OrderRequest is a limit order on the exchange venue. Prices are in cents
// (1..99) per the exchange's native representation.
type OrderRequest struct {
	Ticker     string
	Side       Side
	PriceCents int
	Count      int
	ClientID   string // idempotency key
}

// OrderHandle references a resting or completed exchange order.
type OrderHandle struct {
	Venue   VenueID
	OrderID string
}

// OrderStatus is the venue-reported state of an order.
type OrderStatus struct {
	State          LegState
	FilledCount    int
	AvgPriceCents  float64
	RemainingCount int
}

// ExchangeClient is the contract the coordinator and scanner consume for the
// exchange venue. Implementations must surface rate limiting as
// ErrRateLimited so callers can back off without counting a failure.
type ExchangeClient interface {
	GetInstruments(ctx context.Context, filter InstrumentFilter) ([]Instrument, error)
	GetOrderbook(ctx context.Context, ticker string) (OrderbookSnapshot, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderHandle, error)
	GetOrderStatus(ctx context.Context, handle OrderHandle) (OrderStatus, error)
	CancelOrder(ctx context.Context, handle OrderHandle) error
}

// LineQuery selects which odds-venue lines to fetch.
type LineQuery struct {
	SportKey    string // e.g. "basketball_nba"
	Regions     []string
	MarketTypes []MarketType
}

// OddsClient fetches fixed-odds lines. A single client may aggregate many
// bookmaker venues (each OddsEvent carries per-book lines).
type OddsClient interface {
	GetLines(ctx context.Context, q LineQuery) ([]OddsEvent, error)
}

// BetRequest is a single fixed-odds bet at one bookmaker.
type BetRequest struct {
	Venue    VenueID
	EventID  string
	Market   MarketType
	Outcome  string
	American int // odds at which the bet was priced
	Point    *float64
	Stake    float64 // dollars
	ClientID string
}

// BetResult reports the outcome of a bet placement.
type BetResult struct {
	Accepted bool
	BetID    string
	Stake    float64 // stake actually accepted (may be below requested)
	American int     // odds actually given
	Message  string
}

// BetPlacer is the optional placement capability of an odds venue. Venues
// without it are read-only: their lines feed detection but their leg must be
// routed to a venue that can place. Dispatch is by venue id.
type BetPlacer interface {
	PlaceBet(ctx context.Context, req BetRequest) (BetResult, error)
}

// VenueCaps describes what the engine may do at each venue.
type VenueCaps struct {
	Venue    VenueID
	CanPlace bool
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock.
type RealClock struct{}

// Now returns the current UTC time.
func (RealClock) Now() time.Time { return time.Now().UTC() }
