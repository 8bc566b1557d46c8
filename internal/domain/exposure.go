package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// NakedPosition is a filled leg with no offsetting hedge, awaiting manual or
// automated unwind.
type NakedPosition struct {
	AttemptID  string
	Venue      VenueID
	Instrument string
	Outcome    string
	Size       float64
	Price      float64
	CreatedAt  time.Time
}

// VenueExposure is the per-venue slice of the exposure ledger.
type VenueExposure struct {
	Venue        VenueID
	OpenNotional decimal.Decimal // dollars in open positions
	DailyVolume  decimal.Decimal // dollars staked today
	DailyPnL     decimal.Decimal // realized, today
	BetsToday    int
	Throttled    bool
	ThrottledAt  time.Time
	LastActivity time.Time
}

// ExposureSnapshot is a consistent read of the whole ledger. Readers never see
// the ledger mid-update; the portfolio is the single writer.
type ExposureSnapshot struct {
	Day           string // YYYY-MM-DD boundary the daily counters belong to
	Venues        map[VenueID]VenueExposure
	GlobalOpen    decimal.Decimal
	DailyPnL      decimal.Decimal
	HighWaterMark decimal.Decimal
	Halted        bool
	HaltReason    string
	Naked         []NakedPosition
}
