package odds

import "math"

// Default fee parameters. The exchange factor matches Kalshi's published
// trading-fee schedule: fee per contract = 0.07 * p * (1-p), rounded up to the
// next cent. Odds venues carry no explicit fee by default; their margin lives
// in the vig and is handled by DeVig.
const (
	DefaultExchangeFeeFactor = 0.07
)

// FeeModel computes the fee-adjusted achievable probability for one venue.
type FeeModel interface {
	// Adjust converts a de-vigged implied probability into the achievable
	// probability after fees, from the perspective defined by the engine's
	// edge convention (see detector package).
	Adjust(implied float64) float64
	// FeeUSD returns the dollar fee for a fill of size contracts (or stake
	// dollars for odds venues) at probability p.
	FeeUSD(p, size float64) float64
}

// ExchangeFee is the quadratic maker/taker fee of the exchange venue. Buying
// at price p effectively costs p plus the per-contract fee, so the adjusted
// cost probability is p + factor*p*(1-p).
type ExchangeFee struct {
	Factor float64
}

// NewExchangeFee returns the exchange fee model, falling back to the default
// factor when f <= 0.
func NewExchangeFee(f float64) ExchangeFee {
	if f <= 0 {
		f = DefaultExchangeFeeFactor
	}
	return ExchangeFee{Factor: f}
}

// Adjust returns the all-in cost probability of buying at implied.
func (e ExchangeFee) Adjust(implied float64) float64 {
	return implied + e.Factor*implied*(1.0-implied)
}

// FeeUSD returns the dollar fee for size contracts at price p, rounded up to
// the cent the way the venue bills it.
func (e ExchangeFee) FeeUSD(p, size float64) float64 {
	raw := e.Factor * p * (1.0 - p) * size
	return math.Ceil(raw*100.0) / 100.0
}

// BookFee is a flat basis-point haircut applied to an odds venue's de-vigged
// probability. Most books embed their margin entirely in the vig, so the
// default is zero bps.
type BookFee struct {
	Bps float64
}

// Adjust haircuts the implied probability by the configured bps.
func (b BookFee) Adjust(implied float64) float64 {
	return implied * (1.0 - b.Bps/10_000.0)
}

// FeeUSD returns the dollar fee on a stake.
func (b BookFee) FeeUSD(_, stake float64) float64 {
	return stake * b.Bps / 10_000.0
}

// Table maps venues to fee models with a shared fallback for unknown books.
type Table struct {
	exchange ExchangeFee
	books    map[string]BookFee
	fallback BookFee
}

// NewTable builds a fee table. perBookBps maps bookmaker keys to their bps
// haircut; venues absent from the map get defaultBps.
func NewTable(exchangeFactor float64, perBookBps map[string]float64, defaultBps float64) *Table {
	books := make(map[string]BookFee, len(perBookBps))
	for venue, bps := range perBookBps {
		books[venue] = BookFee{Bps: bps}
	}
	return &Table{
		exchange: NewExchangeFee(exchangeFactor),
		books:    books,
		fallback: BookFee{Bps: defaultBps},
	}
}

// Exchange returns the exchange venue's fee model.
func (t *Table) Exchange() ExchangeFee { return t.exchange }

// Book returns the fee model for the given bookmaker key.
func (t *Table) Book(venue string) BookFee {
	if f, ok := t.books[venue]; ok {
		return f
	}
	return t.fallback
}
