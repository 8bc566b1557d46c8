package domain

import "time"

// LegState is the lifecycle of one leg of an execution attempt.
type LegState string

const (
	LegPending         LegState = "pending"
	LegSubmitted       LegState = "submitted"
	LegFilled          LegState = "filled"
	LegPartiallyFilled LegState = "partially_filled"
	LegRejected        LegState = "rejected"
	LegTimedOut        LegState = "timed_out"
	LegCancelled       LegState = "cancelled"
)

// Terminal reports whether the leg has reached a final state.
func (s LegState) Terminal() bool {
	switch s {
	case LegFilled, LegPartiallyFilled, LegRejected, LegTimedOut, LegCancelled:
		return true
	}
	return false
}

// Filled reports whether the leg put on any position.
func (s LegState) Filled() bool {
	return s == LegFilled || s == LegPartiallyFilled
}

// AttemptOutcome classifies a terminal ExecutionAttempt.
type AttemptOutcome string

const (
	// OutcomeBothFilled: both legs filled; realized edge recorded.
	OutcomeBothFilled AttemptOutcome = "both_filled"
	// OutcomeLeg2Partial: leg2 filled for less than leg1; hedged below plan.
	OutcomeLeg2Partial AttemptOutcome = "leg2_partial"
	// OutcomeAbandoned: leg1 never filled; any resting order cancelled, no
	// position held.
	OutcomeAbandoned AttemptOutcome = "abandoned"
	// OutcomeNakedExposure: leg1 filled but leg2 failed. The leg1 position is
	// held open, handed to the portfolio as unhedged, and alerted immediately.
	OutcomeNakedExposure AttemptOutcome = "naked_exposure"
)

// LegResult is the realized record of one leg.
type LegResult struct {
	Venue       VenueID
	Instrument  string
	Outcome     string
	OrderID     string
	State       LegState
	PlannedSize float64
	FilledSize  float64
	FilledPrice float64 // probability space
	Stake       float64 // dollars committed
	SubmittedAt time.Time
	CompletedAt time.Time
}

// ExecutionAttempt records driving one Opportunity's legs to completion.
// Owned exclusively by the coordinator; read-only once terminal.
type ExecutionAttempt struct {
	ID            string
	OpportunityID string
	PairKey       string
	Kind          OpportunityKind
	Legs          [2]LegResult
	Outcome       AttemptOutcome
	PlannedEdge   float64
	RealizedEdge  float64 // from achieved prices/sizes; set on the success path
	StartedAt     time.Time
	CompletedAt   *time.Time
}

// Hedged reports whether the attempt ended with offsetting positions.
func (a ExecutionAttempt) Hedged() bool {
	return a.Outcome == OutcomeBothFilled || a.Outcome == OutcomeLeg2Partial
}

// HedgedContracts returns the matched size of the attempt in contract units.
// Exchange legs fill in contracts already; book legs fill in stake dollars,
// so their contract equivalent is stake over price.
func (a ExecutionAttempt) HedgedContracts() float64 {
	hedged := -1.0
	for _, leg := range a.Legs {
		contracts := leg.FilledSize
		if leg.Venue != VenueKalshi {
			if leg.FilledPrice <= 0 {
				return 0
			}
			contracts = leg.Stake / leg.FilledPrice
		}
		if hedged < 0 || contracts < hedged {
			hedged = contracts
		}
	}
	if hedged < 0 {
		return 0
	}
	return hedged
}
