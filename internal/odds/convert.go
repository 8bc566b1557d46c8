// Package odds provides pure conversions between odds representations and
// implied probability, proportional de-vig for two-way markets, and the
// per-venue fee models. No state.
package odds

import (
	"fmt"
	"math"
)

// AmericanToImplied converts American odds to implied probability (0..1).
//
// Negative odds (favorite):  p = |odds| / (|odds| + 100)
// Positive odds (underdog):  p = 100 / (odds + 100)
func AmericanToImplied(american int) (float64, error) {
	if american == 0 || (american > -100 && american < 100) {
		return 0, fmt.Errorf("odds: invalid american odds %d", american)
	}
	if american < 0 {
		a := float64(-american)
		return a / (a + 100.0), nil
	}
	return 100.0 / (float64(american) + 100.0), nil
}

// ImpliedToAmerican converts implied probability back to American odds,
// rounded to the nearest integer line. Even money maps to +100; books quote
// it either way, but +100 round-trips through AmericanToImplied.
func ImpliedToAmerican(prob float64) (int, error) {
	if prob <= 0 || prob >= 1 {
		return 0, fmt.Errorf("odds: probability must be in (0,1), got %v", prob)
	}
	if prob > 0.5 {
		return -int(math.Round(prob * 100.0 / (1.0 - prob))), nil
	}
	return int(math.Round(100.0 * (1.0 - prob) / prob)), nil
}

// AmericanToDecimal converts American odds to decimal odds (payout per unit
// stake, stake included).
func AmericanToDecimal(american int) (float64, error) {
	p, err := AmericanToImplied(american)
	if err != nil {
		return 0, err
	}
	return 1.0 / p, nil
}

// CentsToProb converts an exchange price in cents (1..99) to probability.
func CentsToProb(cents int) float64 { return float64(cents) / 100.0 }

// ProbToCents converts a probability to the exchange's cent grid, rounding to
// the nearest cent.
func ProbToCents(prob float64) int { return int(math.Round(prob * 100.0)) }

// DeVig strips the bookmaker margin from a two-way market by proportional
// normalization: each implied probability is divided by their sum, so the fair
// probabilities sum to one. This is the multiplicative method; the power
// method was considered and rejected to keep one documented convention.
// A market whose probabilities already sum to <= 1 carries no vig and is
// returned unchanged.
func DeVig(probA, probB float64) (fairA, fairB float64, err error) {
	if probA <= 0 || probA >= 1 || probB <= 0 || probB >= 1 {
		return 0, 0, fmt.Errorf("odds: probabilities must be in (0,1): %v, %v", probA, probB)
	}
	total := probA + probB
	if total <= 1.0 {
		return probA, probB, nil
	}
	return probA / total, probB / total, nil
}

// VigPercent returns the overround of a two-way market in percent, or zero
// when the market is vig-free.
func VigPercent(probA, probB float64) float64 {
	total := probA + probB
	if total <= 1.0 {
		return 0
	}
	return (total - 1.0) * 100.0
}

// ProportionalStakes splits a total stake across the two outcomes of an arb
// in proportion to their implied probabilities, so both outcomes return the
// same gross payout: stake_i = total * p_i / (p_a + p_b).
func ProportionalStakes(total, probA, probB float64) (stakeA, stakeB float64) {
	sum := probA + probB
	if total <= 0 || sum <= 0 {
		return 0, 0
	}
	return total * probA / sum, total * probB / sum
}
