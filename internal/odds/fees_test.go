package odds

import (
	"math"
	"testing"
)

func TestExchangeFeeAdjust(t *testing.T) {
	fee := NewExchangeFee(0)
	if fee.Factor != DefaultExchangeFeeFactor {
		t.Fatalf("zero factor should fall back to default, got %v", fee.Factor)
	}

	// Buying at 0.50 costs 0.50 + 0.07*0.25 = 0.5175.
	got := fee.Adjust(0.50)
	if math.Abs(got-0.5175) > 1e-12 {
		t.Errorf("Adjust(0.50) = %v, want 0.5175", got)
	}

	// Fee vanishes toward the boundaries.
	if fee.Adjust(0.99) >= 1.0 {
		t.Errorf("fee near 1.0 must stay below certainty: %v", fee.Adjust(0.99))
	}
}

func TestExchangeFeeUSDRoundsUp(t *testing.T) {
	fee := NewExchangeFee(0.07)
	// 10 contracts at 0.35: 0.07*0.35*0.65*10 = 0.15925 -> 0.16.
	got := fee.FeeUSD(0.35, 10)
	if math.Abs(got-0.16) > 1e-12 {
		t.Errorf("FeeUSD(0.35, 10) = %v, want 0.16", got)
	}
}

func TestBookFee(t *testing.T) {
	fee := BookFee{Bps: 200}
	got := fee.Adjust(0.45)
	if math.Abs(got-0.441) > 1e-12 {
		t.Errorf("Adjust(0.45) with 200bps = %v, want 0.441", got)
	}
	if f := fee.FeeUSD(0, 50); math.Abs(f-1.0) > 1e-12 {
		t.Errorf("FeeUSD(50) with 200bps = %v, want 1.0", f)
	}
	zero := BookFee{}
	if zero.Adjust(0.45) != 0.45 {
		t.Errorf("zero-bps book must pass probabilities through")
	}
}

func TestTableDispatch(t *testing.T) {
	tbl := NewTable(0.07, map[string]float64{"fanduel": 150}, 50)
	if got := tbl.Book("fanduel").Bps; got != 150 {
		t.Errorf("fanduel bps = %v, want 150", got)
	}
	if got := tbl.Book("unknownbook").Bps; got != 50 {
		t.Errorf("fallback bps = %v, want 50", got)
	}
	if tbl.Exchange().Factor != 0.07 {
		t.Errorf("exchange factor = %v, want 0.07", tbl.Exchange().Factor)
	}
}
