package fees

import "testing"

func TestEstimateUsesTimeframeBase(t *testing.T) {
	if got := Estimate("5m", nil); got != 0.025 {
		t.Fatalf("expected base fee 0.025 for 5m, got %v", got)
	}
	if got := Estimate("unknown", nil); got != defaultBaseFee {
		t.Fatalf("expected default base fee for unknown timeframe, got %v", got)
	}
}

func TestEstimateScalesWithSkew(t *testing.T) {
	implied := 0.9
	got := Estimate("15m", &implied)
	if got <= 0.02 {
		t.Fatalf("expected fee estimate above base for skewed market, got %v", got)
	}
}

func TestPnLLossForfeitsStake(t *testing.T) {
	if got := PnL(false, 20, 0.5, 0.02); got != -20 {
		t.Fatalf("expected -20 loss, got %v", got)
	}
}

func TestPnLWinNetsWinnerFee(t *testing.T) {
	got := PnL(true, 20, 0.5, WinnerFeeRate)
	// 20/0.5 = 40 shares, payout = 40 * 0.98 = 39.2, profit = 19.2
	if got < 19.1 || got > 19.3 {
		t.Fatalf("expected profit near 19.2, got %v", got)
	}
}
