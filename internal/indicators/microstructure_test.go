package indicators

import (
	"testing"

	"github.com/garveslabs/polymarket-trader/internal/priceindex"
)

func TestOrderFlowDeltaNoVolumeNoVote(t *testing.T) {
	if v := OrderFlowDelta(0, 0); v != nil {
		t.Fatalf("expected nil with zero volume, got %+v", v)
	}
}

func TestOrderFlowDeltaBuyDominantVotesUp(t *testing.T) {
	v := OrderFlowDelta(80, 20)
	if v == nil || v.Direction != "up" {
		t.Fatalf("expected up vote, got %+v", v)
	}
}

func TestPriceDivergenceRequiresHistoricalPrice(t *testing.T) {
	if v := PriceDivergence(100, nil, nil); v != nil {
		t.Fatalf("expected nil without price_3m_ago, got %+v", v)
	}
}

func TestPriceDivergenceFallbackUsesMomentum(t *testing.T) {
	ago := 99.0
	v := PriceDivergence(100, &ago, nil)
	if v == nil || v.Direction != "up" {
		t.Fatalf("expected up fallback vote, got %+v", v)
	}
}

func TestPriceDivergenceImpliedLaggingBoostsConfidence(t *testing.T) {
	ago := 99.0
	implied := 0.5
	v := PriceDivergence(100, &ago, &implied)
	if v == nil || v.Direction != "up" {
		t.Fatalf("expected up vote with lagging implied price, got %+v", v)
	}
}

func TestLiquiditySignalDeepBidsVoteUp(t *testing.T) {
	v := LiquiditySignal(800, 200, 0.01)
	if v == nil || v.Direction != "up" {
		t.Fatalf("expected up vote on deep bids, got %+v", v)
	}
}

func TestATRRequiresHistory(t *testing.T) {
	if _, ok := ATR(make([]priceindex.Candle, 5), 14); ok {
		t.Fatal("expected ATR unavailable with short history")
	}
}

func TestATRReturnsFractionOfPrice(t *testing.T) {
	candles := make([]priceindex.Candle, 16)
	price := 100.0
	for i := range candles {
		candles[i] = priceindex.Candle{Open: price, High: price + 2, Low: price - 2, Close: price}
		price += 1
	}
	val, ok := ATR(candles, 14)
	if !ok || val <= 0 {
		t.Fatalf("expected positive ATR fraction, got %v ok=%v", val, ok)
	}
}

func TestTemporalArbOnlyShortTimeframes(t *testing.T) {
	ago := 99.0
	if v := TemporalArb(100, &ago, nil, "1h"); v != nil {
		t.Fatalf("expected nil for 1h timeframe, got %+v", v)
	}
}

func TestTemporalArbImpliedNearFiftyFiftyHighConfidence(t *testing.T) {
	ago := 99.0
	implied := 0.5
	v := TemporalArb(100, &ago, &implied, "5m")
	if v == nil || v.Direction != "up" || v.Confidence < 0.3 {
		t.Fatalf("expected strong up vote, got %+v", v)
	}
}

func TestVolumeSpikeExcludesCurrentCandleFromAverage(t *testing.T) {
	candles := make([]priceindex.Candle, 21)
	for i := 0; i < 20; i++ {
		candles[i] = priceindex.Candle{Open: 100, Close: 100, Volume: 10}
	}
	candles[20] = priceindex.Candle{Open: 100, Close: 105, Volume: 50}
	v := VolumeSpike(candles, 2.0, 20)
	if v == nil || v.Direction != "up" {
		t.Fatalf("expected up vote on volume spike with bullish candle, got %+v", v)
	}
}

func TestVolumeSpikeBelowThresholdNoVote(t *testing.T) {
	candles := make([]priceindex.Candle, 21)
	for i := range candles {
		candles[i] = priceindex.Candle{Open: 100, Close: 100, Volume: 10}
	}
	if v := VolumeSpike(candles, 2.0, 20); v != nil {
		t.Fatalf("expected nil without a spike, got %+v", v)
	}
}
