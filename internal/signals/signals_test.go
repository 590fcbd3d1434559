package signals

import (
	"context"
	"testing"

	"github.com/garveslabs/polymarket-trader/internal/indicators"
	"github.com/garveslabs/polymarket-trader/internal/priceindex"
	"github.com/garveslabs/polymarket-trader/internal/regime"
	"github.com/garveslabs/polymarket-trader/internal/weights"
)

func TestConsensusFloorClampsToRange(t *testing.T) {
	if got := consensusFloor(4); got != 3 {
		t.Fatalf("expected floor 3 for active=4, got %d", got)
	}
	if got := consensusFloor(16); got != 7 {
		t.Fatalf("expected floor capped at 7 for active=16, got %d", got)
	}
	if got := consensusFloor(10); got != 7 {
		t.Fatalf("expected ceil(0.7*10)=7, got %d", got)
	}
}

func TestEdgesBothSidesDefaultsToFiftyFifty(t *testing.T) {
	edgeUp, edgeDown := edgesBothSides(0.62, 0.38, nil, 0.0)
	if edgeUp <= edgeDown {
		t.Fatalf("expected up edge to dominate when pUp > pDown, got up=%v down=%v", edgeUp, edgeDown)
	}
}

func TestEdgesBothSidesMatchesSpecExample(t *testing.T) {
	implied := 0.50
	edgeUp, _ := edgesBothSides(0.62, 0.38, &implied, 0.02)
	if edgeUp < 0.0999 || edgeUp > 0.1001 {
		t.Fatalf("expected edge 0.10 per spec S2, got %v", edgeUp)
	}
}

func TestEdgesBothSidesRejectsWhenImpliedTooHigh(t *testing.T) {
	implied := 0.55
	edgeUp, _ := edgesBothSides(0.62, 0.38, &implied, 0.02)
	if edgeUp < 0.0499 || edgeUp > 0.0501 {
		t.Fatalf("expected edge 0.05 per spec S2 variant, got %v", edgeUp)
	}
	if edgeUp >= minEdgeByTimeframe[TF5m] {
		t.Fatalf("expected edge %v below the 5m min edge %v", edgeUp, minEdgeByTimeframe[TF5m])
	}
}

func TestMinCandlesForPicksSlowestIndicator(t *testing.T) {
	got := minCandlesFor(TF4h)
	if got < 60 {
		t.Fatalf("expected 4h floor to reflect its slow macd/ema windows, got %d", got)
	}
}

func TestOpposesTrendDetectsCounterTrendMajority(t *testing.T) {
	closes := make([]float64, 40)
	price := 100.0
	for i := range closes {
		closes[i] = price
		price += 1
	}
	params := indicators.GetParams(TF15m)
	if opposesTrend(closes, params, "up") {
		t.Fatal("expected up majority to align with a rising trend")
	}
	if !opposesTrend(closes, params, "down") {
		t.Fatal("expected down majority to oppose a rising trend")
	}
}

func TestEvaluateReturnsNilWithoutHistory(t *testing.T) {
	cache := priceindex.New(300)
	learner := weights.NewLearner(t.TempDir() + "/acc.json")
	eng := NewEngine(cache, learner, nil)

	sig := eng.Evaluate(context.Background(), Request{
		Asset:     "bitcoin",
		Timeframe: TF5m,
		Regime:    regime.Adjustment{ConfidenceFloor: 0.3, EdgeMultiplier: 1.0},
	})
	if sig != nil {
		t.Fatalf("expected nil signal without candle history, got %+v", sig)
	}
}

func TestEvaluateProducesSignalOnStrongTrend(t *testing.T) {
	cache := priceindex.New(300)
	learner := weights.NewLearner(t.TempDir() + "/acc.json")
	eng := NewEngine(cache, learner, nil)

	price := 100.0
	ts := int64(0)
	for i := 0; i < 90; i++ {
		cache.UpdateTick("bitcoin", price, 5, ts)
		cache.UpdateTick("bitcoin", price+0.5, 8, ts+30)
		price += 0.8
		ts += 60
	}

	implied := 0.5
	sig := eng.Evaluate(context.Background(), Request{
		Asset:          "bitcoin",
		Timeframe:      TF5m,
		ImpliedUpPrice: &implied,
		Regime:         regime.Adjustment{ConfidenceFloor: 0.1, EdgeMultiplier: 0.5},
	})
	if sig == nil {
		t.Fatal("expected a signal on a strong sustained uptrend")
	}
	if sig.Direction != "up" {
		t.Fatalf("expected up direction on sustained uptrend, got %+v", sig)
	}
}
