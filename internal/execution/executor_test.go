package execution

import (
	"context"
	"testing"
	"time"

	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob/clobtypes"

	"github.com/garveslabs/polymarket-trader/internal/paper"
	"github.com/garveslabs/polymarket-trader/internal/signals"
	"github.com/garveslabs/polymarket-trader/internal/tracker"
)

func testSignal() *signals.Signal {
	return &signals.Signal{
		Asset:       "bitcoin",
		Timeframe:   "15m",
		Direction:   "up",
		Probability: 0.62,
		Edge:        0.1,
		Confidence:  0.6,
		UpTokenID:   "tok-up",
		DownTokenID: "tok-down",
	}
}

func newDryRunExecutor() *Executor {
	sim := paper.NewSimulator(paper.Config{InitialBalanceUSDC: 1000})
	positions := tracker.NewPositionTracker()
	return NewExecutor(Config{DryRun: true}, nil, nil, sim, positions, nil)
}

func TestPlaceSignalDryRunRegistersPosition(t *testing.T) {
	e := newDryRunExecutor()
	orderID, err := e.PlaceSignal(context.Background(), testSignal(), "market-1", 30)
	if err != nil {
		t.Fatalf("expected order placed, got %v", err)
	}
	if orderID == "" {
		t.Fatal("expected non-empty order id")
	}
	if e.OpenCount() != 1 {
		t.Fatalf("expected 1 open position, got %d", e.OpenCount())
	}
}

func TestPlaceSignalRejectsZeroSize(t *testing.T) {
	e := newDryRunExecutor()
	if _, err := e.PlaceSignal(context.Background(), testSignal(), "market-1", 0); err == nil {
		t.Fatal("expected error for zero-size order")
	}
}

func TestPlaceSignalUsesDownTokenForDownDirection(t *testing.T) {
	e := newDryRunExecutor()
	sig := testSignal()
	sig.Direction = "down"
	orderID, err := e.PlaceSignal(context.Background(), sig, "market-1", 30)
	if err != nil {
		t.Fatalf("expected order placed, got %v", err)
	}
	pos := e.open[orderID]
	if pos == nil || pos.TokenID != "tok-down" {
		t.Fatalf("expected down-token position, got %+v", pos)
	}
}

func TestCheckExpiryRemovesStalePositions(t *testing.T) {
	e := newDryRunExecutor()
	orderID, err := e.PlaceSignal(context.Background(), testSignal(), "market-1", 30)
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}
	e.open[orderID].OpenedAt = time.Now().Add(-20 * time.Minute)

	expired := e.CheckExpiry(time.Now())
	if len(expired) != 1 || expired[0] != orderID {
		t.Fatalf("expected %s to expire, got %v", orderID, expired)
	}
	if e.OpenCount() != 0 {
		t.Fatalf("expected 0 open positions after expiry, got %d", e.OpenCount())
	}
}

func TestCheckExpiryKeepsFreshPositions(t *testing.T) {
	e := newDryRunExecutor()
	if _, err := e.PlaceSignal(context.Background(), testSignal(), "market-1", 30); err != nil {
		t.Fatalf("place failed: %v", err)
	}
	expired := e.CheckExpiry(time.Now())
	if len(expired) != 0 {
		t.Fatalf("expected no expirations, got %v", expired)
	}
}

type fakeBookSource struct {
	bids map[string]string
}

func (f *fakeBookSource) OrderBook(ctx context.Context, req *clobtypes.BookRequest) (clobtypes.OrderBook, error) {
	bid, ok := f.bids[req.TokenID]
	if !ok || bid == "" {
		return clobtypes.OrderBook{}, nil
	}
	return clobtypes.OrderBook{
		Bids: []clobtypes.OrderBookLevel{{Price: bid, Size: "100"}},
	}, nil
}

func TestCheckStopLossesExitsOnPriceCollapse(t *testing.T) {
	e := newDryRunExecutor()
	orderID, err := e.PlaceSignal(context.Background(), testSignal(), "market-1", 30)
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}
	e.open[orderID].OpenedAt = time.Now().Add(-2 * time.Minute)

	books := &fakeBookSource{bids: map[string]string{"tok-up": "0.10"}}
	stopped := e.CheckStopLosses(context.Background(), books, time.Now())
	if stopped != 1 {
		t.Fatalf("expected 1 position stopped out, got %d", stopped)
	}
	if e.OpenCount() != 0 {
		t.Fatalf("expected position removed after stop-loss, got %d open", e.OpenCount())
	}
}

func TestCheckStopLossesSkipsFreshPositions(t *testing.T) {
	e := newDryRunExecutor()
	if _, err := e.PlaceSignal(context.Background(), testSignal(), "market-1", 30); err != nil {
		t.Fatalf("place failed: %v", err)
	}
	books := &fakeBookSource{bids: map[string]string{"tok-up": "0.10"}}
	stopped := e.CheckStopLosses(context.Background(), books, time.Now())
	if stopped != 0 {
		t.Fatalf("expected no stop-loss on a fresh position, got %d", stopped)
	}
}

func TestCheckStopLossesEmergencyExitsAfterNoBidStreak(t *testing.T) {
	e := newDryRunExecutor()
	orderID, err := e.PlaceSignal(context.Background(), testSignal(), "market-1", 30)
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}
	e.open[orderID].OpenedAt = time.Now().Add(-2 * time.Minute)

	books := &fakeBookSource{bids: map[string]string{}}
	for i := 0; i < noBidStreakLimit-1; i++ {
		if stopped := e.CheckStopLosses(context.Background(), books, time.Now()); stopped != 0 {
			t.Fatalf("expected no stop-loss before streak limit, got %d at iteration %d", stopped, i)
		}
	}
	stopped := e.CheckStopLosses(context.Background(), books, time.Now())
	if stopped != 1 {
		t.Fatalf("expected emergency exit at streak limit, got %d", stopped)
	}
}

func TestCancelAllOpenClearsDryRunPositions(t *testing.T) {
	e := newDryRunExecutor()
	if _, err := e.PlaceSignal(context.Background(), testSignal(), "market-1", 30); err != nil {
		t.Fatalf("place failed: %v", err)
	}
	e.CancelAllOpen(context.Background())
	if e.OpenCount() != 0 {
		t.Fatalf("expected all dry-run positions cleared, got %d", e.OpenCount())
	}
}

type fakeKellySource struct {
	trades []ResolvedTrade
}

func (f *fakeKellySource) ResolvedTrades() []ResolvedTrade { return f.trades }

func TestDynamicPositionSizeClampsToTradeRange(t *testing.T) {
	e := newDryRunExecutor()
	sig := testSignal()
	sig.Confidence = 0.1
	sig.Edge = 0.01
	size := e.DynamicPositionSize(sig)
	if size < tradeMinUSD || size > tradeMaxUSD {
		t.Fatalf("expected size within [%f, %f], got %f", tradeMinUSD, tradeMaxUSD, size)
	}
}

func TestDynamicPositionSizeAppliesKellyOverlay(t *testing.T) {
	sim := paper.NewSimulator(paper.Config{InitialBalanceUSDC: 1000})
	positions := tracker.NewPositionTracker()
	trades := make([]ResolvedTrade, 0, 15)
	for i := 0; i < 15; i++ {
		trades = append(trades, ResolvedTrade{Won: true, Probability: 0.5})
	}
	kelly := &fakeKellySource{trades: trades}
	e := NewExecutor(Config{DryRun: true}, nil, nil, sim, positions, kelly)

	size := e.DynamicPositionSize(testSignal())
	if size < tradeMinUSD || size > tradeMaxUSD {
		t.Fatalf("expected clamped size, got %f", size)
	}
}
