package killshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/garveslabs/polymarket-trader/internal/windowtracker"
)

type fakeSpot struct {
	prices map[string]float64
}

func (f *fakeSpot) GetPrice(asset string) (float64, bool) {
	p, ok := f.prices[asset]
	return p, ok
}

type fakeBooks struct {
	asks map[string]float64
	bids map[string]float64
}

func (f *fakeBooks) BestBidAsk(ctx context.Context, tokenID string) (float64, float64, bool) {
	bid, bok := f.bids[tokenID]
	ask, aok := f.asks[tokenID]
	if !bok && !aok {
		return 0, 0, false
	}
	return bid, ask, true
}

func newTestEngine(t *testing.T, spot *fakeSpot, books *fakeBooks) *Engine {
	t.Helper()
	dir := t.TempDir()
	ledger := NewLedger(filepath.Join(dir, "killshot.jsonl"))
	cfg := DefaultConfig()
	cfg.Assets = []string{"bitcoin"}
	return NewEngine(cfg, spot, nil, books, ledger, nil, nil)
}

func testWindow(now time.Time, openPrice float64) windowtracker.Window {
	return windowtracker.Window{
		MarketID:    "mkt-1",
		Question:    "Bitcoin Up or Down",
		Asset:       "bitcoin",
		UpTokenID:   "tok-up",
		DownTokenID: "tok-down",
		StartTS:     now.Add(-4 * time.Minute).Unix(),
		EndTS:       now.Add(30 * time.Second).Unix(),
		OpenPrice:   openPrice,
	}
}

func TestTickFiresOnDirectionAndBookInRange(t *testing.T) {
	now := time.Now()
	spot := &fakeSpot{prices: map[string]float64{"bitcoin": 50100}}
	books := &fakeBooks{asks: map[string]float64{"tok-up": 0.60}}
	e := newTestEngine(t, spot, books)

	e.Tick(context.Background(), []windowtracker.Window{testWindow(now, 50000)})

	if _, traded := e.tradedWindows["mkt-1"]; !traded {
		t.Fatal("expected window to be marked traded after firing")
	}
	if e.ledger.PendingCount() != 1 {
		t.Fatalf("expected 1 pending killshot trade, got %d", e.ledger.PendingCount())
	}
}

func TestTickSkipsWithoutBlacklistWhenBookBelowFloor(t *testing.T) {
	now := time.Now()
	spot := &fakeSpot{prices: map[string]float64{"bitcoin": 50100}}
	books := &fakeBooks{asks: map[string]float64{"tok-up": 0.10}}
	e := newTestEngine(t, spot, books)

	e.Tick(context.Background(), []windowtracker.Window{testWindow(now, 50000)})

	if _, traded := e.tradedWindows["mkt-1"]; traded {
		t.Fatal("expected window not to be blacklisted when book is below floor")
	}
	if _, cooled := e.skipCooldown["mkt-1"]; !cooled {
		t.Fatal("expected a skip cooldown to be set")
	}
}

func TestTickSkipsWhenDeltaBelowThreshold(t *testing.T) {
	now := time.Now()
	spot := &fakeSpot{prices: map[string]float64{"bitcoin": 50000.01}}
	books := &fakeBooks{asks: map[string]float64{"tok-up": 0.60}}
	e := newTestEngine(t, spot, books)

	e.Tick(context.Background(), []windowtracker.Window{testWindow(now, 50000)})

	if _, traded := e.tradedWindows["mkt-1"]; traded {
		t.Fatal("expected no trade below direction threshold")
	}
}

func TestTickRespectsDailyLossCap(t *testing.T) {
	now := time.Now()
	spot := &fakeSpot{prices: map[string]float64{"bitcoin": 50100}}
	books := &fakeBooks{asks: map[string]float64{"tok-up": 0.60}}
	e := newTestEngine(t, spot, books)
	e.dailyResetDay = now.Format("2006-01-02")
	e.dailyLoss = e.cfg.DailyLossCapUSD

	e.Tick(context.Background(), []windowtracker.Window{testWindow(now, 50000)})

	if _, traded := e.tradedWindows["mkt-1"]; traded {
		t.Fatal("expected daily loss cap to block trading entirely")
	}
}

func TestTickIgnoresWindowOutsideKillZone(t *testing.T) {
	now := time.Now()
	spot := &fakeSpot{prices: map[string]float64{"bitcoin": 50100}}
	books := &fakeBooks{asks: map[string]float64{"tok-up": 0.60}}
	e := newTestEngine(t, spot, books)

	w := testWindow(now, 50000)
	w.EndTS = now.Add(5 * time.Minute).Unix() // remaining > WindowSeconds

	e.Tick(context.Background(), []windowtracker.Window{w})

	if _, traded := e.tradedWindows["mkt-1"]; traded {
		t.Fatal("expected window outside the kill zone to be ignored")
	}
}

func TestSkipCooldownPreventsImmediateRetry(t *testing.T) {
	now := time.Now()
	spot := &fakeSpot{prices: map[string]float64{"bitcoin": 50000.01}}
	books := &fakeBooks{asks: map[string]float64{"tok-up": 0.60}}
	e := newTestEngine(t, spot, books)
	w := testWindow(now, 50000)

	e.Tick(context.Background(), []windowtracker.Window{w})
	e.skipCooldown["mkt-1"] = time.Now()

	// Bump price past threshold, but cooldown should still block eval.
	spot.prices["bitcoin"] = 50100
	e.Tick(context.Background(), []windowtracker.Window{w})

	if _, traded := e.tradedWindows["mkt-1"]; traded {
		t.Fatal("expected skip cooldown to block the retry within 1s")
	}
}

func TestCleanupExpiredDropsOldEntries(t *testing.T) {
	e := newTestEngine(t, &fakeSpot{}, &fakeBooks{})
	e.tradedWindows["old"] = time.Now().Add(-2 * time.Hour)
	e.tradedWindows["fresh"] = time.Now()

	e.CleanupExpired()

	if _, ok := e.tradedWindows["old"]; ok {
		t.Fatal("expected old traded-window entry to be cleaned up")
	}
	if _, ok := e.tradedWindows["fresh"]; !ok {
		t.Fatal("expected fresh traded-window entry to survive cleanup")
	}
}

func TestReportResolvedAccumulatesDailyLoss(t *testing.T) {
	e := newTestEngine(t, &fakeSpot{}, &fakeBooks{})
	e.ReportResolved([]PaperTrade{
		{Outcome: "loss", PnL: -5},
		{Outcome: "win", PnL: 3},
		{Outcome: "loss", PnL: -2.5},
	})
	if e.dailyLoss != 7.5 {
		t.Fatalf("expected accumulated daily loss of 7.5, got %f", e.dailyLoss)
	}
}
