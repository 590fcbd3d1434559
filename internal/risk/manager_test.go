package risk

import (
	"testing"

	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob/ws"
	"github.com/garveslabs/polymarket-trader/internal/tracker"
)

func TestAllowOrderBasic(t *testing.T) {
	m := New(Config{MaxOpenOrders: 5, MaxDailyLossUSDC: 100, MaxPositionPerMarket: 50})
	if err := m.Allow("token-1", 25); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
}

func TestBlockOnMaxOrders(t *testing.T) {
	m := New(Config{MaxOpenOrders: 2, MaxDailyLossUSDC: 100, MaxPositionPerMarket: 50})
	m.SetOpenOrders(2)
	if err := m.Allow("token-1", 25); err == nil {
		t.Fatal("expected block on max orders")
	}
}

func TestBlockOnDailyLoss(t *testing.T) {
	m := New(Config{MaxOpenOrders: 20, MaxDailyLossUSDC: 100, MaxPositionPerMarket: 50})
	m.RecordPnL(-101)
	if err := m.Allow("token-1", 25); err == nil {
		t.Fatal("expected block on daily loss")
	}
}

func TestBlockOnPositionLimit(t *testing.T) {
	m := New(Config{MaxOpenOrders: 20, MaxDailyLossUSDC: 100, MaxPositionPerMarket: 50})
	m.AddPosition("token-1", 30)
	if err := m.Allow("token-1", 25); err == nil {
		t.Fatal("expected block on position limit")
	}
}

func TestEmergencyStop(t *testing.T) {
	m := New(Config{MaxOpenOrders: 20, MaxDailyLossUSDC: 100, MaxPositionPerMarket: 50})
	m.SetEmergencyStop(true)
	if err := m.Allow("token-1", 10); err == nil {
		t.Fatal("expected block on emergency stop")
	}
}

func TestRecordPnLAndReset(t *testing.T) {
	m := New(Config{MaxOpenOrders: 20, MaxDailyLossUSDC: 100, MaxPositionPerMarket: 50})
	m.RecordPnL(-50)
	m.RecordPnL(-40)
	if m.DailyPnL() != -90 {
		t.Fatalf("expected -90, got %f", m.DailyPnL())
	}
	m.ResetDaily()
	if m.DailyPnL() != 0 {
		t.Fatalf("expected 0 after reset, got %f", m.DailyPnL())
	}
}

func TestAllowTradeBlocksBelowEdgeFloor(t *testing.T) {
	m := New(Config{MinEdgePct: 5.0})
	if err := m.AllowTrade(0.03, "market-1", nil); err == nil {
		t.Fatal("expected block below edge floor")
	}
}

func TestAllowTradeBlocksOnConcurrentPositions(t *testing.T) {
	m := New(Config{MinEdgePct: 5.0, MaxConcurrentPositions: 1})
	pt := tracker.NewPositionTracker()
	pt.ProcessTradeEvent(ws.TradeEvent{ID: "t-1", AssetID: "asset-1", Side: "BUY", Price: "0.5", Size: "10"})

	if err := m.AllowTrade(0.08, "market-2", pt); err == nil {
		t.Fatal("expected block on max concurrent positions")
	}
}

func TestAllowTradeBlocksOnMarketAlreadyOpen(t *testing.T) {
	m := New(Config{MinEdgePct: 5.0, MaxConcurrentPositions: 5})
	pt := tracker.NewPositionTracker()
	pt.RegisterOrder("ord-1", "asset-1", "market-1", "BUY", 0.5, 10)
	pt.ProcessTradeEvent(ws.TradeEvent{ID: "t-1", AssetID: "asset-1", Side: "BUY", Price: "0.5", Size: "10"})

	if err := m.AllowTrade(0.08, "market-1", pt); err == nil {
		t.Fatal("expected block on existing position in the same market")
	}
}

func TestAllowTradePassesWhenClear(t *testing.T) {
	m := New(Config{MinEdgePct: 5.0, MaxConcurrentPositions: 5, MaxTotalExposureUSDC: 100})
	pt := tracker.NewPositionTracker()
	if err := m.AllowTrade(0.08, "market-1", pt); err != nil {
		t.Fatalf("expected trade allowed, got %v", err)
	}
}
