package priceindex

import (
	"os"
	"testing"
)

func TestUpdateTickBuildsCandle(t *testing.T) {
	c := New(10)
	c.UpdateTick("bitcoin", 100, 1, 60)
	c.UpdateTick("bitcoin", 102, 1, 65)
	c.UpdateTick("bitcoin", 99, 1, 90)

	candles := c.GetCandles("bitcoin", 10)
	if len(candles) != 1 {
		t.Fatalf("expected 1 building candle, got %d", len(candles))
	}
	cd := candles[0]
	if cd.Open != 100 || cd.High != 102 || cd.Low != 99 || cd.Close != 99 {
		t.Fatalf("unexpected candle: %+v", cd)
	}
}

func TestUpdateTickDropsNonPositivePriceOrVolume(t *testing.T) {
	c := New(10)
	c.UpdateTick("bitcoin", 0, 1, 60)
	c.UpdateTick("bitcoin", -5, 1, 60)
	c.UpdateTick("bitcoin", 100, 0, 60)
	c.UpdateTick("bitcoin", 100, -1, 60)

	if got := c.CandleCount("bitcoin"); got != 0 {
		t.Fatalf("expected malformed ticks to be dropped, got %d candles", got)
	}
	if _, ok := c.GetPrice("bitcoin"); ok {
		t.Fatal("expected no price recorded from malformed ticks")
	}
}

func TestUpdateTickRollsMinute(t *testing.T) {
	c := New(10)
	c.UpdateTick("bitcoin", 100, 1, 60)
	c.UpdateTick("bitcoin", 110, 1, 125) // new minute

	if got := c.CandleCount("bitcoin"); got != 1 {
		t.Fatalf("expected 1 completed candle after rollover, got %d", got)
	}
	candles := c.GetCandles("bitcoin", 10)
	if len(candles) != 2 {
		t.Fatalf("expected completed + building candle, got %d", len(candles))
	}
}

func TestGetPriceAgoClampsAndExcludesBuilding(t *testing.T) {
	c := New(10)
	for i := int64(0); i < 5; i++ {
		c.UpdateTick("bitcoin", float64(100+i), 1, i*60)
		c.UpdateTick("bitcoin", float64(100+i), 1, i*60+65) // force completion before next iter's minute starts fresh
	}
	price, ok := c.GetPriceAgo("bitcoin", 100)
	if !ok {
		t.Fatal("expected price available")
	}
	if price <= 0 {
		t.Fatalf("expected clamped price, got %v", price)
	}
}

func TestOrderFlowIncludesBuildingMinute(t *testing.T) {
	c := New(10)
	c.UpdateTick("bitcoin", 100, 1, 0) // first tick, always buy
	buy, sell := c.GetOrderFlow("bitcoin", 30)
	if buy != 1 || sell != 0 {
		t.Fatalf("expected buy=1 sell=0, got buy=%v sell=%v", buy, sell)
	}
}

func TestSaveLoadCandlesAtomic(t *testing.T) {
	dir := t.TempDir()
	c := New(10)
	c.UpdateTick("bitcoin", 100, 1, 0)
	c.UpdateTick("bitcoin", 110, 1, 65)

	if err := c.SaveCandles(dir, "bitcoin"); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := os.Stat(dir + "/bitcoin.jsonl.tmp"); !os.IsNotExist(err) {
		t.Fatal("expected temp file to be renamed away")
	}

	loaded, err := LoadCandles(dir, "bitcoin")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected 1 completed candle persisted, got %d", len(loaded))
	}
}

func TestPreloadFromDiskSeedsPrice(t *testing.T) {
	dir := t.TempDir()
	seed := New(10)
	seed.UpdateTick("bitcoin", 100, 1, 0)
	seed.UpdateTick("bitcoin", 150, 1, 65)
	if err := seed.SaveCandles(dir, "bitcoin"); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	fresh := New(10)
	if err := fresh.PreloadFromDisk(dir, "bitcoin"); err != nil {
		t.Fatalf("preload failed: %v", err)
	}
	price, ok := fresh.GetPrice("bitcoin")
	if !ok || price != 100 {
		t.Fatalf("expected seeded price 100, got %v ok=%v", price, ok)
	}
}
