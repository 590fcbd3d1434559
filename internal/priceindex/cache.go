// Package priceindex implements the tick ingestion and candle cache
// (component C1): it buckets raw trade ticks into minute OHLCV candles
// per asset, classifies buy/sell pressure with the tick rule, and keeps a
// bounded in-memory history plus order-flow windowing. Grounded on
// original_source/bot/price_cache.py for the exact algorithm and on
// yoghaf-market-indikator's ring buffer for the bounded-history idiom.
package priceindex

import (
	"sync"

	"github.com/garveslabs/polymarket-trader/internal/logging"
)

const (
	// DefaultCapacity is the default bounded candle history length per
	// asset, matching original_source/bot/price_cache.py's maxlen=200.
	DefaultCapacity = 200

	// DefaultOrderFlowWindow matches the Python default window=30.
	DefaultOrderFlowWindow = 30
)

type assetState struct {
	mu sync.RWMutex

	candles *ringBuffer
	flow    *ringBuffer2 // parallel buy/sell volume per completed minute

	building     Candle
	buildingBuy  float64
	buildingSell float64
	hasBuilding  bool

	latestPrice float64
	prevPrice   float64
	hasPrev     bool
}

// ringBuffer2 is a small fixed-capacity circular buffer of flowBucket,
// mirroring ringBuffer's shape for the parallel buy/sell volume series.
type ringBuffer2 struct {
	data     []flowBucket
	capacity int
	head     int
	size     int
	full     bool
}

func newRingBuffer2(capacity int) *ringBuffer2 {
	return &ringBuffer2{data: make([]flowBucket, capacity), capacity: capacity}
}

func (r *ringBuffer2) Add(b flowBucket) {
	r.data[r.head] = b
	r.head = (r.head + 1) % r.capacity
	if r.full {
		return
	}
	r.size++
	if r.size == r.capacity {
		r.full = true
	}
}

func (r *ringBuffer2) Last(n int) []flowBucket {
	var all []flowBucket
	if !r.full {
		all = append(all, r.data[:r.size]...)
	} else {
		all = append(all, r.data[r.head:]...)
		all = append(all, r.data[:r.head]...)
	}
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Cache is the per-process candle cache across all tracked assets.
type Cache struct {
	mu     sync.RWMutex
	assets map[string]*assetState
	cap    int
}

// New returns a Cache with the given per-asset candle history capacity.
// Pass 0 to use DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{assets: make(map[string]*assetState), cap: capacity}
}

func (c *Cache) state(asset string) *assetState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.assets[asset]
	if !ok {
		st = &assetState{
			candles: newRingBuffer(c.cap),
			flow:    newRingBuffer2(c.cap),
		}
		c.assets[asset] = st
	}
	return st
}

// UpdateTick ingests one raw trade tick for asset at unix-second
// timestamp ts. Classification follows the tick rule: a trade at or
// above the previous price is a buy, below is a sell; the very first
// tick for an asset is treated as a buy (mirrors original_source's
// `is_buy = price >= prev if prev is not None else True`).
func (c *Cache) UpdateTick(asset string, price, volume float64, ts int64) {
	if price <= 0 || volume <= 0 {
		return
	}
	st := c.state(asset)
	st.mu.Lock()
	defer st.mu.Unlock()

	isBuy := true
	if st.hasPrev {
		isBuy = price >= st.prevPrice
	}
	minute := (ts / 60) * 60

	if !st.hasBuilding {
		st.building = Candle{Timestamp: minute, Open: price, High: price, Low: price, Close: price, Volume: volume}
		st.hasBuilding = true
		if isBuy {
			st.buildingBuy = volume
		} else {
			st.buildingSell = volume
		}
	} else if minute > st.building.Timestamp {
		st.candles.Add(st.building)
		st.flow.Add(flowBucket{minute: st.building.Timestamp, buyVol: st.buildingBuy, sellVol: st.buildingSell})

		st.building = Candle{Timestamp: minute, Open: price, High: price, Low: price, Close: price, Volume: volume}
		if isBuy {
			st.buildingBuy = volume
			st.buildingSell = 0
		} else {
			st.buildingBuy = 0
			st.buildingSell = volume
		}
	} else {
		if price > st.building.High {
			st.building.High = price
		}
		if price < st.building.Low {
			st.building.Low = price
		}
		st.building.Close = price
		st.building.Volume += volume
		if isBuy {
			st.buildingBuy += volume
		} else {
			st.buildingSell += volume
		}
	}

	st.prevPrice = price
	st.hasPrev = true
	st.latestPrice = price
}

// GetPrice returns the most recent tick price for asset, or (0, false)
// if no ticks have been seen.
func (c *Cache) GetPrice(asset string) (float64, bool) {
	st := c.state(asset)
	st.mu.RLock()
	defer st.mu.RUnlock()
	if !st.hasPrev {
		return 0, false
	}
	return st.latestPrice, true
}

// GetCandles returns up to n most recent candles (completed history plus
// the in-progress building candle, if any), chronological order.
func (c *Cache) GetCandles(asset string, n int) []Candle {
	st := c.state(asset)
	st.mu.RLock()
	defer st.mu.RUnlock()
	completed := st.candles.Last(n)
	if !st.hasBuilding {
		return completed
	}
	out := make([]Candle, 0, len(completed)+1)
	out = append(out, completed...)
	out = append(out, st.building)
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// GetCloses returns the Close of up to n most recent candles including
// the building candle, chronological order.
func (c *Cache) GetCloses(asset string, n int) []float64 {
	candles := c.GetCandles(asset, n)
	closes := make([]float64, len(candles))
	for i, cd := range candles {
		closes[i] = cd.Close
	}
	return closes
}

// CandleCount returns the number of completed candles stored for asset
// (excludes the in-progress building candle).
func (c *Cache) CandleCount(asset string) int {
	st := c.state(asset)
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.candles.Size()
}

// GetPriceAgo returns the close price from `minutes` minutes ago, looking
// only at completed candles (never the building one). Clamps at the
// oldest/newest available candle if minutes is out of range. Returns
// (0, false) if there is no history at all.
func (c *Cache) GetPriceAgo(asset string, minutes int) (float64, bool) {
	st := c.state(asset)
	st.mu.RLock()
	defer st.mu.RUnlock()
	all := st.candles.GetAll()
	if len(all) == 0 {
		return 0, false
	}
	idx := len(all) - 1 - minutes
	if idx < 0 {
		idx = 0
	}
	if idx >= len(all) {
		idx = len(all) - 1
	}
	return all[idx].Close, true
}

// GetOrderFlow sums buy/sell volume over the last `window` completed
// minutes plus the currently building minute's running accumulator,
// matching original_source's inclusion of in-progress volume.
func (c *Cache) GetOrderFlow(asset string, window int) (buyVol, sellVol float64) {
	if window <= 0 {
		window = DefaultOrderFlowWindow
	}
	st := c.state(asset)
	st.mu.RLock()
	defer st.mu.RUnlock()
	for _, b := range st.flow.Last(window) {
		buyVol += b.buyVol
		sellVol += b.sellVol
	}
	if st.hasBuilding {
		buyVol += st.buildingBuy
		sellVol += st.buildingSell
	}
	return buyVol, sellVol
}

var log = logging.Component("priceindex")
