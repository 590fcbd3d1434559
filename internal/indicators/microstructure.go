package indicators

import (
	"math"

	"github.com/garveslabs/polymarket-trader/internal/priceindex"
)

// OrderFlowDelta votes with the side that dominates cumulative buy/sell
// volume over the tick-rule classified window.
func OrderFlowDelta(buyVolume, sellVolume float64) *Vote {
	total := buyVolume + sellVolume
	if total == 0 {
		return nil
	}
	delta := (buyVolume - sellVolume) / total
	direction := "down"
	if delta > 0 {
		direction = "up"
	}
	conf := clampConf(math.Abs(delta))
	return &Vote{Direction: direction, Confidence: conf, RawValue: delta * 100}
}

// PriceDivergence detects when spot price momentum has moved but the
// prediction market's implied probability hasn't caught up yet, betting
// with the spot direction. polymarketImplied may be nil when unavailable,
// in which case the fallback path uses spot momentum alone.
func PriceDivergence(spotPrice float64, price3mAgo *float64, polymarketImplied *float64) *Vote {
	if spotPrice <= 0 || price3mAgo == nil || *price3mAgo <= 0 {
		return nil
	}
	pctChange := (spotPrice - *price3mAgo) / *price3mAgo

	if polymarketImplied != nil && *polymarketImplied > 0.01 && *polymarketImplied < 0.99 {
		polyLean := (*polymarketImplied - 0.5) * 2
		if math.Abs(pctChange) > 0.0005 {
			direction := "down"
			if pctChange > 0 {
				direction = "up"
			}
			moveSize := math.Abs(pctChange) * 100
			polyAdjustment := math.Abs(polyLean)
			gap := moveSize - polyAdjustment*5
			if gap > 0 {
				conf := math.Min(gap*0.4, 0.9)
				return &Vote{Direction: direction, Confidence: conf, RawValue: pctChange * 100}
			}
		}
	}

	if math.Abs(pctChange) > 0.001 {
		direction := "down"
		if pctChange > 0 {
			direction = "up"
		}
		conf := math.Min(math.Abs(pctChange)*200, 0.7)
		return &Vote{Direction: direction, Confidence: conf, RawValue: pctChange * 100}
	}
	return nil
}

// LiquiditySignal votes with the side holding deeper resting book depth,
// discounted when the spread is wide (spread_factor).
func LiquiditySignal(totalBidDepth, totalAskDepth, spread float64) *Vote {
	total := totalBidDepth + totalAskDepth
	if total == 0 {
		return nil
	}
	imbalance := (totalBidDepth - totalAskDepth) / total
	direction := "down"
	if imbalance > 0 {
		direction = "up"
	}
	spreadFactor := math.Max(1.0-spread*10, 0.2)
	conf := clampConf(math.Abs(imbalance) * spreadFactor)
	return &Vote{Direction: direction, Confidence: conf, RawValue: imbalance * 100}
}

// ATR returns the Average True Range as a fraction of the latest close,
// or (0, false) if there isn't enough candle history. It is a volatility
// filter, not a directional vote.
func ATR(candles []priceindex.Candle, period int) (float64, bool) {
	if len(candles) < period+1 {
		return 0, false
	}
	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		c := candles[i]
		prev := candles[i-1]
		tr := math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prev.Close), math.Abs(c.Low-prev.Close)))
		trs = append(trs, tr)
	}
	window := trs[len(trs)-period:]
	atrVal := mean(window)
	price := candles[len(candles)-1].Close
	if price <= 0 {
		return 0, false
	}
	return atrVal / price, true
}

// TemporalArb is the highest-edge strategy in the ensemble: spot price
// has already confirmed a direction while the prediction market's
// implied probability still sits near 50/50. Only fires for the 5m and
// 15m timeframes, where the arbitrage window is short enough to matter.
func TemporalArb(currentPrice float64, price3mAgo *float64, impliedUp *float64, timeframe string) *Vote {
	if timeframe != "5m" && timeframe != "15m" {
		return nil
	}
	if price3mAgo == nil || *price3mAgo <= 0 || currentPrice <= 0 {
		return nil
	}
	pctMove := (currentPrice - *price3mAgo) / *price3mAgo
	if math.Abs(pctMove) < 0.001 {
		return nil
	}

	if impliedUp != nil && math.Abs(*impliedUp-0.5) < 0.08 {
		direction := "down"
		if pctMove > 0 {
			direction = "up"
		}
		conf := math.Min(math.Abs(pctMove)*400, 0.95)
		return &Vote{Direction: direction, Confidence: conf, RawValue: pctMove * 100}
	}

	if math.Abs(pctMove) > 0.002 {
		direction := "down"
		if pctMove > 0 {
			direction = "up"
		}
		conf := math.Min(math.Abs(pctMove)*200, 0.8)
		return &Vote{Direction: direction, Confidence: conf, RawValue: pctMove * 100}
	}
	return nil
}

// VolumeSpike votes with the direction of the latest candle when its
// volume exceeds `threshold`x the average of the preceding `lookback`
// candles (the current candle is excluded from that average).
func VolumeSpike(candles []priceindex.Candle, threshold float64, lookback int) *Vote {
	if len(candles) < lookback+1 {
		return nil
	}
	window := candles[len(candles)-lookback-1 : len(candles)-1]
	vols := make([]float64, len(window))
	for i, c := range window {
		vols[i] = c.Volume
	}
	avgVol := mean(vols)
	if avgVol <= 0 {
		return nil
	}

	last := candles[len(candles)-1]
	if last.Volume > avgVol*threshold {
		direction := "down"
		if last.Close > last.Open {
			direction = "up"
		}
		conf := clampConf((last.Volume/avgVol - 1) / 3.0)
		return &Vote{Direction: direction, Confidence: conf, RawValue: last.Volume / avgVol}
	}
	return nil
}
