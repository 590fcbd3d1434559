// Package indicators implements component C2: the technical-indicator
// library that feeds the signal engine's ensemble vote. Each function
// mirrors the exact formulas and confidence scaling of
// original_source/bot/indicators.py so the Go engine's behavior matches
// the reference bot tick for tick.
package indicators

import (
	"math"

	"github.com/garveslabs/polymarket-trader/internal/priceindex"
)

// Vote is one indicator's directional opinion, mirroring
// original_source's IndicatorVote dataclass.
type Vote struct {
	Direction  string // "up" or "down"
	Confidence float64
	RawValue   float64
}

// Params holds the per-timeframe tuning knobs. Short timeframes run
// faster (shorter-period) variants; long timeframes need more history
// to avoid noise.
type Params struct {
	RSIPeriod  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	EMAFast    int
	EMASlow    int
	BBPeriod   int
	MomShort   int
	MomLong    int
}

// TimeframeParams is the table of tuned indicator parameters per market
// timeframe, copied verbatim from TIMEFRAME_PARAMS.
var TimeframeParams = map[string]Params{
	"5m":  {RSIPeriod: 7, MACDFast: 6, MACDSlow: 12, MACDSignal: 6, EMAFast: 5, EMASlow: 13, BBPeriod: 10, MomShort: 5, MomLong: 15},
	"15m": {RSIPeriod: 14, MACDFast: 12, MACDSlow: 26, MACDSignal: 9, EMAFast: 8, EMASlow: 21, BBPeriod: 20, MomShort: 8, MomLong: 30},
	"1h":  {RSIPeriod: 21, MACDFast: 12, MACDSlow: 26, MACDSignal: 9, EMAFast: 12, EMASlow: 26, BBPeriod: 20, MomShort: 10, MomLong: 40},
	"4h":  {RSIPeriod: 28, MACDFast: 24, MACDSlow: 52, MACDSignal: 18, EMAFast: 20, EMASlow: 50, BBPeriod: 40, MomShort: 15, MomLong: 60},
}

// DefaultParams is used for any timeframe not in the table (mirrors the
// Python DEFAULT_PARAMS fallback to "15m").
var DefaultParams = TimeframeParams["15m"]

// GetParams returns the tuned parameters for timeframe, or DefaultParams
// if the timeframe is unrecognized.
func GetParams(timeframe string) Params {
	if p, ok := TimeframeParams[timeframe]; ok {
		return p
	}
	return DefaultParams
}

// ema computes an exponential moving average over data with the given
// span, seeding the series with data[0] (matches _ema in indicators.py).
func ema(data []float64, span int) []float64 {
	alpha := 2.0 / (float64(span) + 1)
	out := make([]float64, len(data))
	out[0] = data[0]
	for i := 1; i < len(data); i++ {
		out[i] = alpha*data[i] + (1-alpha)*out[i-1]
	}
	return out
}

func clampConf(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	return v
}

// RSI: oversold (<30) votes up, overbought (>70) votes down, the 30-70
// neutral zone casts no vote to avoid an inherent up bias.
func RSI(closes []float64, period int) *Vote {
	if len(closes) < period+1 {
		return nil
	}
	window := closes[len(closes)-(period+1):]
	var gainSum, lossSum float64
	for i := 1; i < len(window); i++ {
		d := window[i] - window[i-1]
		if d > 0 {
			gainSum += d
		} else {
			lossSum += -d
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)

	var rsiVal float64
	if avgLoss == 0 {
		rsiVal = 100.0
	} else {
		rs := avgGain / avgLoss
		rsiVal = 100.0 - (100.0 / (1.0 + rs))
	}

	switch {
	case rsiVal < 30:
		conf := (30 - rsiVal) / 30
		return &Vote{Direction: "up", Confidence: clampConf(conf), RawValue: rsiVal}
	case rsiVal > 70:
		conf := (rsiVal - 70) / 30
		return &Vote{Direction: "down", Confidence: clampConf(conf), RawValue: rsiVal}
	default:
		return nil
	}
}

// EMACrossover votes up when the fast EMA sits above the slow EMA.
func EMACrossover(closes []float64, fast, slow int) *Vote {
	if len(closes) < slow+5 {
		return nil
	}
	fastEMA := ema(closes, fast)
	slowEMA := ema(closes, slow)
	last := len(closes) - 1
	gap := (fastEMA[last] - slowEMA[last]) / slowEMA[last]

	direction := "down"
	if gap > 0 {
		direction = "up"
	}
	conf := clampConf(math.Abs(gap) * 100)
	return &Vote{Direction: direction, Confidence: conf, RawValue: gap * 100}
}

// BollingerBands votes up when price sits near the lower band, down near
// the upper band; the 0.2-0.8 middle band is neutral. A zero-width band
// (std == 0, no volatility) casts no vote.
func BollingerBands(closes []float64, period int, numStd float64) *Vote {
	if len(closes) < period {
		return nil
	}
	window := closes[len(closes)-period:]
	var sum float64
	for _, v := range window {
		sum += v
	}
	sma := sum / float64(period)
	var varSum float64
	for _, v := range window {
		d := v - sma
		varSum += d * d
	}
	std := math.Sqrt(varSum / float64(period))
	if std == 0 {
		return nil
	}

	upper := sma + numStd*std
	lower := sma - numStd*std
	price := closes[len(closes)-1]
	bandWidth := upper - lower
	pos := (price - lower) / bandWidth

	switch {
	case pos < 0.2:
		conf := (0.2 - pos) / 0.2
		return &Vote{Direction: "up", Confidence: clampConf(conf), RawValue: pos}
	case pos > 0.8:
		conf := (pos - 0.8) / 0.2
		return &Vote{Direction: "down", Confidence: clampConf(conf), RawValue: pos}
	default:
		return nil
	}
}

// Momentum compares a short and a long moving average of closes.
func Momentum(closes []float64, shortWindow, longWindow int) *Vote {
	if len(closes) < longWindow {
		return nil
	}
	shortAvg := mean(closes[len(closes)-shortWindow:])
	longAvg := mean(closes[len(closes)-longWindow:])
	mom := (shortAvg - longAvg) / longAvg

	direction := "down"
	if mom > 0 {
		direction = "up"
	}
	conf := clampConf(math.Abs(mom) * 50)
	return &Vote{Direction: direction, Confidence: conf, RawValue: mom * 100}
}

func mean(xs []float64) float64 {
	var sum float64
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}

// VWAP votes up when the latest close sits above the volume-weighted
// average price of the supplied candles.
func VWAP(candles []priceindex.Candle) *Vote {
	if len(candles) < 10 {
		return nil
	}
	var totalVP, totalVol float64
	for _, c := range candles {
		typical := (c.High + c.Low + c.Close) / 3.0
		totalVP += typical * c.Volume
		totalVol += c.Volume
	}
	if totalVol == 0 {
		return nil
	}
	vwapVal := totalVP / totalVol
	price := candles[len(candles)-1].Close
	diff := (price - vwapVal) / vwapVal

	direction := "down"
	if diff > 0 {
		direction = "up"
	}
	conf := clampConf(math.Abs(diff) * 100)
	return &Vote{Direction: direction, Confidence: conf, RawValue: vwapVal}
}

// MACD votes on the sign of the histogram (MACD line minus signal line),
// with a confidence boost when the histogram just crossed zero.
func MACD(closes []float64, fast, slow, signalPeriod int) *Vote {
	if len(closes) < slow+signalPeriod {
		return nil
	}
	fastEMA := ema(closes, fast)
	slowEMA := ema(closes, slow)
	macdLine := make([]float64, len(closes))
	for i := range closes {
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}
	signalLine := ema(macdLine, signalPeriod)

	last := len(closes) - 1
	histogram := macdLine[last] - signalLine[last]
	prevHistogram := macdLine[last-1] - signalLine[last-1]

	direction := "down"
	if histogram > 0 {
		direction = "up"
	}
	magnitude := math.Abs(histogram) / closes[last] * 100
	conf := clampConf(magnitude * 20)

	crossedUp := histogram > 0 && prevHistogram <= 0
	crossedDown := histogram < 0 && prevHistogram >= 0
	if crossedUp || crossedDown {
		conf = clampConf(conf + 0.3)
	}

	return &Vote{Direction: direction, Confidence: conf, RawValue: histogram}
}

// HeikinAshi walks the Heikin Ashi candle series backward counting a
// consecutive same-direction streak; a streak shorter than 2 casts no
// vote.
func HeikinAshi(candles []priceindex.Candle) *Vote {
	if len(candles) < 10 {
		return nil
	}

	haOpens := make([]float64, len(candles))
	haCloses := make([]float64, len(candles))

	c0 := candles[0]
	haOpens[0] = (c0.Open + c0.Close) / 2
	haCloses[0] = (c0.Open + c0.High + c0.Low + c0.Close) / 4

	for i := 1; i < len(candles); i++ {
		c := candles[i]
		haCloses[i] = (c.Open + c.High + c.Low + c.Close) / 4
		haOpens[i] = (haOpens[i-1] + haCloses[i-1]) / 2
	}

	var bullish, bearish int
walk:
	for i := len(haCloses) - 1; i >= 0; i-- {
		switch {
		case haCloses[i] > haOpens[i]:
			if bearish > 0 {
				break walk
			}
			bullish++
		case haCloses[i] < haOpens[i]:
			if bullish > 0 {
				break walk
			}
			bearish++
		default:
			break walk
		}
	}

	streak := bullish
	if bearish > streak {
		streak = bearish
	}
	if streak < 2 {
		return nil
	}

	direction := "down"
	raw := -float64(streak)
	if bullish > bearish {
		direction = "up"
		raw = float64(streak)
	}
	conf := clampConf(float64(streak) / 5.0)
	return &Vote{Direction: direction, Confidence: conf, RawValue: raw}
}
