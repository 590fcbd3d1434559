// Package signals implements component C5, the SignalEngine: it pulls
// every indicator vote for an asset/timeframe pair, combines them under
// dynamic per-indicator weights and a per-timeframe emphasis table, and
// emits a trade Signal only when consensus, trend alignment, confidence,
// and fee-aware edge all clear their bars. Any failed gate is a clean
// "no trade," not an error — assembled from original_source/bot/backtest.py's
// signal-scoring path (the live bot/signals.py module was not present in
// the retrieval pack) and original_source/bot/indicators.py for the vote
// roster.
package signals

import (
	"context"
	"math"

	"github.com/garveslabs/polymarket-trader/internal/fees"
	"github.com/garveslabs/polymarket-trader/internal/indicators"
	"github.com/garveslabs/polymarket-trader/internal/logging"
	"github.com/garveslabs/polymarket-trader/internal/priceindex"
	"github.com/garveslabs/polymarket-trader/internal/regime"
	"github.com/garveslabs/polymarket-trader/internal/weights"
)

var log = logging.Component("signals")

// Timeframes supported by the engine.
const (
	TF5m  = "5m"
	TF15m = "15m"
	TF1h  = "1h"
	TF4h  = "4h"
)

// minActiveVotes is the hard floor on active indicator votes before any
// signal can fire, regardless of consensus ratio.
const minActiveVotes = 7

// atrFloorFraction is the minimum ATR-as-fraction-of-price required to
// consider the market tradeable; below this the move is too flat to
// clear fees reliably.
const atrFloorFraction = 0.0005

// minEdgeByTimeframe is the after-fee edge a signal must clear.
var minEdgeByTimeframe = map[string]float64{
	TF5m:  0.08,
	TF15m: 0.06,
	TF1h:  0.05,
	TF4h:  0.04,
}

// probabilityRangeByTimeframe bounds the raw probability estimate;
// shorter timeframes have less time for a big move to play out so the
// range is tighter around 50/50.
var probabilityRangeByTimeframe = map[string][2]float64{
	TF5m:  {0.30, 0.70},
	TF15m: {0.25, 0.75},
	TF1h:  {0.20, 0.80},
	TF4h:  {0.15, 0.85},
}

// baseWeights are each indicator's starting ensemble weight before
// dynamic accuracy adjustment and timeframe scaling.
var baseWeights = map[string]float64{
	"rsi":                 1.0,
	"ema_crossover":       1.0,
	"bollinger":           1.0,
	"momentum":            1.0,
	"vwap":                1.0,
	"macd":                1.0,
	"heikin_ashi":         1.0,
	"order_flow_delta":    1.1,
	"price_divergence":    1.0,
	"liquidity_signal":    1.0,
	"temporal_arb":        1.5,
	"volume_spike":        1.2,
	"fear_greed":          0.8,
	"funding_rate":        0.9,
	"liquidation_cascade": 0.9,
	"spot_depth":          0.9,
}

// timeframeScale emphasizes temporal arbitrage and de-emphasizes slower
// trend indicators on short timeframes, where the arbitrage window is
// what actually matters.
var timeframeScale = map[string]map[string]float64{
	"temporal_arb":     {TF5m: 1.5, TF15m: 1.3, TF1h: 0.0, TF4h: 0.0},
	"heikin_ashi":      {TF5m: 0.7, TF15m: 0.85, TF1h: 1.0, TF4h: 1.1},
	"vwap":             {TF5m: 0.7, TF15m: 0.9, TF1h: 1.0, TF4h: 1.1},
	"macd":             {TF5m: 0.8, TF15m: 1.0, TF1h: 1.0, TF4h: 1.1},
	"momentum":         {TF5m: 0.9, TF15m: 1.0, TF1h: 1.0, TF4h: 1.0},
	"volume_spike":     {TF5m: 1.2, TF15m: 1.1, TF1h: 1.0, TF4h: 1.0},
	"order_flow_delta": {TF5m: 1.3, TF15m: 1.1, TF1h: 0.9, TF4h: 0.8},
}

func scaleFor(name, timeframe string) float64 {
	if byTF, ok := timeframeScale[name]; ok {
		if s, ok := byTF[timeframe]; ok {
			return s
		}
	}
	return 1.0
}

// Signal is the ensemble's directional call for one asset/timeframe.
type Signal struct {
	Asset          string
	Timeframe      string
	Direction      string // "up" or "down"
	Probability    float64
	Edge           float64
	Confidence     float64
	UpTokenID      string
	DownTokenID    string
	ATRValue       float64
	IndicatorVotes map[string]string // indicator name -> direction
	ConsensusCount int              // votes agreeing with Direction
	TotalVotes     int              // total active indicator votes
}

// OrderbookSnapshot carries resting Polymarket book depth for the
// liquidity-imbalance vote.
type OrderbookSnapshot struct {
	BidDepth float64
	AskDepth float64
	Spread   float64
}

// DerivativesSnapshot carries the optional Binance-derivatives inputs
// for the three supplemented indicators.
type DerivativesSnapshot struct {
	FundingRate     *float64
	LongLiqUSD      float64
	ShortLiqUSD     float64
	CascadeDetected bool
	SpotBids        []indicators.DepthLevel
	SpotAsks        []indicators.DepthLevel
}

// Request bundles the C5 evaluation inputs for one asset/timeframe.
type Request struct {
	Asset          string
	Timeframe      string
	UpTokenID      string
	DownTokenID    string
	ImpliedUpPrice *float64
	Orderbook      *OrderbookSnapshot
	Derivatives    *DerivativesSnapshot
	Regime         regime.Adjustment
}

// Engine evaluates signal requests against the candle cache, dynamic
// weight learner, and Fear & Greed sentiment source.
type Engine struct {
	cache     *priceindex.Cache
	learner   *weights.Learner
	sentiment *indicators.FearGreedIndexer
}

// NewEngine returns a SignalEngine reading candles from cache, indicator
// weights from learner, and sentiment from sentiment (may be nil to
// disable the Fear & Greed vote).
func NewEngine(cache *priceindex.Cache, learner *weights.Learner, sentiment *indicators.FearGreedIndexer) *Engine {
	return &Engine{cache: cache, learner: learner, sentiment: sentiment}
}

// minCandlesFor returns the minimum candle history C5 requires before it
// will even attempt to compute indicator votes, derived from the
// timeframe's own indicator parameter table (the slowest indicator sets
// the floor).
func minCandlesFor(timeframe string) int {
	p := indicators.GetParams(timeframe)
	floor := p.BBPeriod
	if p.MomLong > floor {
		floor = p.MomLong
	}
	if p.EMASlow+5 > floor {
		floor = p.EMASlow + 5
	}
	if p.MACDSlow+p.MACDSignal > floor {
		floor = p.MACDSlow + p.MACDSignal
	}
	return floor
}

// Evaluate runs the full C5 pipeline for req, returning nil when any
// gate fails to clear (a clean no-trade).
func (e *Engine) Evaluate(ctx context.Context, req Request) *Signal {
	params := indicators.GetParams(req.Timeframe)
	minCandles := minCandlesFor(req.Timeframe)

	candles := e.cache.GetCandles(req.Asset, 0)
	if len(candles) < minCandles {
		return nil
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	atrVal, ok := indicators.ATR(candles, 14)
	if !ok || atrVal < atrFloorFraction {
		return nil
	}

	votes := e.collectVotes(ctx, req, candles, closes, params)
	if len(votes) < minActiveVotes {
		return nil
	}

	weighted := e.weightedVotes(votes)

	var weightedSum, absWeightSum float64
	var upCount, downCount int
	for name, v := range votes {
		w := weighted[name] * scaleFor(name, req.Timeframe)
		sign := -1.0
		if v.Direction == "up" {
			sign = 1.0
			upCount++
		} else {
			downCount++
		}
		weightedSum += w * v.Confidence * sign
		absWeightSum += math.Abs(w)
	}
	if absWeightSum == 0 {
		return nil
	}
	score := weightedSum / absWeightSum

	active := len(votes)
	majorityDir := "up"
	majorityCount := upCount
	if downCount > upCount {
		majorityDir = "down"
		majorityCount = downCount
	}

	minConsensus := consensusFloor(active)
	if majorityCount < minConsensus {
		return nil
	}

	if opposesTrend(closes, params, majorityDir) {
		stricter := minConsensus + 2
		if floor := consensusFloor(active); floor > stricter {
			stricter = floor
		}
		if majorityCount < stricter {
			return nil
		}
	}

	probRange := probabilityRangeByTimeframe[req.Timeframe]
	if probRange == ([2]float64{}) {
		probRange = probabilityRangeByTimeframe[TF15m]
	}
	// rawProb is always the probability of "up": score's sign already
	// encodes which direction the ensemble leans.
	rawProb := clampF(0.5+score*0.25, probRange[0], probRange[1])
	confidence := math.Min(math.Abs(score), 1.0)
	if confidence < req.Regime.ConfidenceFloor {
		return nil
	}

	pUp := rawProb
	pDown := 1 - rawProb
	fee := fees.Estimate(req.Timeframe, req.ImpliedUpPrice)
	edgeUp, edgeDown := edgesBothSides(pUp, pDown, req.ImpliedUpPrice, fee)

	direction := "up"
	edge := edgeUp
	probDir := pUp
	if edgeDown > edgeUp {
		direction = "down"
		edge = edgeDown
		probDir = pDown
	}

	minEdge := minEdgeByTimeframe[req.Timeframe]
	if minEdge == 0 {
		minEdge = 0.05
	}
	if edge < minEdge*req.Regime.EdgeMultiplier {
		return nil
	}

	voteDirections := make(map[string]string, len(votes))
	for name, v := range votes {
		voteDirections[name] = v.Direction
	}

	log.Debug().Str("asset", req.Asset).Str("timeframe", req.Timeframe).
		Str("direction", direction).Float64("edge", edge).Float64("confidence", confidence).
		Msg("signal emitted")

	return &Signal{
		Asset:          req.Asset,
		Timeframe:      req.Timeframe,
		Direction:      direction,
		Probability:    probDir,
		Edge:           edge,
		Confidence:     confidence,
		UpTokenID:      req.UpTokenID,
		DownTokenID:    req.DownTokenID,
		ATRValue:       atrVal,
		IndicatorVotes: voteDirections,
		ConsensusCount: majorityCount,
		TotalVotes:     active,
	}
}

func (e *Engine) collectVotes(ctx context.Context, req Request, candles []priceindex.Candle, closes []float64, params indicators.Params) map[string]*indicators.Vote {
	votes := make(map[string]*indicators.Vote)
	add := func(name string, v *indicators.Vote) {
		if v != nil {
			votes[name] = v
		}
	}

	add("rsi", indicators.RSI(closes, params.RSIPeriod))
	add("ema_crossover", indicators.EMACrossover(closes, params.EMAFast, params.EMASlow))
	add("bollinger", indicators.BollingerBands(closes, params.BBPeriod, 2.0))
	add("momentum", indicators.Momentum(closes, params.MomShort, params.MomLong))
	add("vwap", indicators.VWAP(candles))
	add("macd", indicators.MACD(closes, params.MACDFast, params.MACDSlow, params.MACDSignal))
	add("heikin_ashi", indicators.HeikinAshi(candles))

	buyVol, sellVol := e.cache.GetOrderFlow(req.Asset, priceindex.DefaultOrderFlowWindow)
	add("order_flow_delta", indicators.OrderFlowDelta(buyVol, sellVol))

	price3mAgo, hasAgo := e.cache.GetPriceAgo(req.Asset, 3)
	currentPrice, hasPrice := e.cache.GetPrice(req.Asset)
	if hasAgo && hasPrice {
		add("price_divergence", indicators.PriceDivergence(currentPrice, &price3mAgo, req.ImpliedUpPrice))
		add("temporal_arb", indicators.TemporalArb(currentPrice, &price3mAgo, req.ImpliedUpPrice, req.Timeframe))
	}

	add("volume_spike", indicators.VolumeSpike(candles, 2.0, 20))

	if req.Orderbook != nil {
		add("liquidity_signal", indicators.LiquiditySignal(req.Orderbook.BidDepth, req.Orderbook.AskDepth, req.Orderbook.Spread))
	}

	if e.sentiment != nil {
		add("fear_greed", e.sentiment.Vote(ctx))
	}

	if req.Derivatives != nil {
		d := req.Derivatives
		if d.FundingRate != nil {
			add("funding_rate", indicators.FundingRateSignal(*d.FundingRate))
		}
		add("liquidation_cascade", indicators.LiquidationCascadeSignal(d.LongLiqUSD, d.ShortLiqUSD, d.CascadeDetected))
		add("spot_depth", indicators.SpotDepthSignal(d.SpotBids, d.SpotAsks))
	}

	return votes
}

func (e *Engine) weightedVotes(votes map[string]*indicators.Vote) map[string]float64 {
	base := make(map[string]float64, len(votes))
	for name := range votes {
		w, ok := baseWeights[name]
		if !ok {
			w = 1.0
		}
		base[name] = w
	}
	if e.learner == nil {
		return base
	}
	return e.learner.DynamicWeights(base)
}

// consensusFloor implements MIN_CONSENSUS = clamp(ceil(0.7*active), 3, 7).
func consensusFloor(active int) int {
	floor := int(math.Ceil(0.7 * float64(active)))
	if floor < 3 {
		floor = 3
	}
	if floor > 7 {
		floor = 7
	}
	return floor
}

// opposesTrend compares a short and long moving average of closes
// against the majority direction, flagging a counter-trend signal.
func opposesTrend(closes []float64, params indicators.Params, majorityDir string) bool {
	if len(closes) < params.MomLong {
		return false
	}
	shortAvg := meanLast(closes, params.MomShort)
	longAvg := meanLast(closes, params.MomLong)
	trendUp := shortAvg > longAvg
	if majorityDir == "up" && !trendUp {
		return true
	}
	if majorityDir == "down" && trendUp {
		return true
	}
	return false
}

func meanLast(xs []float64, n int) float64 {
	window := xs[len(xs)-n:]
	var sum float64
	for _, v := range window {
		sum += v
	}
	return sum / float64(n)
}

// edgesBothSides computes the fee-adjusted edge for both up and down,
// using implied market prices when available and 0.5 otherwise.
func edgesBothSides(pUp, pDown float64, impliedUp *float64, fee float64) (edgeUp, edgeDown float64) {
	var iUp, iDown float64 = 0.5, 0.5
	if impliedUp != nil && *impliedUp > 0.01 && *impliedUp < 0.99 {
		iUp = *impliedUp
		iDown = 1 - *impliedUp
	}
	edgeUp = pUp - iUp - fee
	edgeDown = pDown - iDown - fee
	return edgeUp, edgeDown
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
