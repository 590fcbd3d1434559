// Package conviction implements component C6, the ConvictionEngine: it
// scores a signal 0-100 across nine weighted evidence layers, applies a
// handful of safety-rail multipliers, and maps the result to a USD
// position size. Grounded verbatim on
// original_source/bot/conviction.py.
package conviction

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garveslabs/polymarket-trader/internal/logging"
	"github.com/garveslabs/polymarket-trader/internal/regime"
	"github.com/garveslabs/polymarket-trader/internal/signals"
)

var log = logging.Component("conviction")

// sizeTier maps a conviction band to a USD range, linearly interpolated
// within the band.
type sizeTier struct {
	lo, hi         float64
	minUSD, maxUSD float64
}

var sizeTiers = []sizeTier{
	{0, 30, 0.0, 0.0},     // no_trade
	{30, 50, 8.0, 12.0},   // small
	{50, 70, 12.0, 20.0},  // standard
	{70, 85, 20.0, 28.0},  // increased
	{85, 100, 28.0, 35.0}, // max_conviction
}

const (
	absoluteMaxPerTrade   = 35.0
	absoluteMaxDailyLoss  = 50.0
	losingStreakThreshold = 3
	losingStreakPenalty   = 0.6
	minRollingWRThreshold = 0.45
	lowWRPenalty          = 0.7
	rollingWRWindow       = 20
	extremeFearPenalty    = 0.75
)

// componentWeights sum to 100 so the raw score is already 0-100.
var componentWeights = map[string]float64{
	"consensus_ratio":       20,
	"edge_magnitude":        15,
	"cross_asset_alignment": 12,
	"volatility_clarity":    10,
	"streak_bonus":          8,
	"time_quality":          8,
	"volume_confirmation":   10,
	"temporal_arb_strength": 12,
	"cross_timeframe":       5,
}

// Good/okay trading hours (ET), from a 140+ trade historical analysis.
var goodHoursET = map[int]bool{0: true, 2: true, 10: true, 12: true, 16: true, 17: true}
var okayHoursET = map[int]bool{1: true, 3: true, 4: true, 8: true, 9: true, 11: true, 13: true, 14: true, 15: true}

const (
	allAlignedMinConsensus = 7
	allAlignedMinAssets    = 3
	allAlignedSize         = 35.0
)

// assetPenalty applies a fixed conviction multiplier to assets with a
// documented track record of underperforming the ensemble's edge model.
var assetPenalty = map[string]float64{
	"solana": 0.4,
	"sol":    0.4,
}

const signalMaxAge = 120 * time.Second
const tfMaxAge = 600 * time.Second

// trackedAssets are the markets cross-asset alignment scans across.
var trackedAssets = []string{"bitcoin", "ethereum", "solana", "xrp"}

// AssetSnapshot is a point-in-time view of one asset's signal, used for
// cross-asset and cross-timeframe confirmation scoring.
type AssetSnapshot struct {
	Asset          string
	Direction      string
	ConsensusCount int
	TotalVotes     int
	Edge           float64
	Confidence     float64
	HasVolumeSpike bool
	HasTemporalArb bool
	IndicatorVotes map[string]string
	Timestamp      time.Time
}

// SnapshotFromSignal bridges a SignalEngine Signal into the snapshot
// format ConvictionEngine expects.
func SnapshotFromSignal(sig *signals.Signal, now time.Time) AssetSnapshot {
	return AssetSnapshot{
		Asset:          sig.Asset,
		Direction:      sig.Direction,
		ConsensusCount: sig.ConsensusCount,
		TotalVotes:     sig.TotalVotes,
		Edge:           sig.Edge,
		Confidence:     sig.Confidence,
		HasVolumeSpike: sig.IndicatorVotes["volume_spike"] == sig.Direction,
		HasTemporalArb: sig.IndicatorVotes["temporal_arb"] == sig.Direction,
		IndicatorVotes: sig.IndicatorVotes,
		Timestamp:      now,
	}
}

// Performance is the rolling trade-outcome view the safety rails and
// streak bonus read from.
type Performance struct {
	RollingWR     *float64
	CurrentStreak int
	DailyPnL      float64
	TotalResolved int
}

// PerformanceSource supplies rolling performance, fed by C9's
// PerformanceTracker.
type PerformanceSource interface {
	RollingPerformance() Performance
}

// BankrollSource supplies the auto-compounding bankroll size multiplier.
type BankrollSource interface {
	Multiplier() float64
}

// Result is the C6 scoring output.
type Result struct {
	TotalScore        float64
	PositionSizeUSD   float64
	AllAssetsAligned  bool
	AlignedDirection  string
	Components        map[string]float64
	SafetyAdjustments []string
	TierLabel         string
}

func (r Result) String() string {
	return fmt.Sprintf("Conviction(%.0f/100 -> $%.2f [%s] aligned=%v)",
		r.TotalScore, r.PositionSizeUSD, r.TierLabel, r.AllAssetsAligned)
}

type tfKey struct{ asset, timeframe string }
type tfEntry struct {
	direction string
	at        time.Time
}

// Engine scores conviction and tracks the recent cross-asset/
// cross-timeframe signal state needed to do so.
type Engine struct {
	mu           sync.Mutex
	assetSignals map[string]AssetSnapshot
	tfSignals    map[tfKey]tfEntry

	perf     PerformanceSource
	bankroll BankrollSource
}

// NewEngine returns a ConvictionEngine reading rolling performance from
// perf and the bankroll multiplier from bankroll (either may be nil).
func NewEngine(perf PerformanceSource, bankroll BankrollSource) *Engine {
	return &Engine{
		assetSignals: make(map[string]AssetSnapshot),
		tfSignals:    make(map[tfKey]tfEntry),
		perf:         perf,
		bankroll:     bankroll,
	}
}

// RegisterSignal records snapshot for cross-asset alignment detection.
// Call this for every signal generated, even ones that don't trade, so
// the engine knows what every tracked asset is doing.
func (e *Engine) RegisterSignal(snapshot AssetSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.assetSignals[snapshot.Asset] = snapshot
	e.tfSignals[tfKey{snapshot.Asset, "current"}] = tfEntry{snapshot.Direction, snapshot.Timestamp}
}

// RegisterTimeframeSignal records a signal from a specific timeframe
// for cross-timeframe scoring.
func (e *Engine) RegisterTimeframeSignal(asset, timeframe, direction string, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tfSignals[tfKey{asset, timeframe}] = tfEntry{direction, at}
}

// ExpireStale drops asset/timeframe entries older than their max age.
// Call once per tick.
func (e *Engine) ExpireStale(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for asset, snap := range e.assetSignals {
		if now.Sub(snap.Timestamp) > signalMaxAge {
			delete(e.assetSignals, asset)
		}
	}
	for key, entry := range e.tfSignals {
		if now.Sub(entry.at) > tfMaxAge {
			delete(e.tfSignals, key)
		}
	}
}

// Score scores conviction from 0-100 for sig, given detailed evidence in
// snapshot, the active regime, and the current ATR (nil if unknown),
// and maps the result to a USD position size.
func (e *Engine) Score(sig *signals.Signal, snapshot AssetSnapshot, reg regime.Adjustment, atrValue *float64) Result {
	components := make(map[string]float64, len(componentWeights))
	var safety []string

	// 1. Consensus ratio: 7/13 = base score, 13/13 = max score.
	total := snapshot.TotalVotes
	if total < 1 {
		total = 1
	}
	consensusRatio := float64(snapshot.ConsensusCount) / float64(total)
	const minRatio = 7.0 / 13.0
	normalized := math.Max(0, (consensusRatio-minRatio)/(1.0-minRatio))
	rawCountBonus := math.Max(0, float64(snapshot.ConsensusCount-7)) / 6.0
	consensusScore := math.Min(normalized*0.6+rawCountBonus*0.4, 1.0)
	components["consensus_ratio"] = consensusScore * componentWeights["consensus_ratio"]

	// 2. Edge magnitude.
	edgePct := sig.Edge * 100
	var edgeScore float64
	switch {
	case edgePct <= 8:
		edgeScore = 0.2
	case edgePct <= 12:
		edgeScore = 0.2 + (edgePct-8)/4.0*0.5
	case edgePct <= 18:
		edgeScore = 0.7 + (edgePct-12)/6.0*0.3
	default:
		edgeScore = 1.0
	}
	components["edge_magnitude"] = edgeScore * componentWeights["edge_magnitude"]

	// 3. Cross-asset alignment.
	alignedCount, looseAligned := e.crossAssetAlignment(sig.Direction)
	var crossAssetScore float64
	switch {
	case alignedCount >= 3:
		crossAssetScore = 1.0
	case alignedCount == 2:
		crossAssetScore = 0.5
	default:
		crossAssetScore = 0.0
	}
	components["cross_asset_alignment"] = crossAssetScore * componentWeights["cross_asset_alignment"]

	// 4. Volatility clarity: clear trend vs noisy chop.
	var volScore float64
	switch {
	case atrValue == nil:
		volScore = 0.4
	case *atrValue < 0.0005:
		volScore = 0.1
	case *atrValue < 0.002:
		volScore = 0.3 + (*atrValue-0.0005)/0.0015*0.5
	case *atrValue < 0.005:
		volScore = 0.8
	case *atrValue < 0.01:
		volScore = 0.6
	default:
		volScore = 0.3
	}
	components["volatility_clarity"] = volScore * componentWeights["volatility_clarity"]

	// 5. Streak bonus.
	perf := e.rollingPerformance()
	streak := perf.CurrentStreak
	var streakScore float64
	switch {
	case streak >= 5:
		streakScore = 1.0
	case streak >= 3:
		streakScore = 0.7
	case streak >= 1:
		streakScore = 0.3
	case streak == 0:
		streakScore = 0.15
	default:
		streakScore = 0.0
	}
	components["streak_bonus"] = streakScore * componentWeights["streak_bonus"]

	// 6. Time-of-day quality.
	hour := time.Now().In(easternTZ()).Hour()
	var timeScore float64
	switch {
	case goodHoursET[hour]:
		timeScore = 1.0
	case okayHoursET[hour]:
		timeScore = 0.4
	default:
		timeScore = 0.0
	}
	components["time_quality"] = timeScore * componentWeights["time_quality"]

	// 7. Volume confirmation.
	var volConfirmScore float64
	if snapshot.HasVolumeSpike {
		volConfirmScore = 1.0
	} else if vsDir, ok := snapshot.IndicatorVotes["volume_spike"]; ok {
		if vsDir == sig.Direction {
			volConfirmScore = 0.8
		} else {
			volConfirmScore = 0.1
		}
	} else {
		volConfirmScore = 0.3
	}
	components["volume_confirmation"] = volConfirmScore * componentWeights["volume_confirmation"]

	// 8. Temporal arb strength: has Binance already confirmed the move?
	var arbScore float64
	if snapshot.HasTemporalArb {
		if snapshot.IndicatorVotes["temporal_arb"] == sig.Direction {
			arbScore = 1.0
		} else {
			arbScore = 0.0
		}
	} else if taDir, ok := snapshot.IndicatorVotes["temporal_arb"]; ok {
		if taDir == sig.Direction {
			arbScore = 0.6
		} else {
			arbScore = 0.0
		}
	} else {
		arbScore = 0.2
	}
	components["temporal_arb_strength"] = arbScore * componentWeights["temporal_arb_strength"]

	// 9. Cross-timeframe agreement.
	ctfScore := e.crossTimeframeScore(sig.Asset, sig.Direction)
	components["cross_timeframe"] = ctfScore * componentWeights["cross_timeframe"]

	var rawScore float64
	for _, v := range components {
		rawScore += v
	}

	multiplier := 1.0
	if streak <= -losingStreakThreshold {
		multiplier *= losingStreakPenalty
		safety = append(safety, fmt.Sprintf("losing_streak=%d (penalty %.1fx)", streak, losingStreakPenalty))
	}
	if perf.RollingWR != nil && *perf.RollingWR < minRollingWRThreshold {
		multiplier *= lowWRPenalty
		safety = append(safety, fmt.Sprintf("low_WR=%.1f%% < %.0f%% (penalty %.1fx)",
			*perf.RollingWR*100, minRollingWRThreshold*100, lowWRPenalty))
	}
	if reg.Label == "extreme_fear" {
		multiplier *= extremeFearPenalty
		safety = append(safety, fmt.Sprintf("extreme_fear_regime FnG=%d (penalty %.2fx)", reg.FNGValue, extremeFearPenalty))
	}
	if perf.DailyPnL <= -absoluteMaxDailyLoss {
		multiplier = 0.0
		safety = append(safety, fmt.Sprintf("daily_loss=$%.2f >= $%.0f STOP", perf.DailyPnL, absoluteMaxDailyLoss))
	}
	if penalty, ok := assetPenalty[strings.ToLower(sig.Asset)]; ok {
		multiplier *= penalty
		safety = append(safety, fmt.Sprintf("%s_penalty (%.1fx - consistently low WR)", strings.ToLower(sig.Asset), penalty))
	}

	finalScore := clampF(rawScore*multiplier, 0.0, 100.0)

	allAligned := e.checkAllAssetsAligned(sig.Direction)

	var positionSize float64
	var tierLabel string
	if allAligned && multiplier > 0 {
		positionSize = allAlignedSize
		tierLabel = "all_aligned"
		safety = append(safety, fmt.Sprintf("ALL_ASSETS_ALIGNED: confirm %s, sizing to $%.0f",
			strings.ToUpper(sig.Direction), allAlignedSize))
	} else {
		positionSize = convictionToSize(finalScore)
		tierLabel = tierLabelFor(finalScore)
	}

	if e.bankroll != nil {
		if mult := e.bankroll.Multiplier(); mult != 1.0 {
			positionSize *= mult
			safety = append(safety, fmt.Sprintf("bankroll_mult=%.2fx", mult))
		}
	}

	// A zero-value Adjustment means no regime source was wired; treat
	// that as a no-op rather than zeroing every position out.
	if reg.SizeMultiplier != 0 {
		positionSize *= reg.SizeMultiplier
		if reg.SizeMultiplier != 1.0 {
			safety = append(safety, fmt.Sprintf("regime_size_mult=%.1fx (%s)", reg.SizeMultiplier, reg.Label))
		}
	}

	positionSize = math.Min(positionSize, absoluteMaxPerTrade)
	positionSize = roundUSD(positionSize)

	alignedDirection := "none"
	if looseAligned {
		alignedDirection = sig.Direction
	}

	result := Result{
		TotalScore:        finalScore,
		PositionSizeUSD:   positionSize,
		AllAssetsAligned:  allAligned,
		AlignedDirection:  alignedDirection,
		Components:        components,
		SafetyAdjustments: safety,
		TierLabel:         tierLabel,
	}

	log.Info().Str("asset", sig.Asset).Str("timeframe", sig.Timeframe).Str("direction", sig.Direction).
		Float64("score", finalScore).Float64("size_usd", positionSize).Str("tier", tierLabel).
		Strs("safety", safety).Msg("conviction scored")

	return result
}

// crossAssetAlignment reports how many tracked assets currently agree
// with targetDirection, and whether that clears the loose 3-of-4 bar.
func (e *Engine) crossAssetAlignment(targetDirection string) (count int, aligned bool) {
	now := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, asset := range trackedAssets {
		snap, ok := e.assetSignals[asset]
		if !ok || now.Sub(snap.Timestamp) > signalMaxAge {
			continue
		}
		if snap.Direction == targetDirection {
			count++
		}
	}
	return count, count >= 3
}

// checkAllAssetsAligned is the full All-Assets-Aligned override check:
// at least allAlignedMinAssets tracked assets must agree on direction,
// each with at least allAlignedMinConsensus indicator consensus, and at
// least one must have volume or temporal-arb confirmation.
func (e *Engine) checkAllAssetsAligned(direction string) bool {
	now := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	var alignedAssets []string
	hasVolume, hasArb := false, false
	for _, asset := range trackedAssets {
		snap, ok := e.assetSignals[asset]
		if !ok || now.Sub(snap.Timestamp) > signalMaxAge {
			continue
		}
		if snap.Direction != direction {
			continue
		}
		if snap.ConsensusCount < allAlignedMinConsensus {
			continue
		}
		alignedAssets = append(alignedAssets, asset)
		if snap.HasVolumeSpike {
			hasVolume = true
		}
		if snap.HasTemporalArb {
			hasArb = true
		}
	}

	if len(alignedAssets) < allAlignedMinAssets {
		return false
	}
	if !hasVolume && !hasArb {
		return false
	}
	log.Info().Strs("assets", alignedAssets).Str("direction", direction).
		Bool("volume_confirmed", hasVolume).Bool("arb_confirmed", hasArb).
		Msg("all assets aligned")
	return true
}

// crossTimeframeScore scores 5m/15m agreement for asset (0-1).
func (e *Engine) crossTimeframeScore(asset, direction string) float64 {
	now := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	agreements, checked := 0, 0
	for _, tf := range []string{"5m", "15m"} {
		entry, ok := e.tfSignals[tfKey{asset, tf}]
		if !ok || now.Sub(entry.at) >= tfMaxAge {
			continue
		}
		checked++
		if entry.direction == direction {
			agreements++
		}
	}

	switch checked {
	case 0:
		return 0.3
	case 1:
		if agreements == 1 {
			return 0.5
		}
		return 0.1
	default:
		switch agreements {
		case 2:
			return 1.0
		case 1:
			return 0.3
		default:
			return 0.0
		}
	}
}

// rollingPerformance reads the performance source, defaulting to a
// neutral zero-state when none is wired.
func (e *Engine) rollingPerformance() Performance {
	if e.perf == nil {
		return Performance{}
	}
	return e.perf.RollingPerformance()
}

// convictionToSize maps a 0-100 score to a USD position size, linearly
// interpolated within its tier band.
func convictionToSize(score float64) float64 {
	if score < 30 {
		return 0.0
	}
	for _, tier := range sizeTiers {
		if score >= tier.lo && score < tier.hi {
			t := (score - tier.lo) / (tier.hi - tier.lo)
			return tier.minUSD + t*(tier.maxUSD-tier.minUSD)
		}
	}
	return 35.0 // score == 100 exactly
}

func tierLabelFor(score float64) string {
	switch {
	case score < 30:
		return "no_trade"
	case score < 50:
		return "small"
	case score < 70:
		return "standard"
	case score < 85:
		return "increased"
	default:
		return "max_conviction"
	}
}

func roundUSD(v float64) float64 {
	d := decimal.NewFromFloat(v).Round(2)
	f, _ := d.Float64()
	return f
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

func easternTZ() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}
