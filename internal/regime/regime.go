// Package regime implements component C3: it turns the crypto Fear &
// Greed Index into a regime classification that scales position size,
// edge requirements, and consensus thresholds across the rest of the
// engine. Grounded on original_source/bot/regime.py.
package regime

import (
	"context"
	"sync"
	"time"

	"github.com/garveslabs/polymarket-trader/internal/logging"
)

// CacheTTL matches the 300-second refresh window in regime.py.
const CacheTTL = 300 * time.Second

// Adjustment is the set of multipliers/offsets a regime applies
// downstream, mirroring the RegimeAdjustment dataclass.
type Adjustment struct {
	Label           string
	FNGValue        int
	SizeMultiplier  float64
	EdgeMultiplier  float64
	ConsensusOffset int
	ConfidenceFloor float64
}

// buckets are evaluated low-to-high against the Fear & Greed value. The
// 20/40/60/80 boundaries are an intentional offset from the textbook
// 25/50/75 quartiles: original_source tunes them for the bot's own
// observed edge curve.
var buckets = []struct {
	maxFNG int
	adj    Adjustment
}{
	{20, Adjustment{Label: "extreme_fear", SizeMultiplier: 1.3, EdgeMultiplier: 0.85, ConsensusOffset: -1, ConfidenceFloor: 0.35}},
	{40, Adjustment{Label: "fear", SizeMultiplier: 1.1, EdgeMultiplier: 0.95, ConsensusOffset: 0, ConfidenceFloor: 0.40}},
	{60, Adjustment{Label: "neutral", SizeMultiplier: 1.0, EdgeMultiplier: 1.0, ConsensusOffset: 0, ConfidenceFloor: 0.45}},
	{80, Adjustment{Label: "greed", SizeMultiplier: 0.85, EdgeMultiplier: 1.1, ConsensusOffset: 1, ConfidenceFloor: 0.50}},
	{100, Adjustment{Label: "extreme_greed", SizeMultiplier: 0.65, EdgeMultiplier: 1.25, ConsensusOffset: 2, ConfidenceFloor: 0.55}},
}

// neutralFallback is returned when the Fear & Greed API is unavailable,
// mirroring regime.py's fng=50 fallback.
var neutralFallback = Adjustment{Label: "neutral", FNGValue: 50, SizeMultiplier: 1.0, EdgeMultiplier: 1.0, ConsensusOffset: 0, ConfidenceFloor: 0.45}

var log = logging.Component("regime")

// fngValueSource is the subset of indicators.FearGreedIndexer regime
// needs, so tests can substitute a fake.
type fngValueSource interface {
	RawFNGValue(ctx context.Context) (int, bool)
}

// Detector classifies the current market regime from the Fear & Greed
// Index, caching the classification for CacheTTL so the hot loop never
// blocks on the upstream fetch.
type Detector struct {
	source fngValueSource

	mu        sync.Mutex
	cached    Adjustment
	cachedAt  time.Time
	hasCached bool

	momentumOverride bool
}

// NewDetector returns a Detector reading from source.
func NewDetector(source fngValueSource) *Detector {
	return &Detector{source: source}
}

// Current returns the active regime adjustment, refreshing from the
// Fear & Greed source if the cache has expired.
func (d *Detector) Current(ctx context.Context) Adjustment {
	d.mu.Lock()
	if d.hasCached && time.Since(d.cachedAt) < CacheTTL {
		adj := d.cached
		d.mu.Unlock()
		return d.applyMomentumOverride(adj)
	}
	d.mu.Unlock()

	fngVal, ok := d.source.RawFNGValue(ctx)
	if !ok {
		log.Debug().Msg("fear & greed unavailable, falling back to neutral regime")
		return d.applyMomentumOverride(neutralFallback)
	}

	adj := classify(fngVal)
	d.mu.Lock()
	d.cached = adj
	d.cachedAt = time.Now()
	d.hasCached = true
	d.mu.Unlock()

	return d.applyMomentumOverride(adj)
}

// classify maps a raw 0-100 Fear & Greed value to its bucket.
func classify(fngVal int) Adjustment {
	for _, b := range buckets {
		if fngVal <= b.maxFNG {
			adj := b.adj
			adj.FNGValue = fngVal
			return adj
		}
	}
	adj := buckets[len(buckets)-1].adj
	adj.FNGValue = fngVal
	return adj
}

// SetMomentumOverride enables or disables Momentum Capture Mode: a
// forced size/edge relaxation used when the signal engine detects a
// strong cross-asset directional alignment regardless of sentiment.
func (d *Detector) SetMomentumOverride(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.momentumOverride = enabled
}

func (d *Detector) applyMomentumOverride(adj Adjustment) Adjustment {
	d.mu.Lock()
	override := d.momentumOverride
	d.mu.Unlock()
	if !override {
		return adj
	}
	adj.Label = "momentum_capture"
	adj.SizeMultiplier = 1.25
	adj.EdgeMultiplier = 0.9
	adj.ConsensusOffset = -1
	return adj
}
