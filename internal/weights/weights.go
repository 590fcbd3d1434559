// Package weights implements component C4: it tracks each indicator's
// historical hit rate and derives adjusted ensemble weights from it,
// culling indicators that have become anti-signals and boosting ones
// that have proven sharp. Grounded on
// original_source/bot/weight_learner.py.
package weights

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/garveslabs/polymarket-trader/internal/logging"
)

// CacheTTL matches weight_learner.py's _WEIGHTS_CACHE_TTL: computing
// dynamic weights reads the accuracy file, so results are cached for 30
// seconds to keep it off the hot per-tick path.
const CacheTTL = 30 * time.Second

// minSamplesToAdjust mirrors entry.total_votes <= 20 being left at base
// weight: too few samples to trust.
const minSamplesToAdjust = 20

var log = logging.Component("weights")

// Accuracy is one indicator's running hit-rate record.
type Accuracy struct {
	TotalVotes   int     `json:"total_votes"`
	CorrectVotes int     `json:"correct_votes"`
	AccuracyPct  float64 `json:"accuracy"`
}

// Learner reads/writes the per-indicator accuracy store and derives
// dynamic weight multipliers from it.
type Learner struct {
	path string

	mu   sync.Mutex
	data map[string]Accuracy

	cacheMu  sync.Mutex
	cached   map[string]float64
	cachedAt time.Time
	hasCache bool
}

// NewLearner returns a Learner persisting accuracy data at path. The
// file (and its parent dir) is created on first save if absent.
func NewLearner(path string) *Learner {
	l := &Learner{path: path, data: make(map[string]Accuracy)}
	if loaded, err := loadAccuracy(path); err == nil {
		l.data = loaded
	} else {
		log.Debug().Err(err).Msg("no existing indicator accuracy file, starting fresh")
	}
	return l
}

func loadAccuracy(path string) (map[string]Accuracy, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]Accuracy), nil
		}
		return nil, err
	}
	defer f.Close()
	var data map[string]Accuracy
	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&data); err != nil {
		return nil, err
	}
	if data == nil {
		data = make(map[string]Accuracy)
	}
	return data, nil
}

// RecordVote records whether indicatorName's vote (direction) matched
// the resolved outcome ("up" or "down") for one trade, persisting the
// update atomically. Invalidates the dynamic-weight cache so the next
// read picks up the new accuracy.
func (l *Learner) RecordVote(indicatorName, votedDirection, outcome string) error {
	if outcome != "up" && outcome != "down" {
		return nil
	}

	l.mu.Lock()
	entry := l.data[indicatorName]
	entry.TotalVotes++
	if votedDirection == outcome {
		entry.CorrectVotes++
	}
	entry.AccuracyPct = float64(entry.CorrectVotes) / float64(entry.TotalVotes)
	l.data[indicatorName] = entry
	snapshot := make(map[string]Accuracy, len(l.data))
	for k, v := range l.data {
		snapshot[k] = v
	}
	l.mu.Unlock()

	l.invalidateCache()
	return l.save(snapshot)
}

func (l *Learner) invalidateCache() {
	l.cacheMu.Lock()
	l.hasCache = false
	l.cacheMu.Unlock()
}

func (l *Learner) save(data map[string]Accuracy) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("weights: mkdir: %w", err)
	}
	tmp := l.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("weights: create temp file: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("weights: encode: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("weights: close temp file: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("weights: rename temp file: %w", err)
	}
	return nil
}

// DynamicWeights returns adjusted weights for baseWeights based on each
// indicator's historical accuracy:
//   - >=50 samples and <40% accuracy: disabled (weight zeroed, anti-signal)
//   - >=30 samples and <45% accuracy: reduced 60%
//   - >=30 samples and >55% accuracy: boosted 30%
//   - otherwise unchanged
//
// All adjustments clamp to [0, 2.5x] of the base weight. Indicators with
// 20 or fewer recorded samples keep their base weight untouched.
func (l *Learner) DynamicWeights(baseWeights map[string]float64) map[string]float64 {
	l.cacheMu.Lock()
	if l.hasCache && time.Since(l.cachedAt) < CacheTTL {
		cached := l.cached
		l.cacheMu.Unlock()
		return cached
	}
	l.cacheMu.Unlock()

	l.mu.Lock()
	data := make(map[string]Accuracy, len(l.data))
	for k, v := range l.data {
		data[k] = v
	}
	l.mu.Unlock()

	adjusted := make(map[string]float64, len(baseWeights))
	for name, baseW := range baseWeights {
		entry, ok := data[name]
		if !ok || entry.TotalVotes <= minSamplesToAdjust {
			adjusted[name] = baseW
			continue
		}

		newW := baseW
		switch {
		case entry.TotalVotes >= 50 && entry.AccuracyPct < 0.40:
			newW = 0.0
			log.Warn().Str("indicator", name).Float64("accuracy", entry.AccuracyPct).Int("samples", entry.TotalVotes).
				Msg("weight disabled: anti-signal")
		case entry.TotalVotes >= 30 && entry.AccuracyPct < 0.45:
			newW = baseW * 0.40
			log.Info().Str("indicator", name).Float64("accuracy", entry.AccuracyPct).Int("samples", entry.TotalVotes).
				Msg("weight reduced")
		case entry.TotalVotes >= 30 && entry.AccuracyPct > 0.55:
			newW = baseW * 1.30
			log.Info().Str("indicator", name).Float64("accuracy", entry.AccuracyPct).Int("samples", entry.TotalVotes).
				Msg("weight boosted")
		}

		maxW := baseW * 2.5
		if newW < 0 {
			newW = 0
		}
		if newW > maxW {
			newW = maxW
		}
		adjusted[name] = newW
	}

	l.cacheMu.Lock()
	l.cached = adjusted
	l.cachedAt = time.Now()
	l.hasCache = true
	l.cacheMu.Unlock()

	return adjusted
}
