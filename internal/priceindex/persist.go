package priceindex

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// SaveCandles writes asset's completed candle history to
// <dir>/<asset>.jsonl, sorted by timestamp, deduplicated on timestamp.
// Writes atomically (temp file + rename) per spec.md's explicit
// atomicity invariant — original_source/bot/price_cache.py's
// save_candles() overwrites in place without this guarantee; the Go
// port tightens it.
func (c *Cache) SaveCandles(dir, asset string) error {
	st := c.state(asset)
	st.mu.RLock()
	fresh := st.candles.GetAll()
	st.mu.RUnlock()

	existing, _ := LoadCandles(dir, asset)
	merged := make(map[int64]Candle, len(existing)+len(fresh))
	for _, cd := range existing {
		merged[cd.Timestamp] = cd
	}
	for _, cd := range fresh {
		merged[cd.Timestamp] = cd
	}

	all := make([]Candle, 0, len(merged))
	for _, cd := range merged {
		all = append(all, cd)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp < all[j].Timestamp })

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("priceindex: mkdir candle dir: %w", err)
	}
	target := filepath.Join(dir, asset+".jsonl")
	tmp := target + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("priceindex: create temp file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, cd := range all {
		b, mErr := json.Marshal(cd)
		if mErr != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("priceindex: marshal candle: %w", mErr)
		}
		if _, wErr := w.Write(append(b, '\n')); wErr != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("priceindex: write candle: %w", wErr)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("priceindex: flush: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("priceindex: close temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("priceindex: rename temp file: %w", err)
	}
	return nil
}

// LoadCandles reads <dir>/<asset>.jsonl, skipping corrupted lines,
// returning candles sorted by timestamp ascending.
func LoadCandles(dir, asset string) ([]Candle, error) {
	path := filepath.Join(dir, asset+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("priceindex: open %s: %w", path, err)
	}
	defer f.Close()

	var out []Candle
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var cd Candle
		if err := json.Unmarshal(line, &cd); err != nil {
			log.Debug().Err(err).Str("asset", asset).Msg("skipping corrupted candle line")
			continue
		}
		out = append(out, cd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

// PreloadFromDisk loads up to the cache's capacity most recent candles
// for asset from dir and seeds the in-memory ring buffer plus the
// latest/prev price from the last candle's close, so a restart doesn't
// lose order-flow/RSI context. Mirrors
// original_source/bot/price_cache.py's preload_from_disk().
func (c *Cache) PreloadFromDisk(dir, asset string) error {
	candles, err := LoadCandles(dir, asset)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return nil
	}
	if len(candles) > c.cap {
		candles = candles[len(candles)-c.cap:]
	}

	st := c.state(asset)
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, cd := range candles {
		st.candles.Add(cd)
	}
	last := candles[len(candles)-1]
	st.latestPrice = last.Close
	st.prevPrice = last.Close
	st.hasPrev = true
	log.Info().Str("asset", asset).Int("count", len(candles)).Msg("preloaded candle history from disk")
	return nil
}
