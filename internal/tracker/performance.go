package tracker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/garveslabs/polymarket-trader/internal/conviction"
	"github.com/garveslabs/polymarket-trader/internal/fees"
	"github.com/garveslabs/polymarket-trader/internal/logging"
)

var perfLog = logging.Component("tracker.performance")

// resolutionTimeoutByTimeframe mirrors tracker.py's per-timeframe
// fallback: longer markets get more time before a trade is given up on
// and marked "unknown" rather than kept pending forever.
var resolutionTimeoutByTimeframe = map[string]time.Duration{
	"5m":     10 * time.Minute,
	"15m":    15 * time.Minute,
	"1h":     2 * time.Hour,
	"4h":     5 * time.Hour,
	"weekly": 24 * time.Hour,
}

const defaultResolutionTimeout = time.Hour

// resolutionCheckBuffer is how long after a market's end time the
// tracker starts polling for its resolution.
const resolutionCheckBuffer = 30 * time.Second

// TradeRecord is one signal's full lifecycle: the evidence it fired on,
// the size/price it was executed at, and its eventual resolution.
type TradeRecord struct {
	TradeID         string            `json:"trade_id"`
	Timestamp       float64           `json:"timestamp"`
	Asset           string            `json:"asset"`
	Timeframe       string            `json:"timeframe"`
	Direction       string            `json:"direction"`
	Probability     float64           `json:"probability"`
	Edge            float64           `json:"edge"`
	Confidence      float64           `json:"confidence"`
	TokenID         string            `json:"token_id"`
	MarketID        string            `json:"market_id"`
	Question        string            `json:"question"`
	ImpliedUpPrice  float64           `json:"implied_up_price"`
	BinancePrice    float64           `json:"binance_price"`
	IndicatorVotes  map[string]string `json:"indicator_votes,omitempty"`
	RegimeLabel     string            `json:"regime_label,omitempty"`
	RegimeFNG       int               `json:"regime_fng"`
	RewardRiskRatio float64           `json:"reward_risk_ratio"`
	OBLiquidityUSD  float64           `json:"ob_liquidity_usd"`
	OBSpread        float64           `json:"ob_spread"`
	OBSlippagePct   float64           `json:"ob_slippage_pct"`
	SizeUSD         float64           `json:"size_usd"`
	EntryPrice      float64           `json:"entry_price"`
	PnL             float64           `json:"pnl"`
	Resolved        bool              `json:"resolved"`
	Outcome         string            `json:"outcome,omitempty"`
	Won             bool              `json:"won"`
	ResolveTime     float64           `json:"resolve_time"`
	MarketEndTime   float64           `json:"market_end_time"`
	DryRun          bool              `json:"dry_run"`
}

// SignalInput bundles the fields RecordSignal needs from a fired signal
// and its execution context.
type SignalInput struct {
	Asset           string
	Timeframe       string
	Direction       string
	Probability     float64
	Edge            float64
	Confidence      float64
	TokenID         string
	MarketID        string
	Question        string
	ImpliedUpPrice  float64
	BinancePrice    float64
	IndicatorVotes  map[string]string
	RegimeLabel     string
	RegimeFNG       int
	RewardRiskRatio float64
	OBLiquidityUSD  float64
	OBSpread        float64
	OBSlippagePct   float64
	SizeUSD         float64
	EntryPrice      float64
	MarketEndTime   time.Time
	DryRun          bool
}

// ResolutionFetcher checks whether a Polymarket condition has resolved,
// returning ("up"|"down", true) once settled.
type ResolutionFetcher interface {
	FetchResolution(ctx context.Context, marketID string) (outcome string, ok bool)
}

// VoteRecorder feeds resolved indicator votes back into the dynamic
// weight learner (C4).
type VoteRecorder interface {
	RecordVote(indicatorName, votedDirection, outcome string) error
}

// PerformanceTracker implements C9: it records every fired signal,
// polls for market resolution, computes realized PnL via internal/fees,
// and feeds resolved indicator votes back to the weight learner.
// Grounded on original_source/bot/tracker.py.
type PerformanceTracker struct {
	path string

	mu            sync.Mutex
	pending       map[string]*TradeRecord
	totalResolved int

	resolver     ResolutionFetcher
	voteRecorder VoteRecorder

	bankrollCachedAt  time.Time
	bankrollCachedVal float64
}

// NewPerformanceTracker returns a tracker persisting trade records to
// path (JSONL, append-only until resolution rewrites the file).
// resolver and voteRecorder may be nil to disable resolution polling
// or weight feedback respectively.
func NewPerformanceTracker(path string, resolver ResolutionFetcher, voteRecorder VoteRecorder) *PerformanceTracker {
	t := &PerformanceTracker{
		path:         path,
		pending:      make(map[string]*TradeRecord),
		resolver:     resolver,
		voteRecorder: voteRecorder,
	}
	t.loadPending()
	return t
}

func (t *PerformanceTracker) loadPending() {
	f, err := os.Open(t.path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var rec TradeRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if !rec.Resolved {
			cp := rec
			t.pending[rec.TradeID] = &cp
		}
	}
	perfLog.Info().Int("pending", len(t.pending)).Msg("loaded pending trades")
}

// RecordSignal records a new fired signal as a pending trade, appending
// it to the JSONL ledger.
func (t *PerformanceTracker) RecordSignal(in SignalInput) string {
	now := time.Now()
	tradeID := fmt.Sprintf("%s_%d", shortID(in.MarketID), now.Unix())

	rec := &TradeRecord{
		TradeID:         tradeID,
		Timestamp:       float64(now.UnixNano()) / 1e9,
		Asset:           in.Asset,
		Timeframe:       in.Timeframe,
		Direction:       in.Direction,
		Probability:     in.Probability,
		Edge:            in.Edge,
		Confidence:      in.Confidence,
		TokenID:         in.TokenID,
		MarketID:        in.MarketID,
		Question:        in.Question,
		ImpliedUpPrice:  in.ImpliedUpPrice,
		BinancePrice:    in.BinancePrice,
		IndicatorVotes:  in.IndicatorVotes,
		RegimeLabel:     in.RegimeLabel,
		RegimeFNG:       in.RegimeFNG,
		RewardRiskRatio: in.RewardRiskRatio,
		OBLiquidityUSD:  in.OBLiquidityUSD,
		OBSpread:        in.OBSpread,
		OBSlippagePct:   in.OBSlippagePct,
		SizeUSD:         in.SizeUSD,
		EntryPrice:      in.EntryPrice,
		MarketEndTime:   float64(in.MarketEndTime.Unix()),
		DryRun:          in.DryRun,
	}

	t.mu.Lock()
	t.pending[tradeID] = rec
	t.mu.Unlock()

	if err := t.appendToFile(rec); err != nil {
		perfLog.Error().Err(err).Str("trade_id", tradeID).Msg("failed to persist trade record")
	}

	perfLog.Info().Str("trade_id", tradeID).Str("asset", in.Asset).Str("timeframe", in.Timeframe).
		Str("direction", in.Direction).Float64("probability", in.Probability).Float64("edge", in.Edge).
		Msg("recorded signal")

	return tradeID
}

// CheckResolutions polls the resolver for every pending trade whose
// market has ended, resolving it (win/loss/PnL) or marking it "unknown"
// once its timeframe-specific timeout elapses.
func (t *PerformanceTracker) CheckResolutions(ctx context.Context) {
	now := time.Now()
	nowUnix := float64(now.Unix())

	t.mu.Lock()
	candidates := make([]*TradeRecord, 0, len(t.pending))
	for _, rec := range t.pending {
		candidates = append(candidates, rec)
	}
	t.mu.Unlock()

	var resolvedIDs []string
	for _, rec := range candidates {
		if nowUnix < rec.MarketEndTime+resolutionCheckBuffer.Seconds() {
			continue
		}

		outcome, ok := "", false
		if t.resolver != nil {
			outcome, ok = t.resolver.FetchResolution(ctx, rec.MarketID)
		}

		if !ok {
			timeout, known := resolutionTimeoutByTimeframe[rec.Timeframe]
			if !known {
				timeout = defaultResolutionTimeout
			}
			if nowUnix > rec.MarketEndTime+timeout.Seconds() {
				rec.Resolved = true
				rec.Outcome = "unknown"
				rec.ResolveTime = nowUnix
				resolvedIDs = append(resolvedIDs, rec.TradeID)
				perfLog.Warn().Str("trade_id", rec.TradeID).Str("market_id", rec.MarketID).
					Msg("market still unresolved after timeout, marking stale")
			}
			continue
		}

		rec.Resolved = true
		rec.Outcome = outcome
		rec.Won = rec.Direction == outcome
		rec.ResolveTime = nowUnix
		if rec.EntryPrice > 0 && rec.SizeUSD > 0 {
			// Trade ledger PnL is fee-free: shares*1 - size_usd on a win.
			// WinnerFeeRate only applies to the bankroll-multiplier
			// calculation, not this canonical resolved-trade figure.
			rec.PnL = fees.PnL(rec.Won, rec.SizeUSD, rec.EntryPrice, 0)
		}

		t.mu.Lock()
		t.totalResolved++
		t.mu.Unlock()
		resolvedIDs = append(resolvedIDs, rec.TradeID)

		result := "LOSS"
		if rec.Won {
			result = "WIN"
		}
		perfLog.Info().Str("trade_id", rec.TradeID).Str("asset", rec.Asset).Str("result", result).
			Str("predicted", rec.Direction).Str("actual", outcome).Float64("pnl", rec.PnL).
			Msg("trade resolved")

		if t.voteRecorder != nil && (outcome == "up" || outcome == "down") {
			for indicator, votedDir := range rec.IndicatorVotes {
				if err := t.voteRecorder.RecordVote(indicator, votedDir, outcome); err != nil {
					perfLog.Error().Err(err).Str("indicator", indicator).Msg("failed to record indicator vote")
				}
			}
		}
	}

	if len(resolvedIDs) == 0 {
		return
	}

	t.mu.Lock()
	resolvedRecords := make(map[string]*TradeRecord, len(resolvedIDs))
	for _, id := range resolvedIDs {
		resolvedRecords[id] = t.pending[id]
		delete(t.pending, id)
	}
	t.mu.Unlock()

	if err := t.rewriteFile(resolvedRecords); err != nil {
		perfLog.Error().Err(err).Msg("failed to rewrite trade ledger")
	}
}

func (t *PerformanceTracker) appendToFile(rec *TradeRecord) error {
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

// rewriteFile deduplicates-by-trade_id and atomically rewrites the
// ledger with the now-resolved records patched in, the same crash-safe
// temp+rename pattern used throughout this module (C1's cache, C4's
// accuracy store).
func (t *PerformanceTracker) rewriteFile(resolved map[string]*TradeRecord) error {
	f, err := os.Open(t.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	var all []json.RawMessage
	if f != nil {
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			all = append(all, json.RawMessage(append([]byte(nil), line...)))
		}
		f.Close()
	}

	type withID struct {
		TradeID string `json:"trade_id"`
	}

	seen := make(map[string]bool, len(all))
	var outLines [][]byte
	for _, raw := range all {
		var id withID
		if err := json.Unmarshal(raw, &id); err != nil {
			continue
		}
		if seen[id.TradeID] {
			continue
		}
		seen[id.TradeID] = true
		if rec, ok := resolved[id.TradeID]; ok {
			line, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			outLines = append(outLines, line)
		} else {
			outLines = append(outLines, raw)
		}
	}

	dir := filepath.Dir(t.path)
	tmp, err := os.CreateTemp(dir, "trades-*.jsonl.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	w := bufio.NewWriter(tmp)
	for _, line := range outLines {
		if _, err := w.Write(line); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return err
		}
		if _, err := w.WriteString("\n"); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, t.path)
}

// Stats is the quick_stats() summary: resolved win/loss counts, win
// rate, and cumulative realized PnL.
type Stats struct {
	Wins          int
	Losses        int
	WinRatePct    float64
	PnL           float64
	TotalResolved int
}

// QuickStats recomputes win/loss/PnL totals by scanning the ledger.
func (t *PerformanceTracker) QuickStats() Stats {
	t.mu.Lock()
	totalResolved := t.totalResolved
	t.mu.Unlock()

	f, err := os.Open(t.path)
	if err != nil {
		return Stats{TotalResolved: totalResolved}
	}
	defer f.Close()

	var wins, losses int
	var pnl float64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var rec TradeRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if !rec.Resolved || (rec.Outcome != "up" && rec.Outcome != "down") {
			continue
		}
		if rec.Won {
			wins++
		} else {
			losses++
		}
		pnl += rec.PnL
	}

	total := wins + losses
	var winRate float64
	if total > 0 {
		winRate = float64(wins) / float64(total) * 100
	}
	return Stats{Wins: wins, Losses: losses, WinRatePct: winRate, PnL: pnl, TotalResolved: totalResolved}
}

// PendingCount returns the number of trades awaiting resolution.
func (t *PerformanceTracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// RollingPerformance implements conviction.PerformanceSource: rolling
// win rate over the last rollingWRWindow resolved trades, the current
// streak (positive = wins, negative = losses), and today's realized PnL.
func (t *PerformanceTracker) RollingPerformance() conviction.Performance {
	f, err := os.Open(t.path)
	if err != nil {
		return conviction.Performance{}
	}
	defer f.Close()

	var resolved []TradeRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var rec TradeRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if rec.Resolved && (rec.Outcome == "up" || rec.Outcome == "down") {
			resolved = append(resolved, rec)
		}
	}

	result := conviction.Performance{TotalResolved: len(resolved)}
	if len(resolved) == 0 {
		return result
	}

	const rollingWindow = 20
	start := len(resolved) - rollingWindow
	if start < 0 {
		start = 0
	}
	recent := resolved[start:]
	wins := 0
	for _, r := range recent {
		if r.Won {
			wins++
		}
	}
	wr := float64(wins) / float64(len(recent))
	result.RollingWR = &wr

	streak := 0
streakLoop:
	for i := len(resolved) - 1; i >= 0; i-- {
		won := resolved[i].Won
		switch {
		case streak == 0:
			if won {
				streak = 1
			} else {
				streak = -1
			}
		case streak > 0 && won:
			streak++
		case streak < 0 && !won:
			streak--
		default:
			break streakLoop
		}
	}
	result.CurrentStreak = streak

	today := time.Now().Format("2006-01-02")
	var dailyPnL float64
	for _, r := range resolved {
		ts := r.ResolveTime
		if ts == 0 {
			ts = r.Timestamp
		}
		tradeDate := time.Unix(int64(ts), 0).Format("2006-01-02")
		if tradeDate != today {
			continue
		}
		dailyPnL += r.PnL
	}
	result.DailyPnL = dailyPnL

	return result
}

// ResolvedTrade is the minimal shape the Kelly-overlay sizing in C8
// needs from a resolved trade's history.
type ResolvedTrade struct {
	Won         bool
	Probability float64
}

// ResolvedTrades scans the ledger for settled trades (win/loss outcome,
// excluding "unknown"), feeding the Kelly bankroll overlay in
// internal/execution.
func (t *PerformanceTracker) ResolvedTrades() []ResolvedTrade {
	f, err := os.Open(t.path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []ResolvedTrade
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var rec TradeRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if !rec.Resolved || (rec.Outcome != "up" && rec.Outcome != "down") {
			continue
		}
		out = append(out, ResolvedTrade{Won: rec.Won, Probability: rec.Probability})
	}
	return out
}

// Auto-compounding bankroll constants, original_source/bot/bankroll.py's
// BankrollManager: initial reference bankroll, multiplier floor/ceiling
// (never size below 75% or above 200% of base), and how long a computed
// multiplier is reused before rescanning the ledger.
const (
	initialBankrollUSD = 250.0
	minBankrollMult    = 0.75
	maxBankrollMult    = 2.0
	bankrollCacheTTL   = 60 * time.Second
)

// Multiplier returns the auto-compounding bankroll size multiplier C6
// applies to position sizing: current_bankroll / initial_bankroll,
// clamped to [0.75, 2.0]. Satisfies conviction.BankrollSource.
func (t *PerformanceTracker) Multiplier() float64 {
	t.mu.Lock()
	if !t.bankrollCachedAt.IsZero() && time.Since(t.bankrollCachedAt) < bankrollCacheTTL {
		v := t.bankrollCachedVal
		t.mu.Unlock()
		return v
	}
	t.mu.Unlock()

	f, err := os.Open(t.path)
	if err != nil {
		return 1.0
	}
	defer f.Close()

	var totalPnL float64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var rec TradeRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if !rec.Resolved || (rec.Outcome != "up" && rec.Outcome != "down") {
			continue
		}
		if rec.EntryPrice > 0 && rec.SizeUSD > 0 {
			totalPnL += fees.PnL(rec.Won, rec.SizeUSD, rec.EntryPrice, fees.WinnerFeeRate)
		}
	}

	bankroll := initialBankrollUSD + totalPnL
	mult := bankroll / initialBankrollUSD
	if mult < minBankrollMult {
		mult = minBankrollMult
	}
	if mult > maxBankrollMult {
		mult = maxBankrollMult
	}

	t.mu.Lock()
	t.bankrollCachedAt = time.Now()
	t.bankrollCachedVal = mult
	t.mu.Unlock()

	return mult
}

func shortID(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
