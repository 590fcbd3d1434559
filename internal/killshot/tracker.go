package killshot

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// resolveGrace matches the wait after a window closes before the spot
// price is trusted to have settled enough to resolve the bet.
const resolveGrace = 10 * time.Second

// resolveTimeout is how long past window close a trade may sit unresolved
// before it's marked expired rather than left pending forever.
const resolveTimeout = 10 * time.Minute

// PaperTrade is a single killshot paper (or live) fill, independent of
// the main signal engine's trade ledger: killshot trades are direction
// bets fired in the last seconds of a window, not conviction-scored
// signals, so they get their own record shape and their own resolution
// rule (spot price vs. open price at window close, not a market
// resolution fetch).
type PaperTrade struct {
	Timestamp    float64 `json:"timestamp"`
	Asset        string  `json:"asset"`
	MarketID     string  `json:"market_id"`
	Question     string  `json:"question"`
	Direction    string  `json:"direction"`
	EntryPrice   float64 `json:"entry_price"`
	SizeUSD      float64 `json:"size_usd"`
	Shares       float64 `json:"shares"`
	WindowEndTS  float64 `json:"window_end_ts"`
	SpotDeltaPct float64 `json:"spot_delta_pct"`
	OpenPrice    float64 `json:"open_price"`
	MarketBid    float64 `json:"market_bid"`
	MarketAsk    float64 `json:"market_ask"`
	Outcome      string  `json:"outcome"`
	PnL          float64 `json:"pnl"`
	ResolvedAt   float64 `json:"resolved_at"`
}

// SpotPriceSource resolves a pending trade against the live spot price.
// *priceindex.Cache satisfies this directly.
type SpotPriceSource interface {
	GetPrice(asset string) (float64, bool)
}

// Ledger persists killshot paper trades to a JSONL file and resolves
// them against spot price once their window has closed. Grounded on
// original_source/killshot/tracker.py's PaperTracker.
type Ledger struct {
	path string

	mu            sync.Mutex
	pending       []*PaperTrade
	sessionPnL    float64
	sessionTrades int
	sessionWins   int
}

func NewLedger(path string) *Ledger {
	l := &Ledger{path: path}
	l.loadPending()
	return l
}

func (l *Ledger) loadPending() {
	f, err := os.Open(l.path)
	if err != nil {
		return
	}
	defer f.Close()

	cutoff := float64(time.Now().Add(-10 * time.Minute).Unix())
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var t PaperTrade
		if err := json.Unmarshal([]byte(line), &t); err != nil {
			continue
		}
		if t.Outcome == "" && t.WindowEndTS > cutoff {
			l.pending = append(l.pending, &t)
		}
	}
}

// RecordTrade appends a new paper trade and keeps it pending until its
// window closes.
func (l *Ledger) RecordTrade(trade PaperTrade) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := trade
	l.pending = append(l.pending, &rec)
	l.sessionTrades++
	return l.appendToFile(&rec)
}

// ResolveTrades checks every pending trade whose window has closed
// (past a 10s settling grace period) against the spot price and returns
// the ones it resolved (win, loss, or expired after 10 minutes
// unresolved). Still-pending trades remain for the next call.
func (l *Ledger) ResolveTrades(spot SpotPriceSource) []PaperTrade {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	nowUnix := float64(now.Unix())

	var resolved []PaperTrade
	stillPending := l.pending[:0]

	for _, trade := range l.pending {
		if nowUnix < trade.WindowEndTS+resolveGrace.Seconds() {
			stillPending = append(stillPending, trade)
			continue
		}

		if nowUnix > trade.WindowEndTS+resolveTimeout.Seconds() {
			trade.Outcome = "expired"
			trade.ResolvedAt = nowUnix
			resolved = append(resolved, *trade)
			l.updateInFile(trade)
			continue
		}

		currentPrice, ok := spot.GetPrice(trade.Asset)
		if !ok {
			stillPending = append(stillPending, trade)
			continue
		}

		wentUp := currentPrice > trade.OpenPrice
		won := (trade.Direction == "up" && wentUp) || (trade.Direction == "down" && !wentUp)
		if won {
			trade.Outcome = "win"
			trade.PnL = round4(trade.Shares * (1.0 - trade.EntryPrice))
			l.sessionWins++
		} else {
			trade.Outcome = "loss"
			trade.PnL = round4(-trade.SizeUSD)
		}
		trade.ResolvedAt = nowUnix
		l.sessionPnL += trade.PnL
		resolved = append(resolved, *trade)
		l.updateInFile(trade)
	}

	l.pending = stillPending
	return resolved
}

func (l *Ledger) appendToFile(trade *PaperTrade) error {
	if l.path == "" {
		return nil
	}
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(trade)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// updateInFile rewrites the resolved trade's line in place, matching it
// by market_id+timestamp, via an atomic temp-file-plus-rename swap.
func (l *Ledger) updateInFile(trade *PaperTrade) {
	if l.path == "" {
		return
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		return
	}

	var lines []string
	updated := false
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var d PaperTrade
		if err := json.Unmarshal([]byte(line), &d); err == nil &&
			!updated && d.MarketID == trade.MarketID && d.Timestamp == trade.Timestamp {
			out, _ := json.Marshal(trade)
			lines = append(lines, string(out))
			updated = true
			continue
		}
		lines = append(lines, line)
	}
	if !updated {
		out, _ := json.Marshal(trade)
		lines = append(lines, string(out))
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), "killshot-*.jsonl.tmp")
	if err != nil {
		return
	}
	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	w.Flush()
	tmp.Close()
	os.Rename(tmp.Name(), l.path)
}

// SessionStats summarizes killshot trading performance for this process
// lifetime (not persisted across restarts, matching tracker.py's
// session counters).
type SessionStats struct {
	Trades int
	Wins   int
	PnL    float64
}

func (l *Ledger) SessionStats() SessionStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return SessionStats{Trades: l.sessionTrades, Wins: l.sessionWins, PnL: l.sessionPnL}
}

func (l *Ledger) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
