// Package windowtracker implements component C11: it turns a discovered
// 5-minute market into a tracked Window with a parsed open/close time and
// a captured strike (open) price, and answers "what's the best window to
// trade right now" for the killshot engine. Grounded on
// original_source/bot/snipe/window_tracker.py.
package windowtracker

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/garveslabs/polymarket-trader/internal/logging"
	"github.com/garveslabs/polymarket-trader/internal/priceindex"
)

var log = logging.Component("windowtracker")

// et is the America/New_York location market questions quote their
// window times in. Falls back to a fixed UTC-5 offset if the tzdata
// database isn't available in the runtime environment.
var et = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("ET", -5*60*60)
	}
	return loc
}()

// rangeRe matches "10:00PM-10:05PM ET" style window times in a market
// question.
var rangeRe = regexp.MustCompile(`(?i)(\d{1,2}):(\d{2})(AM|PM)-(\d{1,2}):(\d{2})(AM|PM)\s+ET`)

// dateRe matches "October 14" style dates in a market question.
var dateRe = regexp.MustCompile(`(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{1,2})`)

var monthNum = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

// Window is a single tracked trading window.
type Window struct {
	MarketID    string
	Question    string
	Asset       string
	UpTokenID   string
	DownTokenID string
	StartTS     int64
	EndTS       int64
	OpenPrice   float64
	Traded      bool
}

// DiscoveredWindow is the minimal shape the tracker needs from whatever
// upstream market-discovery feed found this market; discovering markets
// itself is out of scope here.
type DiscoveredWindow struct {
	MarketID    string
	Question    string
	Asset       string
	UpTokenID   string
	DownTokenID string
}

// Tracker tracks 5-minute windows across all crypto assets, as handed to
// Update by an upstream discovery feed.
type Tracker struct {
	mu     sync.RWMutex
	cache  *priceindex.Cache
	active map[string]*Window
}

func New(cache *priceindex.Cache) *Tracker {
	return &Tracker{cache: cache, active: make(map[string]*Window)}
}

// Update registers any newly discovered windows and drops ones that ended
// more than 120s ago (kept briefly past expiry for resolution checking).
func (t *Tracker) Update(now time.Time, discovered []DiscoveredWindow) {
	nowUnix := now.Unix()

	t.mu.Lock()
	defer t.mu.Unlock()

	for mid, w := range t.active {
		if w.EndTS < nowUnix-120 {
			delete(t.active, mid)
		}
	}

	for _, dw := range discovered {
		if _, ok := t.active[dw.MarketID]; ok {
			continue
		}
		if dw.UpTokenID == "" || dw.DownTokenID == "" {
			continue
		}
		startTS, endTS, ok := parseWindowTimes(dw.Question, now)
		if !ok {
			continue
		}
		openPrice := t.openPrice(dw.Asset, startTS, now)
		if openPrice <= 0 {
			log.Debug().Str("market_id", dw.MarketID).Str("asset", dw.Asset).Msg("no open price for window")
			continue
		}
		w := &Window{
			MarketID:    dw.MarketID,
			Question:    dw.Question,
			Asset:       dw.Asset,
			UpTokenID:   dw.UpTokenID,
			DownTokenID: dw.DownTokenID,
			StartTS:     startTS,
			EndTS:       endTS,
			OpenPrice:   openPrice,
		}
		t.active[dw.MarketID] = w
		log.Info().
			Str("market_id", dw.MarketID).
			Str("asset", dw.Asset).
			Float64("open_price", openPrice).
			Int64("remaining_s", endTS-nowUnix).
			Msg("window tracked")
	}
}

// GetActiveWindow returns the best untouched window to trade: the one
// with the least time remaining, among windows with 0 < remaining <= 300s.
func (t *Tracker) GetActiveWindow(now time.Time) (Window, bool) {
	nowUnix := now.Unix()
	t.mu.RLock()
	defer t.mu.RUnlock()

	var best *Window
	for _, w := range t.active {
		if w.Traded {
			continue
		}
		remaining := w.EndTS - nowUnix
		if remaining <= 0 || remaining > 300 {
			continue
		}
		if best == nil || remaining < (best.EndTS-nowUnix) {
			best = w
		}
	}
	if best == nil {
		return Window{}, false
	}
	return *best, true
}

// AllActiveWindows returns every currently tracked window, for the
// killshot engine's per-tick kill-zone scan across all assets.
func (t *Tracker) AllActiveWindows() []Window {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Window, 0, len(t.active))
	for _, w := range t.active {
		out = append(out, *w)
	}
	return out
}

func (t *Tracker) GetWindow(marketID string) (Window, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	w, ok := t.active[marketID]
	if !ok {
		return Window{}, false
	}
	return *w, true
}

// MarkTraded flags a window so GetActiveWindow stops offering it.
func (t *Tracker) MarkTraded(marketID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok := t.active[marketID]; ok {
		w.Traded = true
	}
}

// openPrice captures the asset's price at window start: exact candle
// match at the start minute, else (if the window just started) the
// current price, else the closest candle within 5 minutes.
func (t *Tracker) openPrice(asset string, startTS int64, now time.Time) float64 {
	startMinute := (startTS / 60) * 60
	candles := t.cache.GetCandles(asset, 300)

	for _, c := range candles {
		if abs64(c.Timestamp-startMinute) < 60 {
			return c.Open
		}
	}

	if now.Unix()-startTS < 120 {
		if price, ok := t.cache.GetPrice(asset); ok && price > 0 {
			return price
		}
	}

	var closest *priceindex.Candle
	var closestDelta int64
	for i := range candles {
		d := abs64(candles[i].Timestamp - startMinute)
		if closest == nil || d < closestDelta {
			closest = &candles[i]
			closestDelta = d
		}
	}
	if closest != nil && closestDelta < 300 {
		return closest.Close
	}
	return 0
}

// parseWindowTimes extracts the ET start/end timestamps from a market
// question like "Bitcoin Up or Down - October 14, 10:00PM-10:05PM ET",
// disambiguating the year by picking whichever year keeps the parsed
// month within six months of now, and rolling the end time to the next
// day if it would otherwise fall before the start time.
func parseWindowTimes(question string, now time.Time) (startTS, endTS int64, ok bool) {
	dateMatch := dateRe.FindStringSubmatch(question)
	rangeMatch := rangeRe.FindStringSubmatch(question)
	if dateMatch == nil || rangeMatch == nil {
		return 0, 0, false
	}

	month, found := monthNum[strings.ToLower(dateMatch[1])]
	if !found {
		return 0, 0, false
	}
	day, err := strconv.Atoi(dateMatch[2])
	if err != nil {
		return 0, 0, false
	}

	nowET := now.In(et)
	year := nowET.Year()
	monthDelta := int(nowET.Month()) - int(month)
	if monthDelta > 6 {
		year++
	} else if monthDelta < -6 {
		year--
	}

	startHour, startMin, err := parseClock(rangeMatch[1], rangeMatch[2], rangeMatch[3])
	if err != nil {
		return 0, 0, false
	}
	endHour, endMin, err := parseClock(rangeMatch[4], rangeMatch[5], rangeMatch[6])
	if err != nil {
		return 0, 0, false
	}

	start := time.Date(year, month, day, startHour, startMin, 0, 0, et)
	end := time.Date(year, month, day, endHour, endMin, 0, 0, et)
	if !end.After(start) {
		end = end.Add(24 * time.Hour)
	}

	return start.Unix(), end.Unix(), true
}

func parseClock(hourStr, minStr, ampm string) (hour, min int, err error) {
	h, err := strconv.Atoi(hourStr)
	if err != nil {
		return 0, 0, err
	}
	m, err := strconv.Atoi(minStr)
	if err != nil {
		return 0, 0, err
	}
	hour = h % 12
	if strings.EqualFold(ampm, "PM") {
		hour += 12
	}
	return hour % 24, m, nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
