// Package killshot implements component C10: a late-window direction
// snipe that watches the final seconds of a 5-minute window, fires the
// instant spot price clears a direction threshold, and requires the
// winning side's order book to be priced between a 25-cent floor and
// full price before it will pay for it. Grounded on
// original_source/killshot/engine.py.
package killshot

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/GoPolymarket/polymarket-go-sdk/pkg/auth"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob/clobtypes"

	"github.com/garveslabs/polymarket-trader/internal/logging"
	"github.com/garveslabs/polymarket-trader/internal/windowtracker"
)

var log = logging.Component("killshot")

// Config holds the kill-zone tuning knobs. Mirrors
// original_source/killshot/config.py's KillshotConfig.
type Config struct {
	DryRun            bool
	Assets            []string
	MaxBetUSD         float64
	DailyLossCapUSD   float64
	DirectionThresh   float64       // minimum |delta|/open_price to lock a direction
	WindowSeconds     float64       // kill zone opens this many seconds before close
	MinWindowSeconds  float64       // kill zone closes this many seconds before close
	BookPriceFloor    float64       // don't buy a token priced below this
	SkipCooldown      time.Duration // retry interval after a non-blacklisting skip
	PriceMaxAge       time.Duration // max age of a spot price quote to trust it
}

// DefaultConfig matches the Python dataclass's env-var defaults.
func DefaultConfig() Config {
	return Config{
		DryRun:           true,
		Assets:           []string{"bitcoin"},
		MaxBetUSD:        5,
		DailyLossCapUSD:  15,
		DirectionThresh:  0.0010,
		WindowSeconds:    60,
		MinWindowSeconds: 10,
		BookPriceFloor:   0.25,
		SkipCooldown:     time.Second,
		PriceMaxAge:      15 * time.Second,
	}
}

// PriceQuote is one candidate spot price with an associated staleness
// and a label identifying which tier of the fallback chain produced it.
type PriceQuote struct {
	Price  float64
	Age    time.Duration
	Source string
}

// RealtimeSpotSource is the fastest, freshest price tier (sub-second
// Chainlink-over-websocket in the original). Returns ok=false if no
// price has ever been seen for the asset.
type RealtimeSpotSource interface {
	Quote(asset string) (PriceQuote, bool)
}

// BookQuoter returns the best bid/ask for a token, composed by the
// caller from whatever mix of websocket-first/REST-fallback book
// sources it wants; the engine itself only needs one call.
type BookQuoter interface {
	BestBidAsk(ctx context.Context, tokenID string) (bid, ask float64, ok bool)
}

// Engine evaluates 5m windows in the kill zone and trades them, live or
// paper.
type Engine struct {
	cfg      Config
	spotCache SpotPriceSource // on-chain/Binance fallback tier, ~2s cache
	realtime RealtimeSpotSource // optional fastest tier
	books    BookQuoter
	ledger   *Ledger

	client clob.Client
	signer auth.Signer

	tradedWindows map[string]time.Time // market_id -> when actually traded (permanent)
	skipCooldown  map[string]time.Time // market_id -> last skip (short retry)
	killZoneSeen  map[string]struct{}

	dailyLoss     float64
	dailyResetDay string

	onFire func(asset, direction string)
}

// SetFireHook installs a callback invoked each time the engine actually
// fires a trade (paper or live), after the trade is recorded. Used by
// the caller to export a fire counter without the engine itself taking
// a metrics dependency.
func (e *Engine) SetFireHook(fn func(asset, direction string)) {
	e.onFire = fn
}

// NewEngine wires a kill-zone engine. client/signer may be nil in
// dry-run mode; realtime may be nil if no websocket spot feed is wired.
func NewEngine(cfg Config, spotCache SpotPriceSource, realtime RealtimeSpotSource, books BookQuoter, ledger *Ledger, client clob.Client, signer auth.Signer) *Engine {
	return &Engine{
		cfg:           cfg,
		spotCache:     spotCache,
		realtime:      realtime,
		books:         books,
		ledger:        ledger,
		client:        client,
		signer:        signer,
		tradedWindows: make(map[string]time.Time),
		skipCooldown:  make(map[string]time.Time),
		killZoneSeen:  make(map[string]struct{}),
	}
}

// Tick evaluates every currently active window for kill-zone entry.
// Intended to be called on a fast ticker (spec default: 100ms).
func (e *Engine) Tick(ctx context.Context, windows []windowtracker.Window) {
	now := time.Now()
	today := now.Format("2006-01-02")

	if today != e.dailyResetDay {
		e.dailyLoss = 0
		e.dailyResetDay = today
		e.killZoneSeen = make(map[string]struct{})
		e.skipCooldown = make(map[string]time.Time)
		log.Info().Msg("daily reset, loss counter cleared")
	}

	if e.dailyLoss >= e.cfg.DailyLossCapUSD {
		return
	}

	for _, w := range windows {
		if _, traded := e.tradedWindows[w.MarketID]; traded {
			continue
		}
		if !e.assetEnabled(w.Asset) {
			continue
		}

		remaining := time.Duration(w.EndTS-now.Unix()) * time.Second
		if remaining.Seconds() > e.cfg.WindowSeconds || remaining.Seconds() < e.cfg.MinWindowSeconds {
			continue
		}

		if last, ok := e.skipCooldown[w.MarketID]; ok && now.Sub(last) < e.cfg.SkipCooldown {
			continue
		}

		if _, seen := e.killZoneSeen[w.MarketID]; !seen {
			e.killZoneSeen[w.MarketID] = struct{}{}
			log.Info().
				Str("asset", w.Asset).
				Str("market_id", w.MarketID).
				Float64("remaining_s", remaining.Seconds()).
				Float64("open_price", w.OpenPrice).
				Msg("kill zone entered")
		}

		e.evaluateWindow(ctx, w, remaining)
	}
}

func (e *Engine) assetEnabled(asset string) bool {
	for _, a := range e.cfg.Assets {
		if a == asset {
			return true
		}
	}
	return false
}

func (e *Engine) skip(marketID string) {
	e.skipCooldown[marketID] = time.Now()
}

// evaluateWindow fires when the spot price has moved past the
// direction threshold AND the winning token's order book is priced
// between the floor and full price. Any other condition sets a short
// retry cooldown, never the permanent blacklist.
func (e *Engine) evaluateWindow(ctx context.Context, w windowtracker.Window, remaining time.Duration) {
	quote, ok := e.bestPrice(w.Asset)
	if !ok || quote.Age > e.cfg.PriceMaxAge {
		e.skip(w.MarketID)
		return
	}

	delta := (quote.Price - w.OpenPrice) / w.OpenPrice
	if abs(delta) < e.cfg.DirectionThresh {
		e.skip(w.MarketID)
		return
	}

	direction := "down"
	if delta > 0 {
		direction = "up"
	}

	winningToken := w.DownTokenID
	if direction == "up" {
		winningToken = w.UpTokenID
	}

	var bid, ask float64
	var haveBook bool
	if winningToken != "" && e.books != nil {
		bid, ask, haveBook = e.books.BestBidAsk(ctx, winningToken)
	}

	var bookPrice float64
	switch {
	case haveBook && ask > 0:
		bookPrice = ask
	case haveBook && bid > 0:
		bookPrice = bid
	}

	if bookPrice < e.cfg.BookPriceFloor {
		e.skip(w.MarketID)
		log.Debug().
			Str("asset", w.Asset).
			Str("direction", direction).
			Float64("book_price", bookPrice).
			Msg("book below floor, retrying")
		return
	}

	// FIRE. Mark traded permanently before doing anything else: a live
	// order failure still consumes the window, it doesn't get retried.
	sizeUSD := e.cfg.MaxBetUSD
	e.tradedWindows[w.MarketID] = time.Now()

	var entryPrice, shares float64
	var orderID string
	if !e.cfg.DryRun && e.client != nil && winningToken != "" {
		var err error
		entryPrice, shares, orderID, err = e.placeLiveOrder(ctx, winningToken, ask, sizeUSD)
		if err != nil {
			log.Warn().Err(err).Str("market_id", w.MarketID).Msg("live order failed, no fill")
			return
		}
	} else {
		entryPrice = round2(bookPrice)
		shares = round2(sizeUSD / entryPrice)
	}

	mode := "PAPER"
	if !e.cfg.DryRun {
		mode = "LIVE"
	}

	trade := PaperTrade{
		Timestamp:    float64(time.Now().Unix()),
		Asset:        w.Asset,
		MarketID:     w.MarketID,
		Question:     w.Question,
		Direction:    direction,
		EntryPrice:   entryPrice,
		SizeUSD:      sizeUSD,
		Shares:       shares,
		WindowEndTS:  float64(w.EndTS),
		SpotDeltaPct: round6(delta),
		OpenPrice:    w.OpenPrice,
		MarketBid:    bid,
		MarketAsk:    ask,
	}
	if err := e.ledger.RecordTrade(trade); err != nil {
		log.Error().Err(err).Msg("failed to persist killshot trade")
	}
	if e.onFire != nil {
		e.onFire(w.Asset, direction)
	}

	log.Info().
		Str("mode", mode).
		Str("direction", direction).
		Str("asset", w.Asset).
		Float64("delta_pct", delta*100).
		Float64("entry_cents", entryPrice*100).
		Float64("size_usd", sizeUSD).
		Float64("shares", shares).
		Str("order_id", orderID).
		Msg("killshot fire")
}

// placeLiveOrder crosses the spread with an immediate-or-cancel buy:
// the SDK's FAK order type is the Go equivalent of the Python client's
// FOK (fill-or-kill) semantics used here — fill now or don't fill at
// all, never rest on the book.
func (e *Engine) placeLiveOrder(ctx context.Context, tokenID string, marketAsk, sizeUSD float64) (entryPrice, shares float64, orderID string, err error) {
	price := 0.90
	if marketAsk > 0 {
		price = round2(marketAsk + 0.01)
	}
	if price > 0.99 {
		price = 0.99
	}

	shares = round2(sizeUSD / price)
	if shares < 5 {
		shares = 5
		sizeUSD = round2(shares * price)
	}

	builder := clob.NewOrderBuilder(e.client, e.signer).
		TokenID(tokenID).
		Side("BUY").
		Price(price).
		AmountUSDC(shares * price).
		OrderType(clobtypes.OrderTypeFAK)

	signable, buildErr := builder.BuildSignableWithContext(ctx)
	if buildErr != nil {
		return 0, 0, "", fmt.Errorf("build killshot order: %w", buildErr)
	}
	resp, placeErr := e.client.CreateOrderFromSignable(ctx, signable)
	if placeErr != nil {
		return 0, 0, "", fmt.Errorf("place killshot order: %w", placeErr)
	}

	filledPrice := price
	if resp.Price != "" {
		if p, perr := strconv.ParseFloat(resp.Price, 64); perr == nil && p > 0 {
			filledPrice = p
		}
	}
	filledShares := shares
	if resp.SizeMatched != "" {
		if s, serr := strconv.ParseFloat(resp.SizeMatched, 64); serr == nil && s > 0 {
			filledShares = s
		}
	}
	return filledPrice, filledShares, resp.ID, nil
}

// bestPrice walks the price-source fallback chain: realtime websocket
// feed first (trusted under 5s old), then the shared spot cache, else
// no price. The cache reports no quote age, so its price is returned
// with Age 0 and the PriceMaxAge check never rejects it.
func (e *Engine) bestPrice(asset string) (PriceQuote, bool) {
	if e.realtime != nil {
		if q, ok := e.realtime.Quote(asset); ok && q.Age < 5*time.Second {
			return q, true
		}
	}
	if e.spotCache != nil {
		if price, ok := e.spotCache.GetPrice(asset); ok {
			return PriceQuote{Price: price, Age: 0, Source: "spot"}, true
		}
	}
	return PriceQuote{}, false
}

// ReportResolved feeds actually-resolved trades back in to update the
// daily loss counter that gates Tick.
func (e *Engine) ReportResolved(trades []PaperTrade) {
	for _, t := range trades {
		if t.Outcome == "loss" {
			e.dailyLoss += abs(t.PnL)
			log.Info().
				Float64("loss", abs(t.PnL)).
				Float64("daily_loss", e.dailyLoss).
				Float64("cap", e.cfg.DailyLossCapUSD).
				Msg("daily loss updated")
		}
	}
}

// CleanupExpired drops window bookkeeping entries older than an hour so
// the blacklist/cooldown maps don't grow without bound across a long
// session.
func (e *Engine) CleanupExpired() {
	cutoff := time.Now().Add(-time.Hour)
	for k, v := range e.tradedWindows {
		if v.Before(cutoff) {
			delete(e.tradedWindows, k)
		}
	}
	for k, v := range e.skipCooldown {
		if v.Before(cutoff) {
			delete(e.skipCooldown, k)
		}
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
