// Package execution implements component C8, the Executor: it turns a
// sized trade decision into an order (paper or live), watches filled
// positions for stop-loss conditions, and expires stale paper
// positions. Grounded on original_source/bot/execution.py.
package execution

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/polymarket-go-sdk/pkg/auth"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob/clobtypes"

	"github.com/garveslabs/polymarket-trader/internal/logging"
	"github.com/garveslabs/polymarket-trader/internal/paper"
	"github.com/garveslabs/polymarket-trader/internal/signals"
	"github.com/garveslabs/polymarket-trader/internal/tracker"
)

var log = logging.Component("execution")

// Kelly-overlay sizing constants, original_source/bot/execution.py.
const (
	kellyMinResolved = 10
	kellyFraction    = 0.25
	kellyMinSizeFrac = 0.10
	kellyMaxSizeFrac = 2.50
	tradeMinUSD      = 25.0
	tradeMaxUSD      = 50.0

	stopLossThreshold = 0.50
	stopLossMinAge    = 60 * time.Second
	noBidStreakLimit  = 3
)

// timeframeExpiry is how long a dry-run position is held before it is
// expired for lack of a real fill/resolution event.
var timeframeExpiry = map[string]time.Duration{
	"5m":     5 * time.Minute,
	"15m":    15 * time.Minute,
	"1h":     time.Hour,
	"4h":     4 * time.Hour,
	"weekly": 7 * 24 * time.Hour,
}

const defaultTimeframeExpiry = 15 * time.Minute

// ResolvedTrade is the minimal shape Kelly sizing needs from a resolved
// trade record, decoupling this package from C9's ledger format.
type ResolvedTrade struct {
	Won         bool
	Probability float64
}

// KellyHistorySource supplies resolved trades for the Kelly overlay,
// satisfied by C9's PerformanceTracker without a direct import.
type KellyHistorySource interface {
	ResolvedTrades() []ResolvedTrade
}

// OrderBookSource fetches top-of-book bids for stop-loss evaluation.
type OrderBookSource interface {
	OrderBook(ctx context.Context, req *clobtypes.BookRequest) (clobtypes.OrderBook, error)
}

// PendingPosition is the subset of position state the executor needs to
// run stop-loss/expiry checks, independent of whether it came from a
// paper fill or a live one.
type PendingPosition struct {
	OrderID     string
	TokenID     string
	AssetID     string
	Market      string
	Direction   string
	Timeframe   string
	SizeUSD     float64
	EntryPrice  float64
	Shares      float64
	OpenedAt    time.Time
	DryRun      bool
}

// Config controls dry-run vs live behavior.
type Config struct {
	DryRun bool
}

// Executor places and manages orders for C8. In dry-run mode it fills
// through internal/paper's simulator at the signal's price (fee
// applied, no slippage); in live mode it signs and posts through the
// CLOB client.
type Executor struct {
	cfg Config

	client clob.Client
	signer auth.Signer
	sim    *paper.Simulator

	positions *tracker.PositionTracker
	kelly     KellyHistorySource

	mu        sync.Mutex
	open      map[string]*PendingPosition // orderID -> position
	noBidRuns map[string]int              // orderID -> consecutive no-bid polls
}

// NewExecutor returns an Executor. client and signer may be nil when
// cfg.DryRun is true.
func NewExecutor(cfg Config, client clob.Client, signer auth.Signer, sim *paper.Simulator, positions *tracker.PositionTracker, kelly KellyHistorySource) *Executor {
	return &Executor{
		cfg:       cfg,
		client:    client,
		signer:    signer,
		sim:       sim,
		positions: positions,
		kelly:     kelly,
		open:      make(map[string]*PendingPosition),
		noBidRuns: make(map[string]int),
	}
}

// DynamicPositionSize computes the legacy confidence/edge quality-score
// sizing with a Kelly overlay. internal/app does not call it: a window
// whose conviction size is not positive is skipped. Verbatim from
// original_source/bot/execution.py's _dynamic_position_size.
func (e *Executor) DynamicPositionSize(sig *signals.Signal) float64 {
	confScore := math.Min(sig.Confidence/0.6, 1.0)
	edgeScore := math.Min(sig.Edge/0.12, 1.0)
	quality := confScore*0.5 + edgeScore*0.5

	size := tradeMinUSD + quality*(tradeMaxUSD-tradeMinUSD)

	kellyMult := e.kellyMultiplier()
	size *= kellyMult

	size = math.Max(tradeMinUSD, math.Min(tradeMaxUSD, size))

	log.Debug().Float64("confidence", sig.Confidence).Float64("edge", sig.Edge).
		Float64("quality", quality).Float64("kelly_mult", kellyMult).Float64("size_usd", size).
		Msg("dynamic position size")
	return size
}

func (e *Executor) kellyMultiplier() float64 {
	if e.kelly == nil {
		return 1.0
	}
	resolved := e.kelly.ResolvedTrades()
	if len(resolved) < kellyMinResolved {
		return 1.0
	}

	wins := 0
	var payoutSum float64
	for _, r := range resolved {
		if r.Won {
			wins++
		}
		prob := r.Probability
		if prob <= 0.01 || prob >= 0.99 {
			payoutSum += 1.0
		} else {
			payoutSum += (1.0 / prob) - 1.0
		}
	}
	winRate := float64(wins) / float64(len(resolved))
	avgPayout := payoutSum / float64(len(resolved))
	if avgPayout <= 0 {
		return 1.0
	}

	kellyFull := (winRate*avgPayout - (1 - winRate)) / avgPayout
	kellyFrac := kellyFull * kellyFraction
	if kellyFrac <= 0 {
		return 0.8 // negative Kelly edge -> size down
	}
	return math.Max(kellyMinSizeFrac, math.Min(kellyMaxSizeFrac, kellyFrac))
}

// PlaceSignal places an order for sig sized at sizeUSD (internal/app
// passes the conviction-scored size). Returns
// the order/trade ID Positions are keyed by.
func (e *Executor) PlaceSignal(ctx context.Context, sig *signals.Signal, market string, sizeUSD float64) (string, error) {
	if sizeUSD <= 0 {
		return "", fmt.Errorf("position size must be positive")
	}
	price := clampPrice(round2(sig.Probability))
	tokenID := sig.UpTokenID
	if strings.EqualFold(sig.Direction, "down") {
		tokenID = sig.DownTokenID
	}
	if tokenID == "" {
		return "", fmt.Errorf("signal missing token id for direction %s", sig.Direction)
	}

	if e.cfg.DryRun {
		return e.placeDryRun(sig, market, tokenID, price, sizeUSD)
	}
	return e.placeLive(ctx, sig, market, tokenID, price, sizeUSD)
}

func (e *Executor) placeDryRun(sig *signals.Signal, market, tokenID string, price, sizeUSD float64) (string, error) {
	if e.sim == nil {
		return "", fmt.Errorf("dry-run executor missing a paper simulator")
	}
	fill, err := e.sim.FillAtPrice(tokenID, "BUY", sizeUSD, price)
	if err != nil {
		return "", fmt.Errorf("paper fill: %w", err)
	}

	orderID := fmt.Sprintf("dry-run-%s-%s", shortMarket(market), fill.OrderID)
	e.positions.RegisterOrder(orderID, tokenID, market, "BUY", fill.Price, fill.Size)

	e.mu.Lock()
	e.open[orderID] = &PendingPosition{
		OrderID: orderID, TokenID: tokenID, AssetID: tokenID, Market: market,
		Direction: sig.Direction, Timeframe: sig.Timeframe,
		SizeUSD: sizeUSD, EntryPrice: fill.Price, Shares: fill.Size,
		OpenedAt: time.Now(), DryRun: true,
	}
	e.mu.Unlock()

	log.Info().Str("order_id", orderID).Str("direction", sig.Direction).
		Float64("size_usd", sizeUSD).Float64("price", fill.Price).Str("market", market).
		Msg("dry-run order placed")
	return orderID, nil
}

func (e *Executor) placeLive(ctx context.Context, sig *signals.Signal, market, tokenID string, price, sizeUSD float64) (string, error) {
	if e.client == nil {
		return "", fmt.Errorf("no CLOB client available for live trading")
	}

	builder := clob.NewOrderBuilder(e.client, e.signer).
		TokenID(tokenID).
		Side("BUY").
		Price(price).
		AmountUSDC(sizeUSD).
		OrderType(clobtypes.OrderTypeGTC)

	signable, err := builder.BuildSignableWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("build order: %w", err)
	}
	resp, err := e.client.CreateOrderFromSignable(ctx, signable)
	if err != nil {
		return "", fmt.Errorf("place order: %w", err)
	}

	orderID := resp.ID
	shares := sizeUSD / price
	e.positions.RegisterOrder(orderID, tokenID, market, "BUY", price, shares)

	e.mu.Lock()
	e.open[orderID] = &PendingPosition{
		OrderID: orderID, TokenID: tokenID, AssetID: tokenID, Market: market,
		Direction: sig.Direction, Timeframe: sig.Timeframe,
		SizeUSD: sizeUSD, EntryPrice: price, Shares: shares,
		OpenedAt: time.Now(),
	}
	e.mu.Unlock()

	log.Info().Str("order_id", orderID).Str("direction", sig.Direction).
		Float64("size_usd", sizeUSD).Float64("price", price).Str("market", market).
		Msg("live order placed")
	return orderID, nil
}

// CheckExpiry expires dry-run positions once they exceed their
// timeframe's hold window, since paper orders never get an external
// fill/resolution event to remove them.
func (e *Executor) CheckExpiry(now time.Time) []string {
	if !e.cfg.DryRun {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var expired []string
	for id, pos := range e.open {
		limit, ok := timeframeExpiry[pos.Timeframe]
		if !ok {
			limit = defaultTimeframeExpiry
		}
		if now.Sub(pos.OpenedAt) > limit {
			expired = append(expired, id)
			delete(e.open, id)
			delete(e.noBidRuns, id)
			log.Info().Str("order_id", id).Dur("age", now.Sub(pos.OpenedAt)).
				Msg("dry-run position expired")
		}
	}
	return expired
}

// CheckStopLosses polls current book state for every filled position
// and sells any whose price has collapsed below stopLossThreshold of
// entry, or whose book has shown no bids for noBidStreakLimit
// consecutive checks (liquidity gone -> emergency exit).
// Grounded on original_source/bot/execution.py's check_stop_losses.
func (e *Executor) CheckStopLosses(ctx context.Context, books OrderBookSource, now time.Time) int {
	e.mu.Lock()
	candidates := make([]*PendingPosition, 0, len(e.open))
	for _, pos := range e.open {
		if now.Sub(pos.OpenedAt) < stopLossMinAge {
			continue
		}
		candidates = append(candidates, pos)
	}
	e.mu.Unlock()

	stopped := 0
	for _, pos := range candidates {
		bestBid, hasBid, err := e.topBid(ctx, books, pos.TokenID)
		if err != nil {
			continue
		}

		if !hasBid {
			e.mu.Lock()
			e.noBidRuns[pos.OrderID]++
			runs := e.noBidRuns[pos.OrderID]
			e.mu.Unlock()
			if runs >= noBidStreakLimit {
				e.exitPosition(pos, 0.01, "no-bid liquidity exhausted")
				stopped++
			}
			continue
		}

		e.mu.Lock()
		delete(e.noBidRuns, pos.OrderID)
		e.mu.Unlock()

		if bestBid <= 0 {
			continue
		}
		if bestBid < 0.005 {
			e.removePosition(pos.OrderID)
			stopped++
			continue
		}
		stopPrice := pos.EntryPrice * stopLossThreshold
		if bestBid < stopPrice {
			e.exitPosition(pos, clampPrice(round2(bestBid)), "stop-loss threshold breached")
			stopped++
		}
	}
	return stopped
}

func (e *Executor) topBid(ctx context.Context, books OrderBookSource, tokenID string) (bid float64, ok bool, err error) {
	if books == nil {
		return 0, false, fmt.Errorf("no order book source")
	}
	book, err := books.OrderBook(ctx, &clobtypes.BookRequest{TokenID: tokenID})
	if err != nil {
		return 0, false, err
	}
	if len(book.Bids) == 0 {
		return 0, false, nil
	}
	price, err := strconv.ParseFloat(book.Bids[0].Price, 64)
	if err != nil {
		return 0, false, err
	}
	return price, true, nil
}

func (e *Executor) exitPosition(pos *PendingPosition, sellPrice float64, reason string) {
	if !e.cfg.DryRun && e.client != nil {
		builder := clob.NewOrderBuilder(e.client, e.signer).
			TokenID(pos.TokenID).
			Side("SELL").
			Price(sellPrice).
			AmountUSDC(sellPrice * pos.Shares).
			OrderType(clobtypes.OrderTypeGTC)
		if signable, err := builder.BuildSignableWithContext(context.Background()); err == nil {
			if _, err := e.client.CreateOrderFromSignable(context.Background(), signable); err != nil {
				log.Error().Err(err).Str("order_id", pos.OrderID).Msg("failed to place stop-loss sell")
			}
		}
	}

	recovery := sellPrice * pos.Shares
	log.Warn().Str("order_id", pos.OrderID).Str("reason", reason).
		Float64("entry_price", pos.EntryPrice).Float64("sell_price", sellPrice).
		Float64("recovered_usd", recovery).Float64("original_usd", pos.SizeUSD).
		Msg("stop-loss exit")
	e.removePosition(pos.OrderID)
}

func (e *Executor) removePosition(orderID string) {
	e.mu.Lock()
	delete(e.open, orderID)
	delete(e.noBidRuns, orderID)
	e.mu.Unlock()
}

// CancelAllOpen cancels every still-open order on shutdown. Filled
// positions (tracked via PositionTracker) are left alone; this only
// clears resting/paper orders that never became real holdings.
func (e *Executor) CancelAllOpen(ctx context.Context) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.open))
	for id := range e.open {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	if e.cfg.DryRun {
		for _, id := range ids {
			e.removePosition(id)
		}
		log.Info().Int("count", len(ids)).Msg("cleared dry-run positions on shutdown")
		return
	}

	if e.client == nil || len(ids) == 0 {
		return
	}
	if _, err := e.client.CancelOrders(ctx, &clobtypes.CancelOrdersRequest{OrderIDs: ids}); err != nil {
		log.Error().Err(err).Msg("cancel all open orders failed")
		return
	}
	for _, id := range ids {
		e.removePosition(id)
	}
	log.Info().Int("count", len(ids)).Msg("cancelled open orders on shutdown")
}

// OpenCount returns the number of positions the executor is currently
// tracking for stop-loss/expiry purposes.
func (e *Executor) OpenCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.open)
}

func clampPrice(p float64) float64 {
	return math.Max(0.01, math.Min(0.99, p))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func shortMarket(market string) string {
	if len(market) > 8 {
		return market[:8]
	}
	return market
}
