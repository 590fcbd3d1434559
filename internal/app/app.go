package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/polymarket-go-sdk/pkg/auth"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob/clobtypes"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob/heartbeat"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob/ws"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/data"

	"github.com/garveslabs/polymarket-trader/internal/builder"
	"github.com/garveslabs/polymarket-trader/internal/config"
	"github.com/garveslabs/polymarket-trader/internal/conviction"
	"github.com/garveslabs/polymarket-trader/internal/execution"
	"github.com/garveslabs/polymarket-trader/internal/feed"
	"github.com/garveslabs/polymarket-trader/internal/indicators"
	"github.com/garveslabs/polymarket-trader/internal/killshot"
	"github.com/garveslabs/polymarket-trader/internal/logging"
	"github.com/garveslabs/polymarket-trader/internal/metrics"
	"github.com/garveslabs/polymarket-trader/internal/notify"
	"github.com/garveslabs/polymarket-trader/internal/paper"
	"github.com/garveslabs/polymarket-trader/internal/portfolio"
	"github.com/garveslabs/polymarket-trader/internal/priceindex"
	"github.com/garveslabs/polymarket-trader/internal/regime"
	"github.com/garveslabs/polymarket-trader/internal/risk"
	"github.com/garveslabs/polymarket-trader/internal/signals"
	"github.com/garveslabs/polymarket-trader/internal/tracker"
	"github.com/garveslabs/polymarket-trader/internal/weights"
	"github.com/garveslabs/polymarket-trader/internal/windowtracker"
)

var log = logging.Component("app")

// App wires every pipeline component (C1-C11) into one running
// process: price ingestion feeds the indicator/signal layer, signals
// pass through the conviction scorer and risk gate before the executor
// places a trade, and fills flow back through the position tracker into
// risk and performance bookkeeping. Grounded on
// _examples/GoPolymarket-polymarket-trader's internal/app/app.go
// orchestration shape; maker/taker quoting, the Gamma-based market
// selector, and convergence-arbitrage checks have no place in this
// domain and are not carried over.
type App struct {
	cfg        config.Config
	clobClient clob.Client
	wsClient   ws.Client
	signer     auth.Signer
	dataClient data.Client

	books      *feed.BookSnapshot
	priceCache *priceindex.Cache
	ingester   *feed.Ingester
	sentiment  *indicators.FearGreedIndexer
	regimeDet  *regime.Detector
	learner    *weights.Learner

	signalEngine     *signals.Engine
	convictionEngine *conviction.Engine

	riskMgr     *risk.Manager
	positions   *tracker.PositionTracker
	perfTracker *tracker.PerformanceTracker
	resolutions *marketResolutionFeed

	executor *execution.Executor

	killshotEngine *killshot.Engine
	killshotLedger *killshot.Ledger

	windows *windowtracker.Tracker

	heartbeatClient heartbeat.Client
	Portfolio       *portfolio.PortfolioTracker
	BuilderTracker  *builder.VolumeTracker
	notifier        Notifier
	kpi             *kpiCollector

	lastRealizedPnL       float64
	realizedInitialized   bool
	dailyRealizedBaseline float64
	dailyBaselineSet      bool
	tradingMode           string
	paperSim              *paper.Simulator

	mu      sync.RWMutex
	running bool
}

// Notifier defines alert methods used by the trading app.
type Notifier interface {
	NotifyFill(ctx context.Context, assetID, side string, price, size float64) error
	NotifyStopLoss(ctx context.Context, assetID string, pnl float64) error
	NotifyEmergencyStop(ctx context.Context) error
	NotifyDailySummary(ctx context.Context, pnl float64, fills int, volume float64) error
	NotifyRiskCooldown(ctx context.Context, consecutiveLosses, maxConsecutiveLosses int, cooldownRemaining time.Duration) error
}

func New(cfg config.Config, clobClient clob.Client, wsClient ws.Client, signer auth.Signer, dataClient data.Client) *App {
	tradingMode := strings.ToLower(strings.TrimSpace(cfg.TradingMode))
	if tradingMode != "live" && tradingMode != "paper" {
		tradingMode = "paper"
	}

	priceCache := priceindex.New(priceindex.DefaultCapacity)
	sentiment := indicators.NewFearGreedIndexer()
	learner := weights.NewLearner(dataFilePath(cfg.DataDir, "weights.json"))
	positions := tracker.NewPositionTracker()

	riskMgr := risk.New(risk.Config{
		MaxOpenOrders:           cfg.Risk.MaxOpenOrders,
		MaxDailyLossUSDC:        cfg.Risk.MaxDailyLossUSDC,
		MaxDailyLossPct:         cfg.Risk.MaxDailyLossPct,
		AccountCapitalUSDC:      cfg.Risk.AccountCapitalUSDC,
		MaxPositionPerMarket:    cfg.Risk.MaxPositionPerMarket,
		StopLossPerMarket:       cfg.Risk.StopLossPerMarket,
		MaxDrawdownPct:          cfg.Risk.MaxDrawdownPct,
		RiskSyncInterval:        cfg.Risk.RiskSyncInterval,
		MaxConsecutiveLosses:    cfg.Risk.MaxConsecutiveLosses,
		ConsecutiveLossCooldown: cfg.Risk.ConsecutiveLossCooldown,
		MinEdgePct:              cfg.Risk.MinEdgePct,
		MaxConcurrentPositions:  cfg.Risk.MaxConcurrentPositions,
		MaxTotalExposureUSDC:    cfg.Risk.MaxTotalExposureUSDC,
	})

	resolutions := newMarketResolutionFeed()
	perfTracker := tracker.NewPerformanceTracker(dataFilePath(cfg.DataDir, "trades.jsonl"), resolutions, learner)

	regimeDet := regime.NewDetector(sentiment)
	signalEngine := signals.NewEngine(priceCache, learner, sentiment)
	convictionEngine := conviction.NewEngine(perfTracker, perfTracker)

	var notifier Notifier
	if cfg.Telegram.Enabled {
		notifier = notify.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	}

	var paperSim *paper.Simulator
	if cfg.DryRun {
		allowShort := cfg.Paper.AllowShort
		paperSim = paper.NewSimulator(paper.Config{
			InitialBalanceUSDC: cfg.Paper.InitialBalanceUSDC,
			FeeBps:             cfg.Paper.FeeBps,
			SlippageBps:        cfg.Paper.SlippageBps,
			AllowShort:         &allowShort,
		})
	}

	executor := execution.NewExecutor(
		execution.Config{DryRun: cfg.DryRun},
		clobClient,
		signer,
		paperSim,
		positions,
		kellyHistoryAdapter{perf: perfTracker},
	)

	killshotLedger := killshot.NewLedger(dataFilePath(cfg.DataDir, "killshot.jsonl"))
	books := feed.NewBookSnapshot()
	killshotEngine := killshot.NewEngine(
		killshotConfigFrom(cfg.Killshot),
		priceCache,
		nil,
		books,
		killshotLedger,
		clobClient,
		signer,
	)
	killshotEngine.SetFireHook(func(asset, direction string) {
		metrics.KillshotFires.WithLabelValues(asset, direction).Inc()
	})

	a := &App{
		cfg:              cfg,
		clobClient:       clobClient,
		wsClient:         wsClient,
		signer:           signer,
		dataClient:       dataClient,
		books:            books,
		priceCache:       priceCache,
		ingester:         feed.NewIngester(priceCache, cfg.Assets),
		sentiment:        sentiment,
		regimeDet:        regimeDet,
		learner:          learner,
		signalEngine:     signalEngine,
		convictionEngine: convictionEngine,
		riskMgr:          riskMgr,
		positions:        positions,
		perfTracker:      perfTracker,
		resolutions:      resolutions,
		executor:         executor,
		killshotEngine:   killshotEngine,
		killshotLedger:   killshotLedger,
		windows:          windowtracker.New(priceCache),
		notifier:         notifier,
		kpi:              newKPICollector(),
		tradingMode:      tradingMode,
		paperSim:         paperSim,
	}

	if dataClient != nil && signer != nil {
		a.Portfolio = portfolio.NewTracker(dataClient, signer.Address(), 5*time.Minute)
	}
	if dataClient != nil && cfg.BuilderKey != "" {
		a.BuilderTracker = builder.NewVolumeTracker(dataClient, cfg.BuilderSyncInterval)
	}
	if clobClient != nil {
		a.heartbeatClient = clobClient.Heartbeat()
	}

	positions.OnFill = func(f tracker.Fill) {
		a.kpi.recordFill(f.Timestamp)
		metrics.OrdersPlaced.WithLabelValues(a.tradingMode, strings.ToLower(f.Side)).Inc()
		log.Info().Str("asset", f.AssetID).Str("side", f.Side).Float64("price", f.Price).Float64("size", f.Size).Msg("fill")
		if a.notifier != nil {
			_ = a.notifier.NotifyFill(context.Background(), f.AssetID, f.Side, f.Price, f.Size)
		}
	}

	return a
}

func dataFilePath(dataDir, name string) string {
	if dataDir == "" {
		return name
	}
	return strings.TrimRight(dataDir, "/") + "/" + name
}

func killshotConfigFrom(cfg config.KillshotConfig) killshot.Config {
	return killshot.Config{
		DryRun:           cfg.DryRun,
		Assets:           cfg.Assets,
		MaxBetUSD:        cfg.MaxBetUSD,
		DailyLossCapUSD:  cfg.DailyLossCapUSD,
		DirectionThresh:  cfg.DirectionThreshold,
		WindowSeconds:    cfg.WindowSeconds.Seconds(),
		MinWindowSeconds: cfg.MinWindowSeconds.Seconds(),
		BookPriceFloor:   cfg.BookPriceFloor,
		SkipCooldown:     cfg.SkipCooldown,
		PriceMaxAge:      cfg.PriceMaxAge,
	}
}

func discoveredWindowsFromConfig(windows []config.WindowConfig) []windowtracker.DiscoveredWindow {
	out := make([]windowtracker.DiscoveredWindow, len(windows))
	for i, w := range windows {
		out[i] = windowtracker.DiscoveredWindow{
			MarketID:    w.MarketID,
			Question:    w.Question,
			Asset:       w.Asset,
			UpTokenID:   w.UpTokenID,
			DownTokenID: w.DownTokenID,
		}
	}
	return out
}

func uniqueTokenIDs(windows []config.WindowConfig) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, w := range windows {
		for _, id := range []string{w.UpTokenID, w.DownTokenID} {
			if id != "" && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func uniqueMarketIDs(windows []config.WindowConfig) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, w := range windows {
		if w.MarketID != "" && !seen[w.MarketID] {
			seen[w.MarketID] = true
			ids = append(ids, w.MarketID)
		}
	}
	return ids
}

// deriveTimeframe maps a window's duration onto the nearest of the
// signal engine's supported timeframes. Up-or-Down markets don't carry
// an explicit timeframe field; their duration is the only signal.
func deriveTimeframe(w windowtracker.Window) string {
	d := time.Duration(w.EndTS-w.StartTS) * time.Second
	switch {
	case d <= 7*time.Minute:
		return signals.TF5m
	case d <= 30*time.Minute:
		return signals.TF15m
	case d <= 2*time.Hour:
		return signals.TF1h
	default:
		return signals.TF4h
	}
}

func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	a.running = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	tokenIDs := uniqueTokenIDs(a.cfg.Windows)
	marketIDs := uniqueMarketIDs(a.cfg.Windows)
	if len(tokenIDs) == 0 {
		log.Warn().Msg("no windows configured, nothing to trade")
	}

	a.ingester.Start(ctx)

	var bookCh <-chan ws.OrderbookEvent
	var err error
	if len(tokenIDs) > 0 {
		bookCh, err = a.wsClient.SubscribeOrderbook(ctx, tokenIDs)
		if err != nil {
			return err
		}
	}

	var orderCh <-chan ws.OrderEvent
	var tradeCh <-chan ws.TradeEvent
	if a.tradingMode == "live" && len(marketIDs) > 0 {
		orderCh, err = a.wsClient.SubscribeUserOrders(ctx, marketIDs)
		if err != nil {
			log.Warn().Err(err).Msg("user orders subscription failed")
		}
		tradeCh, err = a.wsClient.SubscribeUserTrades(ctx, marketIDs)
		if err != nil {
			log.Warn().Err(err).Msg("user trades subscription failed")
		}
	}

	var resolutionCh <-chan ws.MarketResolvedEvent
	if len(tokenIDs) > 0 {
		resolutionCh, err = a.wsClient.SubscribeMarketResolutions(ctx, tokenIDs)
		if err != nil {
			log.Warn().Err(err).Msg("market resolutions subscription failed")
		}
	}

	if a.Portfolio != nil {
		go func() {
			if err := a.Portfolio.Run(ctx); err != nil && err != context.Canceled {
				log.Warn().Err(err).Msg("portfolio tracker stopped")
			}
		}()
	}
	if a.BuilderTracker != nil {
		go func() {
			if err := a.BuilderTracker.Run(ctx); err != nil && err != context.Canceled {
				log.Warn().Err(err).Msg("builder tracker stopped")
			}
		}()
	}

	log.Info().Int("windows", len(a.cfg.Windows)).Msg("trading loop started")

	scanInterval := a.cfg.ScanInterval
	if scanInterval <= 0 {
		scanInterval = 10 * time.Second
	}
	scanTicker := time.NewTicker(scanInterval)
	defer scanTicker.Stop()

	killshotInterval := a.cfg.Killshot.TickInterval
	if killshotInterval <= 0 {
		killshotInterval = 100 * time.Millisecond
	}
	var killshotTicker *time.Ticker
	var killshotCh <-chan time.Time
	if a.cfg.Killshot.Enabled {
		killshotTicker = time.NewTicker(killshotInterval)
		killshotCh = killshotTicker.C
		defer killshotTicker.Stop()
	}

	riskInterval := a.cfg.Risk.RiskSyncInterval
	if riskInterval <= 0 {
		riskInterval = 5 * time.Second
	}
	riskTicker := time.NewTicker(riskInterval)
	defer riskTicker.Stop()

	hbInterval := a.cfg.HeartbeatInterval
	if hbInterval <= 0 {
		hbInterval = 30 * time.Second
	}
	heartbeatTicker := time.NewTicker(hbInterval)
	defer heartbeatTicker.Stop()

	dailyResetTimer := time.NewTimer(timeUntilMidnightUTC())
	defer dailyResetTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-bookCh:
			if !ok {
				bookCh = nil
				continue
			}
			a.books.Update(event)

		case orderEv, ok := <-orderCh:
			if !ok {
				orderCh = nil
				continue
			}
			a.positions.ProcessOrderEvent(orderEv)
			a.riskMgr.SetOpenOrders(a.positions.OpenOrderCount())

		case tradeEv, ok := <-tradeCh:
			if !ok {
				tradeCh = nil
				continue
			}
			a.positions.ProcessTradeEvent(tradeEv)

		case resEv, ok := <-resolutionCh:
			if !ok {
				resolutionCh = nil
				continue
			}
			a.handleMarketResolution(ctx, resEv)

		case now := <-scanTicker.C:
			a.windows.Update(now, discoveredWindowsFromConfig(a.cfg.Windows))
			a.runTradingTick(ctx, now)
			a.perfTracker.CheckResolutions(ctx)
			a.checkExitConditions(ctx, now)

		case <-killshotCh:
			a.killshotEngine.Tick(ctx, a.windows.AllActiveWindows())

		case <-riskTicker.C:
			a.riskSync(ctx)
			metrics.OpenPositions.Set(float64(len(a.positions.Positions())))

		case <-heartbeatTicker.C:
			if a.heartbeatClient != nil {
				if _, hbErr := a.heartbeatClient.Heartbeat(ctx, nil); hbErr != nil {
					log.Warn().Err(hbErr).Msg("heartbeat")
				}
			}

		case <-dailyResetTimer.C:
			a.resetDailyRisk()
			log.Info().Msg("daily risk reset")
			if a.notifier != nil {
				_, fills, pnl := a.Stats()
				_ = a.notifier.NotifyDailySummary(ctx, pnl, fills, 0)
			}
			dailyResetTimer.Reset(timeUntilMidnightUTC())
		}
	}
}

// runTradingTick evaluates C5's signal engine and C6's conviction
// scorer for every untraded active window, placing an order through C8
// when the risk gate (C7) allows it.
func (a *App) runTradingTick(ctx context.Context, now time.Time) {
	a.convictionEngine.ExpireStale(now)
	reg := a.regimeDet.Current(ctx)

	for _, w := range a.windows.AllActiveWindows() {
		if w.Traded {
			continue
		}

		req := signals.Request{
			Asset:       w.Asset,
			Timeframe:   deriveTimeframe(w),
			UpTokenID:   w.UpTokenID,
			DownTokenID: w.DownTokenID,
			Regime:      reg,
		}
		if mid, err := a.books.Mid(w.UpTokenID); err == nil {
			req.ImpliedUpPrice = &mid
		}
		if bid, ask, ok := a.books.BestBidAsk(ctx, w.UpTokenID); ok {
			bidDepth, askDepth := a.books.Depth(w.UpTokenID, 5)
			req.Orderbook = &signals.OrderbookSnapshot{BidDepth: bidDepth, AskDepth: askDepth, Spread: ask - bid}
		}

		sig := a.signalEngine.Evaluate(ctx, req)
		if sig == nil {
			continue
		}
		metrics.SignalsEmitted.WithLabelValues(sig.Asset, sig.Direction).Inc()

		snapshot := conviction.SnapshotFromSignal(sig, now)
		a.convictionEngine.RegisterSignal(snapshot)

		var atrPtr *float64
		if sig.ATRValue > 0 {
			v := sig.ATRValue
			atrPtr = &v
		}
		result := a.convictionEngine.Score(sig, snapshot, reg, atrPtr)
		metrics.ConvictionScore.WithLabelValues(sig.Asset).Observe(result.TotalScore)
		a.kpi.recordEnsembleSignal(now, result.TotalScore)

		if result.PositionSizeUSD <= 0 {
			continue
		}

		if err := a.riskMgr.AllowTrade(sig.Edge, w.MarketID, a.positions); err != nil {
			reason := normalizeRiskReason(err.Error())
			a.kpi.recordRiskBlock(now, reason)
			metrics.RiskBlocks.WithLabelValues(reason).Inc()
			continue
		}

		if _, err := a.executor.PlaceSignal(ctx, sig, w.MarketID, result.PositionSizeUSD); err != nil {
			log.Warn().Err(err).Str("asset", sig.Asset).Msg("order placement failed")
			continue
		}

		a.windows.MarkTraded(w.MarketID)
		a.kpi.recordOrderSubmitted(now)
		metrics.OrdersPlaced.WithLabelValues(a.tradingMode, sig.Direction).Inc()
		if spot, ok := a.priceCache.GetPrice(sig.Asset); ok {
			a.kpi.recordDirectionCall(now, sig.Asset, sig.Direction, spot, 5*time.Minute, false)
		}

		a.perfTracker.RecordSignal(tracker.SignalInput{
			Asset:          sig.Asset,
			Timeframe:      sig.Timeframe,
			Direction:      sig.Direction,
			MarketID:       w.MarketID,
			SizeUSD:        result.PositionSizeUSD,
			EntryPrice:     sig.Probability,
			IndicatorVotes: sig.IndicatorVotes,
			MarketEndTime:  time.Unix(w.EndTS, 0),
		})
	}
}

// checkExitConditions runs C8's timed-expiry and stop-loss sweeps and
// scores pending KPI direction calls against each asset's current spot
// price.
func (a *App) checkExitConditions(ctx context.Context, now time.Time) {
	for _, assetID := range a.executor.CheckExpiry(now) {
		log.Info().Str("asset", assetID).Msg("position expired, closed")
	}
	if a.clobClient != nil {
		a.executor.CheckStopLosses(ctx, a.clobClient, now)
	}
	for asset := range uniqueAssets(a.cfg.Assets) {
		if spot, ok := a.priceCache.GetPrice(asset); ok {
			a.kpi.evaluateDirectionRealization(now, asset, spot)
		}
	}
}

func uniqueAssets(assets []string) map[string]struct{} {
	out := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		out[a] = struct{}{}
	}
	return out
}

// handleMarketResolution caches the resolved outcome for C9 and cancels
// any orders still open against the resolved market's tokens.
func (a *App) handleMarketResolution(ctx context.Context, ev ws.MarketResolvedEvent) {
	log.Info().Str("question", ev.Question).Str("winner", ev.WinningOutcome).Msg("market resolved")
	a.resolutions.observe(ev)

	if outcome := normalizeWinningOutcome(ev.WinningOutcome); outcome != "" {
		metrics.TradesResolved.WithLabelValues(outcomeLabel(outcome)).Inc()
	}

	if a.tradingMode == "live" && a.clobClient != nil {
		for _, assetID := range ev.AssetIDs {
			ids := a.positions.OrderIDs(assetID, "LIVE")
			if len(ids) > 0 {
				_, _ = a.clobClient.CancelOrders(ctx, &clobtypes.CancelOrdersRequest{OrderIDs: ids})
			}
		}
		if ev.Market != "" {
			_, _ = a.clobClient.CancelMarketOrders(ctx, &clobtypes.CancelMarketOrdersRequest{Market: ev.Market})
		}
	}
}

func outcomeLabel(direction string) string {
	if direction == "" {
		return "unknown"
	}
	return direction
}

func (a *App) riskSync(ctx context.Context) {
	currentRealized := a.positions.TotalRealizedPnL()
	if !a.realizedInitialized {
		if currentRealized != 0 {
			if a.riskMgr.RecordTradeResult(currentRealized) {
				a.kpi.recordCooldownTrigger(time.Now())
				a.notifyRiskCooldown(ctx)
			}
		}
		a.lastRealizedPnL = currentRealized
		a.realizedInitialized = true
	} else {
		delta := currentRealized - a.lastRealizedPnL
		if delta != 0 {
			if a.riskMgr.RecordTradeResult(delta) {
				a.kpi.recordCooldownTrigger(time.Now())
				a.notifyRiskCooldown(ctx)
			}
		}
		a.lastRealizedPnL = currentRealized
	}

	if !a.dailyBaselineSet {
		a.dailyRealizedBaseline = currentRealized
		a.dailyBaselineSet = true
	}
	dailyRealized := currentRealized - a.dailyRealizedBaseline

	positions := a.positions.Positions()
	a.riskMgr.SyncFromTracker(a.positions.OpenOrderCount(), positions, dailyRealized)
	a.kpi.recordRiskCompliance(time.Now(), !a.riskMgr.EmergencyStop() && !a.riskMgr.InCooldown())
	a.kpi.recordPnLSample(time.Now(), currentRealized, currentRealized, 0)

	for assetID, pos := range positions {
		if pos.NetSize == 0 {
			continue
		}
		mid, err := a.books.Mid(assetID)
		if err != nil {
			continue
		}
		if a.riskMgr.EvaluateStopLoss(assetID, pos, mid) {
			log.Warn().Str("asset", assetID).Msg("stop-loss triggered, unwinding position")
			if a.notifier != nil {
				_ = a.notifier.NotifyStopLoss(ctx, assetID, pos.RealizedPnL)
			}
		}
	}

	var totalUnrealized float64
	for assetID, pos := range positions {
		if pos.NetSize == 0 {
			continue
		}
		mid, err := a.books.Mid(assetID)
		if err != nil {
			continue
		}
		totalUnrealized += (mid - pos.AvgEntryPrice) * pos.NetSize
	}
	capital := a.cfg.Risk.AccountCapitalUSDC
	if capital <= 0 {
		capital = a.cfg.Risk.MaxPositionPerMarket * 5
	}
	if a.riskMgr.EvaluateDrawdown(currentRealized, totalUnrealized, capital) {
		log.Error().Msg("max drawdown exceeded, triggering emergency stop")
		a.SetEmergencyStop(true)
	}
}

func (a *App) notifyRiskCooldown(ctx context.Context) {
	if a.notifier == nil {
		return
	}
	_ = a.notifier.NotifyRiskCooldown(
		ctx,
		a.riskMgr.ConsecutiveLosses(),
		a.cfg.Risk.MaxConsecutiveLosses,
		a.riskMgr.CooldownRemaining(),
	)
}

func (a *App) resetDailyRisk() {
	a.riskMgr.ResetDaily()
	currentRealized := a.positions.TotalRealizedPnL()
	a.lastRealizedPnL = currentRealized
	a.realizedInitialized = true
	a.dailyRealizedBaseline = currentRealized
	a.dailyBaselineSet = true
}

func (a *App) Shutdown(ctx context.Context) {
	log.Info().Msg("shutting down")
	if !a.cfg.DryRun && a.tradingMode == "live" && a.clobClient != nil {
		a.executor.CancelAllOpen(ctx)
		if resp, err := a.clobClient.CancelAll(ctx); err != nil {
			log.Warn().Err(err).Msg("cancel all error")
		} else {
			log.Info().Int("count", resp.Count).Msg("cancelled orders")
		}
	}
	if a.wsClient != nil {
		_ = a.wsClient.Close()
	}
	orders := a.positions.OpenOrderCount()
	fills := a.positions.TotalFills()
	pnl := a.positions.TotalRealizedPnL()
	log.Info().Int("orders", orders).Int("fills", fills).Float64("pnl", pnl).Msg("session complete")
}

// Stats returns current open orders, total fills, and realized PnL.
func (a *App) Stats() (orders int, fills int, pnl float64) {
	return a.positions.OpenOrderCount(), a.positions.TotalFills(), a.positions.TotalRealizedPnL()
}

// IsRunning reports whether the trading loop is active.
func (a *App) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// IsDryRun reports whether the app is in dry-run mode.
func (a *App) IsDryRun() bool { return a.cfg.DryRun }

// MonitoredAssets returns the configured crypto assets C1 ingests.
func (a *App) MonitoredAssets() []string { return a.cfg.Assets }

// SetEmergencyStop activates or deactivates the emergency stop.
func (a *App) SetEmergencyStop(stop bool) {
	a.riskMgr.SetEmergencyStop(stop)
	a.kpi.setEmergencyStop(time.Now(), stop)
	if stop && a.notifier != nil {
		_ = a.notifier.NotifyEmergencyStop(context.Background())
	}
}

// RecentFills returns the last N trade fills.
func (a *App) RecentFills(limit int) []tracker.Fill {
	return a.positions.RecentFills(limit)
}

// ActiveOrders returns all currently LIVE orders.
func (a *App) ActiveOrders() []tracker.OrderState {
	return a.positions.ActiveOrders()
}

// TrackedPositions returns a snapshot of all tracked positions.
func (a *App) TrackedPositions() map[string]tracker.Position {
	return a.positions.Positions()
}

// RiskSnapshot returns the current risk state.
func (a *App) RiskSnapshot() risk.Snapshot {
	return a.riskMgr.Snapshot()
}

// TradingMode returns the effective execution mode: live or paper.
func (a *App) TradingMode() string {
	return a.tradingMode
}

// PaperSnapshot returns current paper account metrics (empty in live mode).
func (a *App) PaperSnapshot() paper.Snapshot {
	if a.paperSim == nil {
		return paper.Snapshot{}
	}
	return a.paperSim.Snapshot()
}

// KillshotStats returns the C10 paper ledger's running session stats.
func (a *App) KillshotStats() killshot.SessionStats {
	return a.killshotLedger.SessionStats()
}

// KPISnapshot returns the rolling KPI bookkeeping for operator tooling.
func (a *App) KPISnapshot() map[string]interface{} {
	return a.kpi.snapshot(time.Now())
}

func timeUntilMidnightUTC() time.Duration {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return midnight.Sub(now)
}
