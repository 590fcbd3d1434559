package app

import (
	"context"
	"strings"
	"sync"

	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob/ws"

	"github.com/garveslabs/polymarket-trader/internal/execution"
	"github.com/garveslabs/polymarket-trader/internal/tracker"
)

// marketResolutionFeed satisfies tracker.ResolutionFetcher by caching
// MarketResolvedEvent notifications from the CLOB websocket as they
// arrive, rather than polling a resolution endpoint. CheckResolutions
// calls FetchResolution on a timer; this only ever returns what the
// feed has already seen, so it never blocks on network I/O.
type marketResolutionFeed struct {
	mu       sync.RWMutex
	outcomes map[string]string
}

func newMarketResolutionFeed() *marketResolutionFeed {
	return &marketResolutionFeed{outcomes: make(map[string]string)}
}

// observe records a resolution event. WinningOutcome arrives as the
// human-readable outcome label ("Up"/"Down", case varies by market);
// normalize it to match signals.Signal.Direction.
func (f *marketResolutionFeed) observe(ev ws.MarketResolvedEvent) {
	direction := normalizeWinningOutcome(ev.WinningOutcome)
	if direction == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[ev.Market] = direction
}

func (f *marketResolutionFeed) FetchResolution(_ context.Context, marketID string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	outcome, ok := f.outcomes[marketID]
	return outcome, ok
}

func normalizeWinningOutcome(raw string) string {
	clean := strings.ToLower(strings.TrimSpace(raw))
	switch clean {
	case "up", "yes":
		return "up"
	case "down", "no":
		return "down"
	default:
		return ""
	}
}

// kellyHistoryAdapter bridges tracker.PerformanceTracker's resolved
// trade history into execution.KellyHistorySource. The two ResolvedTrade
// types are structurally identical but nominally distinct to avoid an
// import cycle between tracker and execution.
type kellyHistoryAdapter struct {
	perf *tracker.PerformanceTracker
}

func (a kellyHistoryAdapter) ResolvedTrades() []execution.ResolvedTrade {
	src := a.perf.ResolvedTrades()
	out := make([]execution.ResolvedTrade, len(src))
	for i, t := range src {
		out[i] = execution.ResolvedTrade{Won: t.Won, Probability: t.Probability}
	}
	return out
}
