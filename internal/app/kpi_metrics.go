package app

import (
	"math"
	"strings"
	"sync"
	"time"
)

const (
	kpiWindow30d                   = 30 * 24 * time.Hour
	defaultRealizationWindow       = 5 * time.Minute
)

type kpiRiskSample struct {
	at       time.Time
	canTrade bool
}

type kpiPnLSample struct {
	at       time.Time
	realized float64
	total    float64
	net      float64
}

// kpiPendingDirectionCall is a fired signal's directional prediction
// awaiting a later spot-price check, so the KPI snapshot can report how
// often the ensemble/killshot call direction actually realized.
type kpiPendingDirectionCall struct {
	asset        string
	direction    string // "up" or "down"
	triggerPrice float64
	dueAt        time.Time
}

// kpiCollector accumulates daily and 30-day rolling KPIs for the
// trading pipeline: signal volume, order/fill counts, risk-block
// reasons, cooldown/emergency-stop duration, and direction-call
// realization accuracy, independent of the Prometheus counters in
// internal/metrics (those are point-in-time gauges for scraping; this
// is the rolling-window bookkeeping original_source's dashboard KPI
// views read).
type kpiCollector struct {
	mu sync.RWMutex

	dayStartUTC time.Time
	lastUpdated time.Time

	ensembleSignalCountDaily int
	killshotSignalCountDaily int
	submittedOrdersDaily     int
	filledOrdersDaily        int

	riskBlockEventsDaily         int
	riskBlockEventsDailyByReason map[string]int
	riskBlockLastReason          string

	cooldownTriggerCountDaily int

	emergencyStopActive              bool
	emergencyStopActiveSinceUTC      time.Time
	emergencyStopActiveDurationDaily time.Duration

	convictionScoreSumDaily     float64
	convictionScoreSamplesDaily int

	directionRealizationCorrectDaily   int
	directionRealizationEvaluatedDaily int
	directionRealizationWindowMinutes  int
	pendingDirectionCalls              []kpiPendingDirectionCall

	riskComplianceSamples              []kpiRiskSample
	pnlSamples                         []kpiPnLSample
	currentRealizedPnL                 float64
	currentTotalPnL                    float64
	currentNetPnLAfterFees             float64
	dailyBaselineSet                   bool
	dailyBaselineRealizedPnL           float64
	dailyBaselineTotalPnL              float64
	dailyBaselineNetPnLAfterFees       float64
	netPnL30dWindowEffectiveDaysCached int
}

func newKPICollector() *kpiCollector {
	now := time.Now().UTC()
	return &kpiCollector{
		dayStartUTC:                        startOfUTCDay(now),
		lastUpdated:                        now,
		riskBlockEventsDailyByReason:       make(map[string]int),
		directionRealizationWindowMinutes:  int(defaultRealizationWindow / time.Minute),
	}
}

func startOfUTCDay(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (c *kpiCollector) ensureDayLocked(now time.Time) {
	day := startOfUTCDay(now)
	if day.Equal(c.dayStartUTC) {
		return
	}

	if c.emergencyStopActive {
		activeSince := c.emergencyStopActiveSinceUTC
		if activeSince.Before(c.dayStartUTC) {
			activeSince = c.dayStartUTC
		}
		if day.After(activeSince) {
			c.emergencyStopActiveDurationDaily += day.Sub(activeSince)
		}
		c.emergencyStopActiveSinceUTC = day
	}

	c.dayStartUTC = day
	c.ensembleSignalCountDaily = 0
	c.killshotSignalCountDaily = 0
	c.submittedOrdersDaily = 0
	c.filledOrdersDaily = 0
	c.riskBlockEventsDaily = 0
	c.riskBlockEventsDailyByReason = make(map[string]int)
	c.riskBlockLastReason = ""
	c.cooldownTriggerCountDaily = 0
	c.emergencyStopActiveDurationDaily = 0
	c.convictionScoreSumDaily = 0
	c.convictionScoreSamplesDaily = 0
	c.directionRealizationCorrectDaily = 0
	c.directionRealizationEvaluatedDaily = 0
	c.pendingDirectionCalls = nil

	c.dailyBaselineRealizedPnL = c.currentRealizedPnL
	c.dailyBaselineTotalPnL = c.currentTotalPnL
	c.dailyBaselineNetPnLAfterFees = c.currentNetPnLAfterFees
	c.dailyBaselineSet = true
}

func (c *kpiCollector) pruneLocked(now time.Time) {
	cutoff := now.Add(-kpiWindow30d)

	for len(c.riskComplianceSamples) > 0 && c.riskComplianceSamples[0].at.Before(cutoff) {
		c.riskComplianceSamples = c.riskComplianceSamples[1:]
	}

	for len(c.pnlSamples) > 2 && c.pnlSamples[1].at.Before(cutoff) {
		c.pnlSamples = c.pnlSamples[1:]
	}

	filtered := c.pendingDirectionCalls[:0]
	for _, pending := range c.pendingDirectionCalls {
		if pending.dueAt.Before(cutoff) {
			continue
		}
		filtered = append(filtered, pending)
	}
	c.pendingDirectionCalls = filtered
}

// normalizeRiskReason buckets a risk.Manager rejection message (a
// free-form error string, not a typed sentinel) into one of a fixed set
// of reason labels for Prometheus cardinality control.
func normalizeRiskReason(reason string) string {
	clean := strings.ToLower(strings.TrimSpace(reason))
	switch {
	case clean == "":
		return "unknown"
	case strings.Contains(clean, "emergency stop"):
		return "emergency_stop"
	case strings.Contains(clean, "cooldown"):
		return "cooldown"
	case strings.Contains(clean, "max open orders"):
		return "open_orders"
	case strings.Contains(clean, "daily loss"):
		return "daily_loss"
	case strings.Contains(clean, "already have an open position"):
		return "market_conflict"
	case strings.Contains(clean, "position limit"):
		return "position_limit"
	case strings.Contains(clean, "below minimum"):
		return "min_edge"
	case strings.Contains(clean, "max concurrent positions"):
		return "max_concurrent_positions"
	case strings.Contains(clean, "max total exposure"):
		return "max_total_exposure"
	default:
		return "unknown"
	}
}

func normalizeDirection(direction string) string {
	lower := strings.ToLower(strings.TrimSpace(direction))
	if lower == "up" || lower == "down" {
		return lower
	}
	return ""
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// recordEnsembleSignal tallies a C5 signal emission and its conviction
// score for the daily average.
func (c *kpiCollector) recordEnsembleSignal(now time.Time, convictionScore float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureDayLocked(now)
	c.ensembleSignalCountDaily++
	if !math.IsNaN(convictionScore) && !math.IsInf(convictionScore, 0) {
		c.convictionScoreSumDaily += convictionScore
		c.convictionScoreSamplesDaily++
	}
	c.lastUpdated = now
}

// recordDirectionCall tallies a fired directional prediction (ensemble
// or killshot) and queues it for realization evaluation horizon later.
func (c *kpiCollector) recordDirectionCall(now time.Time, asset, direction string, triggerPrice float64, horizon time.Duration, killshot bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureDayLocked(now)
	if killshot {
		c.killshotSignalCountDaily++
	}
	if horizon <= 0 {
		horizon = defaultRealizationWindow
	}
	direction = normalizeDirection(direction)
	if direction != "" && asset != "" && triggerPrice > 0 {
		c.pendingDirectionCalls = append(c.pendingDirectionCalls, kpiPendingDirectionCall{
			asset:        asset,
			direction:    direction,
			triggerPrice: triggerPrice,
			dueAt:        now.Add(horizon),
		})
		c.directionRealizationWindowMinutes = int(horizon / time.Minute)
	}
	c.lastUpdated = now
}

// evaluateDirectionRealization checks whether any pending direction
// calls for asset have reached their evaluation horizon, and if so,
// scores them against currentPrice.
func (c *kpiCollector) evaluateDirectionRealization(now time.Time, asset string, currentPrice float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureDayLocked(now)
	if asset == "" || currentPrice <= 0 || len(c.pendingDirectionCalls) == 0 {
		return
	}

	filtered := c.pendingDirectionCalls[:0]
	for _, pending := range c.pendingDirectionCalls {
		if pending.asset != asset {
			filtered = append(filtered, pending)
			continue
		}
		if now.Before(pending.dueAt) {
			filtered = append(filtered, pending)
			continue
		}

		c.directionRealizationEvaluatedDaily++
		if (pending.direction == "up" && currentPrice > pending.triggerPrice) ||
			(pending.direction == "down" && currentPrice < pending.triggerPrice) {
			c.directionRealizationCorrectDaily++
		}
	}
	c.pendingDirectionCalls = filtered
	c.lastUpdated = now
}

func (c *kpiCollector) recordOrderSubmitted(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureDayLocked(now)
	c.submittedOrdersDaily++
	c.lastUpdated = now
}

func (c *kpiCollector) recordFill(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureDayLocked(now)
	c.filledOrdersDaily++
	c.lastUpdated = now
}

func (c *kpiCollector) recordRiskBlock(now time.Time, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureDayLocked(now)
	c.riskBlockEventsDaily++
	reason = normalizeRiskReason(reason)
	c.riskBlockEventsDailyByReason[reason]++
	c.riskBlockLastReason = reason
	c.lastUpdated = now
}

func (c *kpiCollector) recordCooldownTrigger(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureDayLocked(now)
	c.cooldownTriggerCountDaily++
	c.lastUpdated = now
}

func (c *kpiCollector) setEmergencyStop(now time.Time, active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureDayLocked(now)
	if c.emergencyStopActive == active {
		return
	}
	if active {
		c.emergencyStopActive = true
		c.emergencyStopActiveSinceUTC = now
	} else {
		activeSince := c.emergencyStopActiveSinceUTC
		if activeSince.Before(c.dayStartUTC) {
			activeSince = c.dayStartUTC
		}
		if now.After(activeSince) {
			c.emergencyStopActiveDurationDaily += now.Sub(activeSince)
		}
		c.emergencyStopActive = false
		c.emergencyStopActiveSinceUTC = time.Time{}
	}
	c.lastUpdated = now
}

func (c *kpiCollector) recordRiskCompliance(now time.Time, canTrade bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureDayLocked(now)
	c.riskComplianceSamples = append(c.riskComplianceSamples, kpiRiskSample{at: now, canTrade: canTrade})
	c.pruneLocked(now)
	c.lastUpdated = now
}

func (c *kpiCollector) recordPnLSample(now time.Time, realizedPnL, totalPnL, feesPaid float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureDayLocked(now)

	net := totalPnL - feesPaid
	c.currentRealizedPnL = realizedPnL
	c.currentTotalPnL = totalPnL
	c.currentNetPnLAfterFees = net
	if !c.dailyBaselineSet {
		c.dailyBaselineRealizedPnL = realizedPnL
		c.dailyBaselineTotalPnL = totalPnL
		c.dailyBaselineNetPnLAfterFees = net
		c.dailyBaselineSet = true
	}

	c.pnlSamples = append(c.pnlSamples, kpiPnLSample{
		at:       now,
		realized: realizedPnL,
		total:    totalPnL,
		net:      net,
	})
	c.pruneLocked(now)
	c.lastUpdated = now
}

func (c *kpiCollector) snapshot(now time.Time) map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureDayLocked(now)
	c.pruneLocked(now)

	totalSignals := c.ensembleSignalCountDaily + c.killshotSignalCountDaily
	avgConvictionScore := 0.0
	if c.convictionScoreSamplesDaily > 0 {
		avgConvictionScore = c.convictionScoreSumDaily / float64(c.convictionScoreSamplesDaily)
	}
	directionRealizationRate := 0.0
	if c.directionRealizationEvaluatedDaily > 0 {
		directionRealizationRate = float64(c.directionRealizationCorrectDaily) / float64(c.directionRealizationEvaluatedDaily)
	}
	emergencyDuration := c.emergencyStopActiveDurationDaily
	if c.emergencyStopActive {
		activeSince := c.emergencyStopActiveSinceUTC
		if activeSince.Before(c.dayStartUTC) {
			activeSince = c.dayStartUTC
		}
		if now.After(activeSince) {
			emergencyDuration += now.Sub(activeSince)
		}
	}

	riskSamplesTotal := len(c.riskComplianceSamples)
	riskSamplesTradable := 0
	for _, sample := range c.riskComplianceSamples {
		if sample.canTrade {
			riskSamplesTradable++
		}
	}
	riskCompliance30d := 0.0
	if riskSamplesTotal > 0 {
		riskCompliance30d = float64(riskSamplesTradable) / float64(riskSamplesTotal)
	}

	netPnL30dRealized := 0.0
	netPnL30dTotal := 0.0
	netPnL30dAfterFees := 0.0
	windowDays := 0
	if len(c.pnlSamples) > 0 {
		latest := c.pnlSamples[len(c.pnlSamples)-1]
		base := c.pnlSamples[0]
		netPnL30dRealized = latest.realized - base.realized
		netPnL30dTotal = latest.total - base.total
		netPnL30dAfterFees = latest.net - base.net
		windowStart := base.at
		cutoff := now.Add(-kpiWindow30d)
		if windowStart.Before(cutoff) {
			windowStart = cutoff
		}
		if latest.at.After(windowStart) {
			windowDays = int(math.Ceil(latest.at.Sub(windowStart).Hours() / 24))
		}
		if windowDays <= 0 {
			windowDays = 1
		}
	}
	c.netPnL30dWindowEffectiveDaysCached = windowDays

	dailyNet := 0.0
	dailyRealized := 0.0
	dailyTotal := 0.0
	if c.dailyBaselineSet {
		dailyNet = c.currentNetPnLAfterFees - c.dailyBaselineNetPnLAfterFees
		dailyRealized = c.currentRealizedPnL - c.dailyBaselineRealizedPnL
		dailyTotal = c.currentTotalPnL - c.dailyBaselineTotalPnL
	}

	byReason := make(map[string]interface{}, len(c.riskBlockEventsDailyByReason))
	for reason, count := range c.riskBlockEventsDailyByReason {
		byReason[reason] = count
	}

	var emergencyActiveSince interface{}
	if c.emergencyStopActive && !c.emergencyStopActiveSinceUTC.IsZero() {
		emergencyActiveSince = c.emergencyStopActiveSinceUTC.UTC().Format(time.RFC3339)
	}

	return map[string]interface{}{
		"signal_count_daily":                     totalSignals,
		"ensemble_signal_count_daily":             c.ensembleSignalCountDaily,
		"killshot_signal_count_daily":             c.killshotSignalCountDaily,
		"submitted_orders_daily":                  c.submittedOrdersDaily,
		"filled_orders_daily":                     c.filledOrdersDaily,
		"risk_block_events_daily":                 c.riskBlockEventsDaily,
		"risk_block_events_daily_by_reason":       byReason,
		"risk_block_last_reason":                  c.riskBlockLastReason,
		"cooldown_trigger_count_daily":            c.cooldownTriggerCountDaily,
		"emergency_stop_active_duration_s_daily":  round6(emergencyDuration.Seconds()),
		"emergency_stop_is_active":                c.emergencyStopActive,
		"emergency_stop_active_started_at_utc":    emergencyActiveSince,
		"avg_conviction_score_daily":              round6(avgConvictionScore),
		"conviction_score_samples_daily":          c.convictionScoreSamplesDaily,
		"direction_realization_rate":              round6(directionRealizationRate),
		"direction_realization_window_minutes":    c.directionRealizationWindowMinutes,
		"risk_compliance_30d":                     round6(clampFloat(riskCompliance30d, 0, 1)),
		"risk_compliance_samples_30d":             riskSamplesTotal,
		"risk_compliance_tradable_samples_30d":    riskSamplesTradable,
		"net_pnl_30d_realized_usdc":               round6(netPnL30dRealized),
		"net_pnl_30d_total_usdc":                  round6(netPnL30dTotal),
		"net_pnl_30d_after_fees_usdc":             round6(netPnL30dAfterFees),
		"net_pnl_30d_window_effective_days":       windowDays,
		"net_pnl_daily_realized_usdc":             round6(dailyRealized),
		"net_pnl_daily_total_usdc":                round6(dailyTotal),
		"net_pnl_daily_usdc":                      round6(dailyNet),
		"last_updated_at_utc":                     now.UTC().Format(time.RFC3339),
	}
}
