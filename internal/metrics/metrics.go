// Package metrics exposes Prometheus counters/gauges for the trading
// pipeline on a dedicated scrape endpoint. This is deliberately narrow:
// no query language, no dashboard, no aggregation views — just counters
// a real Prometheus server can scrape. The excluded dashboard HTTP
// surface is a different, much larger concern and stays dropped.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SignalsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_signals_emitted_total",
		Help: "Signals emitted by the ensemble engine, by asset and direction.",
	}, []string{"asset", "direction"})

	ConvictionScore = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trader_conviction_score",
		Help:    "Conviction score distribution (0-100).",
		Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 85, 90, 95, 100},
	}, []string{"asset"})

	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_orders_placed_total",
		Help: "Orders placed, by mode (live/paper) and side.",
	}, []string{"mode", "side"})

	RiskBlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_risk_blocks_total",
		Help: "Trades blocked by the risk gate, by reason.",
	}, []string{"reason"})

	KillshotFires = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_killshot_fires_total",
		Help: "Killshot engine fires, by asset and direction.",
	}, []string{"asset", "direction"})

	TradesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_trades_resolved_total",
		Help: "Resolved trades, by outcome (win/loss/unknown).",
	}, []string{"outcome"})

	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trader_open_positions",
		Help: "Current number of open positions.",
	})
)

// Serve starts the Prometheus scrape endpoint and blocks until ctx is
// cancelled or the server errors.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
