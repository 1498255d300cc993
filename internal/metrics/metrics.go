// Package metrics exposes cycle counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cycles_total", Help: "Cycles run, by outcome"},
		[]string{"outcome"},
	)
	CyclesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cycles_skipped_total", Help: "Triggers dropped because a cycle was already running"},
	)
	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cycle_duration_seconds",
			Help:    "Wall time of one cycle",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
	)
	CarriedBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "carried_settlement_usdc", Help: "Settlement balance carried to the next cycle"},
	)
	ConvertedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "converted_usdc_total", Help: "USDC received from conversions"},
	)
	RoutedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "routed_usdc_total", Help: "USDC routed to the venue deposit address"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted"},
		[]string{"symbol", "side"},
	)
)

func init() {
	prometheus.MustRegister(CyclesTotal, CyclesSkipped, CycleDuration, CarriedBalance, ConvertedTotal, RoutedTotal, OrdersTotal)
}

// Serve exposes /metrics on addr in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
