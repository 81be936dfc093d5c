// Package metrics provides Prometheus metrics for the trading loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "watson"

// Metrics holds all Prometheus metrics for the application.
// Each instance owns its registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	// Strategy metrics
	StrategyRuns        *prometheus.CounterVec
	StrategyRunDuration *prometheus.HistogramVec
	OpenTrades          *prometheus.GaugeVec

	// Order metrics
	OrdersSubmitted *prometheus.CounterVec
	OrderFailures   *prometheus.CounterVec

	// Screener metrics
	FilterDuration *prometheus.HistogramVec
	PassingSymbols *prometheus.GaugeVec
	FilterFailures *prometheus.CounterVec

	// Account
	Equity prometheus.Gauge
}

// New creates a Metrics instance with every collector registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		StrategyRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "runs_total",
			Help:      "Strategy runs by outcome",
		}, []string{"strategy", "result"}),
		StrategyRunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "run_duration_seconds",
			Help:      "Wall time of one strategy run",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"strategy"}),
		OpenTrades: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "open_trades",
			Help:      "Open trades after the last run",
		}, []string{"strategy"}),

		OrdersSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "orders_submitted_total",
			Help:      "Orders accepted by the broker",
		}, []string{"side", "type"}),
		OrderFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "order_failures_total",
			Help:      "Broker operations that returned an error",
		}, []string{"operation"}),

		FilterDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "screener",
			Name:      "filter_duration_seconds",
			Help:      "Time spent computing one filter column",
			Buckets:   prometheus.DefBuckets,
		}, []string{"filter"}),
		PassingSymbols: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "screener",
			Name:      "passing_symbols",
			Help:      "Symbols that passed every applied filter",
		}, []string{"strategy"}),
		FilterFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "screener",
			Name:      "filter_failures_total",
			Help:      "Filters that failed to compute",
		}, []string{"filter"}),

		Equity: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "account",
			Name:      "equity",
			Help:      "Account equity at the last refresh",
		}),
	}
}

// Handler returns the HTTP handler for /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRun records one strategy run
func (m *Metrics) ObserveRun(strategy string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.StrategyRuns.WithLabelValues(strategy, result).Inc()
	m.StrategyRunDuration.WithLabelValues(strategy).Observe(time.Since(start).Seconds())
}

// ObserveFilter records the time spent computing a filter column
func (m *Metrics) ObserveFilter(name string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.FilterDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		m.FilterFailures.WithLabelValues(name).Inc()
	}
}

// SetEquity records the latest account equity
func (m *Metrics) SetEquity(v float64) {
	if m == nil {
		return
	}
	m.Equity.Set(v)
}

// SetOpenTrades records open trades for a strategy
func (m *Metrics) SetOpenTrades(strategy string, n int) {
	if m == nil {
		return
	}
	m.OpenTrades.WithLabelValues(strategy).Set(float64(n))
}

// SetPassing records how many symbols passed the strategy's screen
func (m *Metrics) SetPassing(strategy string, n int) {
	if m == nil {
		return
	}
	m.PassingSymbols.WithLabelValues(strategy).Set(float64(n))
}

// ObserveOrder counts a submitted order or a failed broker operation
func (m *Metrics) ObserveOrder(side, orderType, operation string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.OrderFailures.WithLabelValues(operation).Inc()
		return
	}
	m.OrdersSubmitted.WithLabelValues(side, orderType).Inc()
}
