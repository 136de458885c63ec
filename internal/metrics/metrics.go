// Package metrics exposes Prometheus collectors for operator visibility:
// tick counts per analysis level, analysis failures, applied/rejected
// orders, the daily token budget gauge and the portfolio value gauge.
// Served at /metrics by the HTTP handler started in main.go.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the collectors updated by the scheduler during operation.
type Metrics struct {
	Ticks            *prometheus.CounterVec
	AnalysisFailures prometheus.Counter
	Orders           *prometheus.CounterVec
	TokensUsedToday  prometheus.Gauge
	PortfolioValue   prometheus.Gauge
}

// New creates and registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trader_ticks_total",
				Help: "Scheduler ticks by selected analysis level",
			},
			[]string{"level"},
		),
		AnalysisFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trader_analysis_failures_total",
				Help: "Analysis cycles that returned an error",
			},
		),
		Orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trader_orders_total",
				Help: "Trade instructions by side and outcome",
			},
			[]string{"side", "status"},
		),
		TokensUsedToday: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "trader_tokens_used_today",
				Help: "Estimated analysis tokens spent in the current budget window",
			},
		),
		PortfolioValue: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "trader_portfolio_value_usd",
				Help: "Total portfolio value (cash plus positions)",
			},
		),
	}
	reg.MustRegister(m.Ticks, m.AnalysisFailures, m.Orders, m.TokensUsedToday, m.PortfolioValue)
	return m
}
