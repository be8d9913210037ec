// Package monitoring exposes Prometheus metrics for the risk gate.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_decisions_total",
			Help: "Gate decisions by symbol, order kind and outcome",
		},
		[]string{"symbol", "kind", "result"},
	)

	rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_rejections_total",
			Help: "Gate rejections by reason code",
		},
		[]string{"reason"},
	)

	breakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gate_breaker_tripped",
			Help: "1 when the circuit breaker is tripped, 0 when armed",
		},
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gate_open_positions",
			Help: "Number of open positions",
		},
	)

	dailyPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gate_daily_pnl",
			Help: "Realized plus unrealized P&L for the current trading day",
		},
	)

	currentPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gate_current_price",
			Help: "Last observed price per symbol",
		},
		[]string{"symbol"},
	)

	stopExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_stop_exits_total",
			Help: "Exit orders originated by the trailing-stop engine",
		},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(decisionsTotal)
	prometheus.MustRegister(rejectionsTotal)
	prometheus.MustRegister(breakerState)
	prometheus.MustRegister(openPositions)
	prometheus.MustRegister(dailyPnL)
	prometheus.MustRegister(currentPrice)
	prometheus.MustRegister(stopExitsTotal)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordDecision records a gate decision.
func RecordDecision(symbol, kind string, accepted bool, reason string) {
	result := "accepted"
	if !accepted {
		result = "rejected"
		rejectionsTotal.WithLabelValues(reason).Inc()
	}
	decisionsTotal.WithLabelValues(symbol, kind, result).Inc()
}

// SetBreakerTripped updates the breaker gauge.
func SetBreakerTripped(tripped bool) {
	if tripped {
		breakerState.Set(1)
	} else {
		breakerState.Set(0)
	}
}

// SetOpenPositions updates the open position gauge.
func SetOpenPositions(count int) {
	openPositions.Set(float64(count))
}

// SetDailyPnL updates the daily P&L gauge.
func SetDailyPnL(pnl float64) {
	dailyPnL.Set(pnl)
}

// UpdatePrice updates the last observed price for a symbol.
func UpdatePrice(symbol string, price float64) {
	currentPrice.WithLabelValues(symbol).Set(price)
}

// RecordStopExit records a trailing-stop exit.
func RecordStopExit(symbol string) {
	stopExitsTotal.WithLabelValues(symbol).Inc()
}
