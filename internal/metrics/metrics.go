// Package metrics exposes the bot's Prometheus instrumentation:
//   - sfp_bot_ticks_total{result}          – processed ticks (ok|error|skipped)
//   - sfp_bot_orders_total{side}           – orders submitted
//   - sfp_bot_exits_total{reason}          – position closes split by reason
//   - sfp_bot_signal_evaluations_total{eligible} – signal engine runs
//   - sfp_bot_account_equity               – latest total balance snapshot
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sfp_bot_ticks_total",
			Help: "Control loop ticks by outcome",
		},
		[]string{"result"},
	)

	orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sfp_bot_orders_total",
			Help: "Orders submitted to the exchange",
		},
		[]string{"side"},
	)

	exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sfp_bot_exits_total",
			Help: "Position closes split by reason",
		},
		[]string{"reason"},
	)

	signalEvals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sfp_bot_signal_evaluations_total",
			Help: "Signal engine evaluations",
		},
		[]string{"eligible"},
	)

	equity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sfp_bot_account_equity",
			Help: "Latest total account balance snapshot",
		},
	)
)

func init() {
	prometheus.MustRegister(ticks, orders, exits, signalEvals, equity)
}

func IncTick(result string) { ticks.WithLabelValues(result).Inc() }
func IncOrder(side string)  { orders.WithLabelValues(side).Inc() }
func IncExit(reason string) { exits.WithLabelValues(reason).Inc() }
func SetEquity(v float64)   { equity.Set(v) }

func IncSignal(eligible bool) {
	label := "false"
	if eligible {
		label = "true"
	}
	signalEvals.WithLabelValues(label).Inc()
}
