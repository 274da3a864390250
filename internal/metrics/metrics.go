// Package metrics exposes Prometheus instrumentation for the simulator.
//
// Counters and gauges the pipeline updates during operation:
//   - arbsim_books_total{exchange}            – normalized books accepted per venue
//   - arbsim_feed_reconnects_total{exchange}  – reconnect cycles per feed
//   - arbsim_opportunities_total{status}      – evaluations by outcome
//   - arbsim_trades_total                     – simulated executions
//   - arbsim_persist_dropped_total            – records dropped on queue overflow
//   - arbsim_persist_queue_depth              – current persist queue length
//   - arbsim_balance_usd                      – simulated account balance
//   - arbsim_total_pnl_usd                    – cumulative simulated PnL
//   - arbsim_dashboard_clients                – connected dashboard WebSocket clients
//
// All collectors are registered in init() and served by the HTTP handler
// mounted at /metrics (Prometheus text exposition format).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	booksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbsim_books_total",
			Help: "Normalized order books accepted by the engine",
		},
		[]string{"exchange"},
	)

	feedReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbsim_feed_reconnects_total",
			Help: "Feed reconnect cycles",
		},
		[]string{"exchange"},
	)

	opportunitiesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbsim_opportunities_total",
			Help: "Pair evaluations by outcome status",
		},
		[]string{"status"},
	)

	tradesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "arbsim_trades_total",
			Help: "Simulated executions",
		},
	)

	persistDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "arbsim_persist_dropped_total",
			Help: "Records dropped because the persist queue was full",
		},
	)

	persistQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "arbsim_persist_queue_depth",
			Help: "Current persist queue length",
		},
	)

	balanceUSD = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "arbsim_balance_usd",
			Help: "Simulated account balance in USD",
		},
	)

	totalPnLUSD = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "arbsim_total_pnl_usd",
			Help: "Cumulative simulated PnL in USD",
		},
	)

	dashboardClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "arbsim_dashboard_clients",
			Help: "Connected dashboard WebSocket clients",
		},
	)
)

func init() {
	prometheus.MustRegister(booksTotal, feedReconnects)
	prometheus.MustRegister(opportunitiesTotal, tradesTotal)
	prometheus.MustRegister(persistDropped, persistQueueDepth)
	prometheus.MustRegister(balanceUSD, totalPnLUSD, dashboardClients)
}

// Handler serves the registry in Prometheus text format.
func Handler() http.Handler { return promhttp.Handler() }

func BookReceived(exchange string) { booksTotal.WithLabelValues(exchange).Inc() }

func FeedReconnect(exchange string) { feedReconnects.WithLabelValues(exchange).Inc() }

func ObserveOpportunity(status string) { opportunitiesTotal.WithLabelValues(status).Inc() }

func ObserveTrade() { tradesTotal.Inc() }

func PersistDropped() { persistDropped.Inc() }

func SetPersistQueueDepth(n int) { persistQueueDepth.Set(float64(n)) }

func SetBalanceUSD(v float64) { balanceUSD.Set(v) }

func SetTotalPnLUSD(v float64) { totalPnLUSD.Set(v) }

func ClientConnected() { dashboardClients.Inc() }

func ClientDisconnected() { dashboardClients.Dec() }
