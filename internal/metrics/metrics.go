// Package metrics registers the Prometheus metrics of the settlement
// engine. Metrics are registered at init via promauto and exposed on
// /metrics by the router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_requests_created_total",
		Help: "Settlement requests created, by ticker and direction",
	}, []string{"ticker", "direction"})

	RequestsFulfilled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_requests_fulfilled_total",
		Help: "Settlement requests fulfilled, by ticker and direction",
	}, []string{"ticker", "direction"})

	RequestsRefunded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_requests_refunded_total",
		Help: "Settlement requests refunded, by ticker and reason",
	}, []string{"ticker", "reason"})

	RequestsExpired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_requests_expired_total",
		Help: "Settlement requests expired by cleanup, by ticker",
	}, []string{"ticker"})

	EscrowHeld = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "settlement_escrow_held",
		Help: "Escrowed units currently held, by ticker and currency",
	}, []string{"ticker", "currency"})

	OracleDispatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_oracle_dispatch_failures_total",
		Help: "Failed dispatches to the execution oracle, by ticker",
	}, []string{"ticker"})

	OracleCallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_oracle_callbacks_total",
		Help: "Oracle callbacks received, by outcome",
	}, []string{"outcome"})

	CleanupSweeps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_cleanup_sweeps_total",
		Help: "Background cleanup sweeps executed",
	})
)
