package ethsender

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type senderMetrics struct {
	txsSent            *prometheus.CounterVec
	txsEscalated       *prometheus.CounterVec
	escalationsBlocked *prometheus.CounterVec
	opsConfirmed       *prometheus.CounterVec
	opsReverted        *prometheus.CounterVec
	ongoingOps         prometheus.Gauge
	queuedOps          prometheus.Gauge
	gasPriceLimit      prometheus.Gauge
	cycleErrors        prometheus.Counter
	broadcastErrors    prometheus.Counter
}

var (
	metricsOnce     sync.Once
	metricsInstance *senderMetrics
)

func getMetrics() *senderMetrics {
	metricsOnce.Do(func() {
		metricsInstance = &senderMetrics{
			txsSent: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "zkoperator_ethsender_txs_sent_total",
				Help: "Number of signed transactions handed to the base chain by action type",
			}, []string{"action"}),
			txsEscalated: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "zkoperator_ethsender_txs_escalated_total",
				Help: "Number of replacement transactions with a raised gas price by action type",
			}, []string{"action"}),
			escalationsBlocked: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "zkoperator_ethsender_escalations_blocked_total",
				Help: "Number of stuck operations not replaced because the gas price limit was reached",
			}, []string{"action"}),
			opsConfirmed: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "zkoperator_ethsender_operations_confirmed_total",
				Help: "Number of confirmed eth operations by action type",
			}, []string{"action"}),
			opsReverted: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "zkoperator_ethsender_operations_reverted_total",
				Help: "Number of reverted eth operations by action type",
			}, []string{"action"}),
			ongoingOps: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "zkoperator_ethsender_ongoing_operations",
				Help: "Number of unconfirmed eth operations",
			}),
			queuedOps: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "zkoperator_ethsender_queued_operations",
				Help: "Number of aggregated operations waiting for an eth operation",
			}),
			gasPriceLimit: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "zkoperator_ethsender_gas_price_limit_gwei",
				Help: "Current gas price limit in gwei",
			}),
			cycleErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "zkoperator_ethsender_cycle_errors_total",
				Help: "Number of aborted sender cycles",
			}),
			broadcastErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "zkoperator_ethsender_broadcast_errors_total",
				Help: "Number of failed transaction broadcasts",
			}),
		}
	})
	return metricsInstance
}
