package committer

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type committerMetrics struct {
	operationsCreated *prometheus.CounterVec
	lastAffectedBlock *prometheus.GaugeVec
	passErrors        prometheus.Counter
	passDuration      prometheus.Histogram
}

var (
	metricsOnce     sync.Once
	metricsInstance *committerMetrics
)

func getMetrics() *committerMetrics {
	metricsOnce.Do(func() {
		metricsInstance = &committerMetrics{
			operationsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "zkoperator_committer_operations_created_total",
				Help: "Number of aggregated operations created by action type",
			}, []string{"action"}),
			lastAffectedBlock: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "zkoperator_committer_last_affected_block",
				Help: "Last block covered by an aggregated operation by action type",
			}, []string{"action"}),
			passErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "zkoperator_committer_pass_errors_total",
				Help: "Number of aborted aggregation passes",
			}),
			passDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "zkoperator_committer_pass_duration_seconds",
				Help:    "Duration of aggregation passes",
				Buckets: prometheus.DefBuckets,
			}),
		}
	})
	return metricsInstance
}
