package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/zkoperator/db"
	"github.com/ethpandaops/zkoperator/metrics"
	"github.com/ethpandaops/zkoperator/optypes"
)

// registerStoreMetrics exports block and aggregated operation progress read from the database on every scrape.
func registerStoreMetrics(logger logrus.FieldLogger) {
	lastSealedBlock := promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zkoperator_last_sealed_block",
		Help: "Highest sealed rollup block",
	})
	lastExecutedBlock := promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zkoperator_last_executed_block",
		Help: "Highest rollup block executed on the base chain",
	})
	aggregatedOps := promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "zkoperator_aggregated_operations",
		Help: "Number of stored aggregated operations by action type",
	}, []string{"action"})

	metrics.AddPreCollectFn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if sealed, err := db.GetLastSealedBlockNumber(ctx); err == nil {
			lastSealedBlock.Set(float64(sealed))
		} else {
			logger.WithError(err).Debugf("failed loading last sealed block")
		}

		if executed, err := db.GetLastExecutedBlockNumber(ctx); err == nil {
			lastExecutedBlock.Set(float64(executed))
		} else {
			logger.WithError(err).Debugf("failed loading last executed block")
		}

		counts, err := db.GetAggregateOperationCounts(ctx)
		if err != nil {
			logger.WithError(err).Debugf("failed loading aggregated operation counts")
			return
		}
		for _, actionType := range optypes.AggregatedActionTypes {
			aggregatedOps.WithLabelValues(actionType.String()).Set(float64(counts[actionType.String()]))
		}
	})
}
