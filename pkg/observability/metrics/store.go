package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Store operation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var (
	// storeOperationDuration tracks adapter operation latency in seconds.
	// Labels: adapter, operation, collection, outcome
	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Store adapter operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"adapter", "operation", "collection", "outcome"},
	)

	// storeOperationsTotal counts adapter operations.
	// Labels: adapter, operation, collection, outcome
	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operations_total",
			Help: "Total number of store adapter operations",
		},
		[]string{"adapter", "operation", "collection", "outcome"},
	)
)

// RecordStoreOperation records one adapter operation.
// A nil err is recorded as OutcomeSuccess.
func RecordStoreOperation(adapter, operation, collection string, err error, duration time.Duration) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	storeOperationDuration.WithLabelValues(adapter, operation, collection, outcome).Observe(duration.Seconds())
	storeOperationsTotal.WithLabelValues(adapter, operation, collection, outcome).Inc()
}
