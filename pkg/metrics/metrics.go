// Package metrics provides Prometheus metrics for the Fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchRunsTotal tracks batch comparator runs by mode and status
	BatchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "batch",
			Name:      "runs_total",
			Help:      "Total number of batch comparator runs by mode and status",
		},
		[]string{"mode", "status"},
	)

	// BatchRunDuration tracks batch run duration in seconds
	BatchRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "batch",
			Name:      "run_duration_seconds",
			Help:      "Duration of batch comparator runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600},
		},
		[]string{"mode"},
	)

	// BatchPairsTotal tracks pairs handled by the batch comparator by outcome
	BatchPairsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "batch",
			Name:      "pairs_total",
			Help:      "Total number of candidate pairs handled by outcome",
		},
		[]string{"outcome"},
	)

	// ChecksTotal tracks incremental checks by status
	ChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "checker",
			Name:      "checks_total",
			Help:      "Total number of duplicate checks by status",
		},
		[]string{"status"},
	)

	// CheckDuration tracks incremental check duration in seconds
	CheckDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "checker",
			Name:      "check_duration_seconds",
			Help:      "Duration of duplicate checks in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// ResolutionsTotal tracks merge and ignore decisions by status
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Total number of merge and ignore requests by status",
		},
		[]string{"kind", "status"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// RedisOperationDuration tracks Redis operation duration
	RedisOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "redis",
			Name:      "operation_duration_seconds",
			Help:      "Duration of Redis operations in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
		[]string{"operation"},
	)
)

// RecordBatchRun records a finished batch comparator run
func RecordBatchRun(mode, status string, durationSeconds float64) {
	BatchRunsTotal.WithLabelValues(mode, status).Inc()
	BatchRunDuration.WithLabelValues(mode).Observe(durationSeconds)
}

// RecordBatchPairs adds n pairs with the given outcome
func RecordBatchPairs(outcome string, n int) {
	if n <= 0 {
		return
	}
	BatchPairsTotal.WithLabelValues(outcome).Add(float64(n))
}

// RecordCheck records a duplicate check
func RecordCheck(status string, durationSeconds float64) {
	ChecksTotal.WithLabelValues(status).Inc()
	CheckDuration.Observe(durationSeconds)
}

// RecordResolution records a merge or ignore request
func RecordResolution(kind, status string) {
	ResolutionsTotal.WithLabelValues(kind, status).Inc()
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}

// RecordRedisOperation records a Redis operation
func RecordRedisOperation(operation string, durationSeconds float64) {
	RedisOperationDuration.WithLabelValues(operation).Observe(durationSeconds)
}
