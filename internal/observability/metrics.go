package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	decisionsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classification_service",
		Subsystem: "engine",
		Name:      "decisions_total",
		Help:      "Number of classification decisions recorded, labeled by source tier and label.",
	}, []string{"source", "label"})

	invalidRecordsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "classification_service",
		Subsystem: "engine",
		Name:      "invalid_records_total",
		Help:      "Number of records that failed validation and were skipped.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "classification_service",
		Subsystem: "engine",
		Name:      "batch_duration_seconds",
		Help:      "Time spent classifying and persisting one batch.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	activationsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "classification_service",
		Subsystem: "registry",
		Name:      "model_activations_total",
		Help:      "Number of successful model activations.",
	})

	lastDecisionGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "classification_service",
		Subsystem: "engine",
		Name:      "last_decision_timestamp_seconds",
		Help:      "Unix timestamp of the most recent classification decision persisted.",
	})

	briefCacheCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classification_service",
		Subsystem: "brief",
		Name:      "cache_requests_total",
		Help:      "Brief cache lookups, labeled by outcome (hit, miss, error).",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(decisionsCounter, invalidRecordsCounter, batchDuration, activationsCounter, lastDecisionGauge, briefCacheCounter)
}

// RecordDecision counts one persisted decision by tier and label.
func RecordDecision(source, label string) {
	decisionsCounter.WithLabelValues(source, label).Inc()
}

// RecordInvalidRecord counts one record skipped by validation.
func RecordInvalidRecord() {
	invalidRecordsCounter.Inc()
}

// ObserveBatch records the duration of one classification batch.
func ObserveBatch(elapsed time.Duration) {
	batchDuration.Observe(elapsed.Seconds())
}

// RecordModelActivated counts one successful activation.
func RecordModelActivated() {
	activationsCounter.Inc()
}

// RecordDecisionPersisted updates the decision watermark gauge.
func RecordDecisionPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastDecisionGauge.Set(float64(ts.Unix()))
}

// RecordBriefCache counts one cache lookup outcome.
func RecordBriefCache(outcome string) {
	briefCacheCounter.WithLabelValues(outcome).Inc()
}
