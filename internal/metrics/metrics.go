package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "upi_diagnosis"

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// DiagnosisOutcomes counts diagnoses by path: llm, parse_fallback, call_fallback.
	DiagnosisOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnoses_total",
			Help:      "Total diagnoses produced, by outcome.",
		},
		[]string{"outcome"},
	)

	LLMRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of chat completion requests.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// BulkInsertRecords counts records by result: inserted, skipped, failed.
	BulkInsertRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_insert_records_total",
			Help:      "Records processed by bulk inserts, by result.",
		},
		[]string{"result"},
	)

	ReplayInserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replay_inserts_total",
			Help:      "Records inserted by dataset replay, by result.",
		},
		[]string{"result"},
	)

	TranscriptionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriptions_total",
			Help:      "Audio transcriptions, by outcome.",
		},
		[]string{"outcome"},
	)

	AggregationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregation_failures_total",
			Help:      "Analytics queries that degraded to an empty result.",
		},
		[]string{"plan"},
	)
)

// ObserveBulk records the counts of one bulk insert.
func ObserveBulk(inserted, skipped, failed int) {
	BulkInsertRecords.WithLabelValues("inserted").Add(float64(inserted))
	BulkInsertRecords.WithLabelValues("skipped").Add(float64(skipped))
	BulkInsertRecords.WithLabelValues("failed").Add(float64(failed))
}
