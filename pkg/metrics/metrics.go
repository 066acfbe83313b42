// Package metrics provides Prometheus metrics for the Fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal tracks finished jobs by outcome
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "jobs",
			Name:      "total",
			Help:      "Total number of finished integration jobs by status",
		},
		[]string{"provider", "type", "status"},
	)

	// JobDuration tracks job execution duration in seconds
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Duration of integration jobs in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "type"},
	)

	// JobsInFlight tracks jobs currently executing in this process
	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fern",
			Subsystem: "jobs",
			Name:      "in_flight",
			Help:      "Number of integration jobs currently executing",
		},
	)

	// JobConflicts tracks runs rejected because another job of the integration was running
	JobConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "jobs",
			Name:      "conflicts_total",
			Help:      "Total number of job runs rejected by the single-running guard",
		},
		[]string{"provider"},
	)

	// HTTPRequestsTotal tracks outbound provider HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "http_client",
			Name:      "requests_total",
			Help:      "Total number of outbound HTTP requests",
		},
		[]string{"provider", "status_code"},
	)

	// HTTPRequestDuration tracks outbound provider HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "http_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider"},
	)

	// AuthTokenRefreshes tracks OAuth access token refreshes
	AuthTokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "auth",
			Name:      "token_refreshes_total",
			Help:      "Total number of OAuth token refresh operations",
		},
		[]string{"provider", "status"},
	)

	// AuthTokenCacheHits tracks access tokens served from the cache
	AuthTokenCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "auth",
			Name:      "token_cache_hits_total",
			Help:      "Total number of access tokens served from the cache",
		},
		[]string{"provider"},
	)

	// KafkaMessagesPublished tracks job events published to Kafka
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// AuditWriteFailures tracks audit entries that could not be written
	AuditWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "audit",
			Name:      "write_failures_total",
			Help:      "Total number of audit entries that failed to write",
		},
		[]string{"action"},
	)
)

// RecordJob records a finished job
func RecordJob(provider, jobType, status string, durationSeconds float64) {
	JobsTotal.WithLabelValues(provider, jobType, status).Inc()
	JobDuration.WithLabelValues(provider, jobType).Observe(durationSeconds)
}

// RecordJobConflict records a rejected run
func RecordJobConflict(provider string) {
	JobConflicts.WithLabelValues(provider).Inc()
}

// RecordHTTPRequest records an outbound HTTP request metric
func RecordHTTPRequest(provider, statusCode string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(provider, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordTokenRefresh records an OAuth refresh
func RecordTokenRefresh(provider, status string) {
	AuthTokenRefreshes.WithLabelValues(provider, status).Inc()
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
}

// RecordAuditFailure records an audit entry that was dropped
func RecordAuditFailure(action string) {
	AuditWriteFailures.WithLabelValues(action).Inc()
}
