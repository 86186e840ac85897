package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Session metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_created_total",
			Help: "Total number of sessions created",
		},
	)

	SessionsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_evicted_total",
			Help: "Total number of sessions evicted by the per-user cap",
		},
	)

	SessionsCleaned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_cleaned_total",
			Help: "Total number of expired sessions removed by cleanup sweeps",
		},
	)

	// Rate limit metrics
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_decisions_total",
			Help: "Total number of rate limit decisions",
		},
		[]string{"category", "outcome"},
	)

	RateLimitFailOpen = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_fail_open_total",
			Help: "Total number of requests admitted because the store was unreachable",
		},
	)

	// Job metrics
	JobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobs_active",
			Help: "Number of jobs currently being processed",
		},
	)

	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Total number of jobs that reached a terminal status",
		},
		[]string{"type", "status"},
	)

	JobsRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_retried_total",
			Help: "Total number of job retry requeues",
		},
		[]string{"type"},
	)

	// Notification metrics
	NotificationsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Total number of notifications appended to user logs",
		},
	)

	PushConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "push_connections_active",
			Help: "Number of active notification push connections",
		},
	)

	PushMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "push_messages_sent_total",
			Help: "Total number of messages pushed to connected clients",
		},
	)
)
