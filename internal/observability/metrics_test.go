package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsRegistered(t *testing.T) {
	assert.NotNil(t, HTTPRequestDuration)
	assert.NotNil(t, HTTPRequestsTotal)
	assert.NotNil(t, SessionsCreated)
	assert.NotNil(t, SessionsEvicted)
	assert.NotNil(t, SessionsCleaned)
	assert.NotNil(t, RateLimitDecisions)
	assert.NotNil(t, RateLimitFailOpen)
	assert.NotNil(t, JobsActive)
	assert.NotNil(t, JobsProcessed)
	assert.NotNil(t, JobsRetried)
	assert.NotNil(t, NotificationsPublished)
	assert.NotNil(t, PushConnectionsActive)
	assert.NotNil(t, PushMessagesSent)
}

func TestMetricLabels(t *testing.T) {
	// WithLabelValues panics on cardinality mismatch; exercising the
	// label sets used by callers guards against drift.
	assert.NotPanics(t, func() {
		HTTPRequestDuration.WithLabelValues("GET", "/api/notifications", "200").Observe(0.01)
		HTTPRequestsTotal.WithLabelValues("POST", "/api/jobs", "202").Inc()
		RateLimitDecisions.WithLabelValues("upload", "denied").Inc()
		JobsProcessed.WithLabelValues("notification", "completed").Inc()
		JobsRetried.WithLabelValues("document_processing").Inc()
	})
}
