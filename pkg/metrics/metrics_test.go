package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordersUpdateCollectors(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordRateLimitRejection("user_burst")
	m.RecordRateLimitRejection("user_burst")
	m.RecordCompletionRetry()
	m.RecordCompletionAttempt("stream", "ok", 20*time.Millisecond)
	m.RecordEvaluation("auto", "fallback")
	done := m.StreamStarted()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RateLimitRejectionsTotal.WithLabelValues("user_burst")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompletionRetriesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompletionAttemptsTotal.WithLabelValues("stream", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("auto", "fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveStreams))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveStreams))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordHTTPRequest("GET", "/healthz", 200, time.Millisecond)
		m.RecordRateLimitRejection("global_hourly")
		m.RecordBackgroundTask("chat-turn", "ok")
		m.StreamStarted()()
	})
}
