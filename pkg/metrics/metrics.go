// Package metrics 定义服务暴露给 Prometheus 的指标。
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 汇总所有指标。所有 Record* 方法对 nil 接收者安全，未启用指标的组件可以直接传 nil。
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	CompletionAttemptsTotal *prometheus.CounterVec
	CompletionDuration      *prometheus.HistogramVec
	CompletionRetriesTotal  prometheus.Counter

	RateLimitRejectionsTotal *prometheus.CounterVec
	EvaluationsTotal         *prometheus.CounterVec
	BackgroundTasksTotal     *prometheus.CounterVec
	ActiveStreams            prometheus.Gauge
}

// New 在给定的 Registerer 上创建并注册全部指标；测试里传入 prometheus.NewRegistry() 即可隔离。
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fvc_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fvc_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		CompletionAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fvc_completion_attempts_total",
				Help: "Upstream chat-completion attempts by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		CompletionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fvc_completion_duration_seconds",
				Help:    "Time until upstream response headers (stream) or body (complete)",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"mode"},
		),
		CompletionRetriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fvc_completion_retries_total",
				Help: "Upstream chat-completion retries",
			},
		),
		RateLimitRejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fvc_rate_limit_rejections_total",
				Help: "Chat turns rejected by the rate limiter, by bucket",
			},
			[]string{"bucket"},
		),
		EvaluationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fvc_evaluations_total",
				Help: "Evaluator runs by trigger and outcome",
			},
			[]string{"trigger", "outcome"},
		),
		BackgroundTasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fvc_background_tasks_total",
				Help: "Background tasks by name and outcome",
			},
			[]string{"task", "outcome"},
		),
		ActiveStreams: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fvc_active_streams",
				Help: "SSE streams currently relaying to clients",
			},
		),
	}
}

// RecordHTTPRequest 记录一次 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordCompletionAttempt 记录一次上游调用尝试
func (m *Metrics) RecordCompletionAttempt(mode, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CompletionAttemptsTotal.WithLabelValues(mode, outcome).Inc()
	m.CompletionDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (m *Metrics) RecordCompletionRetry() {
	if m == nil {
		return
	}
	m.CompletionRetriesTotal.Inc()
}

func (m *Metrics) RecordRateLimitRejection(bucket string) {
	if m == nil {
		return
	}
	m.RateLimitRejectionsTotal.WithLabelValues(bucket).Inc()
}

func (m *Metrics) RecordEvaluation(trigger, outcome string) {
	if m == nil {
		return
	}
	m.EvaluationsTotal.WithLabelValues(trigger, outcome).Inc()
}

func (m *Metrics) RecordBackgroundTask(task, outcome string) {
	if m == nil {
		return
	}
	m.BackgroundTasksTotal.WithLabelValues(task, outcome).Inc()
}

// StreamStarted 返回一个在流结束时调用的函数
func (m *Metrics) StreamStarted() func() {
	if m == nil {
		return func() {}
	}
	m.ActiveStreams.Inc()
	return m.ActiveStreams.Dec
}
