package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for WordLens
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// OCR metrics
	ocrAttemptsTotal   *prometheus.CounterVec
	ocrAttemptDuration *prometheus.HistogramVec
	ocrFallbacksTotal  prometheus.Counter
	ocrRequestsTotal   *prometheus.CounterVec

	// Progress broadcast metrics
	progressObservers      prometheus.Gauge
	progressMessagesTotal  *prometheus.CounterVec
	progressDeliveryErrors *prometheus.CounterVec

	// System metrics
	systemUptime prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wordlens_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wordlens_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .025, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path", "status"},
		),
		httpRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "wordlens_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		ocrAttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wordlens_ocr_attempts_total",
				Help: "Total number of engine invocation attempts by outcome",
			},
			[]string{"engine", "outcome"},
		),
		ocrAttemptDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wordlens_ocr_attempt_duration_seconds",
				Help:    "Engine attempt latency in seconds",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"engine"},
		),
		ocrFallbacksTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "wordlens_ocr_fallbacks_total",
				Help: "Total number of cascades that fell back to a secondary engine",
			},
		),
		ocrRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wordlens_ocr_requests_total",
				Help: "Total number of OCR submissions by final result",
			},
			[]string{"engine", "result"},
		),

		progressObservers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "wordlens_progress_observers",
				Help: "Current number of connected progress observers",
			},
		),
		progressMessagesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wordlens_progress_messages_total",
				Help: "Total number of progress events delivered",
			},
			[]string{"channel_kind"},
		),
		progressDeliveryErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wordlens_progress_delivery_errors_total",
				Help: "Total number of failed progress deliveries",
			},
			[]string{"reason"},
		),

		systemUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "wordlens_system_uptime_seconds",
				Help: "System uptime in seconds",
			},
		),
	}
}

// MetricsMiddleware returns a Fiber middleware that collects HTTP metrics
func (m *Metrics) MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		path := normalizePath(c.Path())
		method := c.Method()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := statusClass(c.Response().StatusCode())

		m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)

		return err
	}
}

// RecordAttempt records one classified engine attempt.
func (m *Metrics) RecordAttempt(engine, outcome string, duration time.Duration) {
	m.ocrAttemptsTotal.WithLabelValues(engine, outcome).Inc()
	m.ocrAttemptDuration.WithLabelValues(engine).Observe(duration.Seconds())
}

// RecordFallback records a cascade that moved past its first engine.
func (m *Metrics) RecordFallback() {
	m.ocrFallbacksTotal.Inc()
}

// RecordRequest records the final result of one submission.
func (m *Metrics) RecordRequest(engine string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.ocrRequestsTotal.WithLabelValues(engine, result).Inc()
}

// ProgressDelivered implements the broadcaster's delivery observer.
func (m *Metrics) ProgressDelivered(channel string) {
	kind := "job"
	if channel == "progress:*" {
		kind = "firehose"
	}
	m.progressMessagesTotal.WithLabelValues(kind).Inc()
}

// ProgressDeliveryFailed implements the broadcaster's delivery observer.
func (m *Metrics) ProgressDeliveryFailed(reason string) {
	m.progressDeliveryErrors.WithLabelValues(reason).Inc()
}

// ProgressObservers implements the broadcaster's delivery observer.
func (m *Metrics) ProgressObservers(count int) {
	m.progressObservers.Set(float64(count))
}

// UpdateUptime updates the system uptime metric
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.systemUptime.Set(time.Since(startTime).Seconds())
}

// Handler returns a Fiber handler that exposes Prometheus metrics
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

// normalizePath normalizes API paths for metrics to keep cardinality bounded.
func normalizePath(path string) string {
	if len(path) > 50 {
		return "long_path"
	}
	return path
}

// statusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx)
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
