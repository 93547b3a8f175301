package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "sms_dispatch"

// Metrics stores Prometheus collectors used by the API and the dispatch service.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	smsSentTotal          *prometheus.CounterVec
	smsFailedTotal        *prometheus.CounterVec
	smsSkippedTotal       *prometheus.CounterVec
	gatewaySendDuration   *prometheus.HistogramVec
	gatewayInflight       *prometheus.GaugeVec
	failuresResolvedTotal prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		smsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "sms_sent_total",
				Help:      "Total number of messages accepted by the gateway grouped by batch kind.",
			},
			[]string{"kind"},
		),
		smsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "sms_failed_total",
				Help:      "Total number of messages that failed grouped by batch kind and reason.",
			},
			[]string{"kind", "reason"},
		),
		smsSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "sms_skipped_total",
				Help:      "Total number of extracted recipients dropped before sending.",
			},
			[]string{"reason"},
		),
		gatewaySendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "gateway_send_duration_seconds",
				Help:      "Gateway send duration in seconds grouped by batch kind.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"kind"},
		),
		gatewayInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "gateway_inflight",
				Help:      "Current number of in-flight gateway calls grouped by batch kind.",
			},
			[]string{"kind"},
		),
		failuresResolvedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "failures_resolved_total",
				Help:      "Total number of failure records resolved by a successful resend.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.smsSentTotal,
		m.smsFailedTotal,
		m.smsSkippedTotal,
		m.gatewaySendDuration,
		m.gatewayInflight,
		m.failuresResolvedTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncSent(kind string) {
	if m == nil {
		return
	}
	m.smsSentTotal.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *Metrics) IncFailed(kind string, reason string) {
	if m == nil {
		return
	}
	m.smsFailedTotal.WithLabelValues(normalizeLabel(kind), normalizeLabel(reason)).Inc()
}

func (m *Metrics) AddSkipped(reason string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.smsSkippedTotal.WithLabelValues(normalizeLabel(reason)).Add(float64(count))
}

func (m *Metrics) ObserveGatewaySendDuration(kind string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.gatewaySendDuration.WithLabelValues(normalizeLabel(kind)).Observe(seconds)
}

func (m *Metrics) IncGatewayInFlight(kind string) {
	if m == nil {
		return
	}
	m.gatewayInflight.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *Metrics) DecGatewayInFlight(kind string) {
	if m == nil {
		return
	}
	m.gatewayInflight.WithLabelValues(normalizeLabel(kind)).Dec()
}

func (m *Metrics) IncResolved() {
	if m == nil {
		return
	}
	m.failuresResolvedTotal.Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
