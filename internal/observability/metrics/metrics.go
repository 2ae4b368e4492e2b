package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	paymentEvents   *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	gatewayCalls    *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New registers the domain instruments on the default registry.
func New() *Metrics {
	return &Metrics{
		paymentEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paygate_payment_events_total",
			Help: "Inbound payment notifications by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		reconciliations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paygate_reconciliations_total",
			Help: "Reconciliation attempts by entry path and outcome.",
		}, []string{"path", "outcome"}),
		gatewayCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paygate_gateway_calls_total",
			Help: "Payment gateway calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		httpRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paygate_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "paygate_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// RecordPaymentEvent counts an inbound webhook event.
func (m *Metrics) RecordPaymentEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.paymentEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordReconciliation counts a reconciliation attempt.
func (m *Metrics) RecordReconciliation(path, outcome string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(path, outcome).Inc()
}

// RecordGatewayCall counts a payment gateway round trip.
func (m *Metrics) RecordGatewayCall(operation, outcome string) {
	if m == nil {
		return
	}
	m.gatewayCalls.WithLabelValues(operation, outcome).Inc()
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
