package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	MemoryOps     *prometheus.CounterVec
	MemoryLatency *prometheus.HistogramVec
	ChatTurns     *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		MemoryOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_operations_total",
			Help:      "Conversation memory operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		MemoryLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "memory_operation_duration_ms",
			Help:      "Latency of conversation memory operations in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 15000},
		}, []string{"op"}),
		ChatTurns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat turns handled by outcome.",
		}, []string{"outcome"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}
}

func (m *Metrics) ObserveMemory(op string, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.MemoryOps.WithLabelValues(op, outcome).Inc()
	m.MemoryLatency.WithLabelValues(op).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveChatTurn(outcome string) {
	if m == nil {
		return
	}
	m.ChatTurns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveHTTPRequest(route string, code string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, code).Inc()
}

func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
