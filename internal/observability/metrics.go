package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for one registry.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	operations     *prometheus.CounterVec
	opDuration     *prometheus.HistogramVec
	bridgeLaunches *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. A nil reg gets a fresh registry
// with the Go and process collectors.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpchat_http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpchat_http_request_duration_seconds",
				Help:    "HTTP request latency by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpchat_operations_total",
				Help: "Session operations by outcome (ok or error kind).",
			},
			[]string{"op", "outcome"},
		),
		opDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpchat_operation_duration_seconds",
				Help:    "Session operation latency, including external calls.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 45, 60},
			},
			[]string{"op"},
		),
		bridgeLaunches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpchat_bridge_launches_total",
				Help: "Bridge subprocess launches by outcome.",
			},
			[]string{"outcome"},
		),
	}
	reg.MustRegister(m.httpRequests, m.httpDuration, m.operations, m.opDuration, m.bridgeLaunches)
	return m
}

// ObserveOperation records one finished operation.
func (m *Metrics) ObserveOperation(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.opDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveLaunch records one bridge launch attempt.
func (m *Metrics) ObserveLaunch(outcome string) {
	if m == nil {
		return
	}
	m.bridgeLaunches.WithLabelValues(outcome).Inc()
}

// RegisterSessionGauge exposes the live session count.
func (m *Metrics) RegisterSessionGauge(count func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "mcpchat_sessions_active",
			Help: "Sessions currently held in memory.",
		},
		func() float64 { return float64(count()) },
	))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
