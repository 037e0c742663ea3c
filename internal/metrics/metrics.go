// Package metrics exposes the Prometheus instruments of the API server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "launchlog"

// Store backends and outcomes used as label values.
const (
	BackendDurable = "durable"
	BackendMemory  = "memory"

	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds the application's instruments on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	storeOps     *prometheus.CounterVec
	durableUp    prometheus.Gauge
	httpDuration *prometheus.HistogramVec
}

// New creates and registers all instruments.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Store operations by operation, backend and outcome.",
		}, []string{"op", "backend", "outcome"}),
		durableUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "durable_store_up",
			Help:      "1 when the durable store answered its last health check.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method, route pattern and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		m.storeOps,
		m.durableUp,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStoreOp counts one store call.
func (m *Metrics) ObserveStoreOp(op, backend, outcome string) {
	if m == nil {
		return
	}
	m.storeOps.WithLabelValues(op, backend, outcome).Inc()
}

// SetDurableUp records the durable store health.
func (m *Metrics) SetDurableUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.durableUp.Set(1)
	} else {
		m.durableUp.Set(0)
	}
}

// ObserveRequest records the latency of a served request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// StoreOps exposes the store counter for tests.
func (m *Metrics) StoreOps() *prometheus.CounterVec {
	return m.storeOps
}

// DurableUp exposes the health gauge for tests.
func (m *Metrics) DurableUp() prometheus.Gauge {
	return m.durableUp
}

// HTTPDuration exposes the request histogram for tests.
func (m *Metrics) HTTPDuration() *prometheus.HistogramVec {
	return m.httpDuration
}
