// Package metrics exposes Prometheus metrics for the HTTP API, the
// expansion engine and dataset reloads. A nil *Metrics is a valid no-op.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "zoocal"

// Metrics owns a private registry so tests and multiple servers never
// collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	instancesExpanded prometheus.Counter
	truncatedEvents   prometheus.Counter

	datasetReloads     *prometheus.CounterVec
	datasetDefinitions prometheus.Gauge
}

// New registers all metrics under namespace ("zoocal" if empty).
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		instancesExpanded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "expand",
			Name:      "instances_total",
			Help:      "Event instances produced by recurrence expansion.",
		}),
		truncatedEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "expand",
			Name:      "truncated_events_total",
			Help:      "Definitions whose expansion hit the per-event instance cap.",
		}),
		datasetReloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dataset",
			Name:      "reloads_total",
			Help:      "Dataset reload attempts by result.",
		}, []string{"result"}),
		datasetDefinitions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dataset",
			Name:      "definitions",
			Help:      "Event definitions in the current dataset snapshot.",
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

func (m *Metrics) AddInstances(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.instancesExpanded.Add(float64(n))
}

func (m *Metrics) AddTruncated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.truncatedEvents.Add(float64(n))
}

// ObserveReload matches dataset.ReloadHook.
func (m *Metrics) ObserveReload(count int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.datasetReloads.WithLabelValues("error").Inc()
		return
	}
	m.datasetReloads.WithLabelValues("ok").Inc()
	m.datasetDefinitions.Set(float64(count))
}
