// Package metrics exposes Prometheus collectors for the HTTP server and the
// sync pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "billscan"

// Metrics owns a private registry so tests and multiple servers in one
// process do not collide.
type Metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	syncJobs     *prometheus.CounterVec
	billsCreated prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		syncJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_jobs_total",
			Help:      "Finished mailbox sync jobs by final status.",
		}, []string{"status"}),
		billsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bills_created_total",
			Help:      "Bills stored by the sync pipeline.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.duration,
		m.syncJobs,
		m.billsCreated,
	)
	return m
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// SyncFinished records the outcome of a sync job and the bills it created.
func (m *Metrics) SyncFinished(status string, created int) {
	if m == nil {
		return
	}
	m.syncJobs.WithLabelValues(status).Inc()
	if created > 0 {
		m.billsCreated.Add(float64(created))
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
