package metric

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "authmesh"

// Registry holds the hub's metrics. A nil *Registry is valid and records
// nothing.
type Registry struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	lookups        *prometheus.CounterVec
	lookupDuration prometheus.Histogram
	connections    prometheus.Gauge
	frames         *prometheus.CounterVec
	reloads        *prometheus.CounterVec
}

// NewRegistry creates a registry with the hub metrics and the Go runtime
// and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Authentication requests by kind and result.",
		}, []string{"kind", "result"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_lookups_total",
			Help:      "Identity lookups by result.",
		}, []string{"result"}),
		lookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "identity_lookup_duration_seconds",
			Help:      "Identity lookup latency.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Open peer connections.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames by direction (in, out, dropped).",
		}, []string{"direction"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Configuration reloads by result.",
		}, []string{"result"}),
	}

	r.registry.MustRegister(
		r.requests,
		r.lookups,
		r.lookupDuration,
		r.connections,
		r.frames,
		r.reloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

var (
	globalOnce     sync.Once
	globalRegistry *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}

// Handler returns the /metrics handler of the global registry.
func Handler() http.Handler {
	return Global().Handler()
}

// Handler returns an HTTP handler serving this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registerer exposes the underlying registry so other components (the
// badger store, the session collector) can add their own metrics.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.registry
}

// Gatherer exposes the underlying registry for tests and exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// RecordRequest counts one handled request.
func (r *Registry) RecordRequest(kind, result string) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(kind, result).Inc()
}

// RecordLookup counts one identity lookup outcome.
func (r *Registry) RecordLookup(result string) {
	if r == nil {
		return
	}
	r.lookups.WithLabelValues(result).Inc()
}

// ObserveLookupDuration records the latency of a finished lookup.
func (r *Registry) ObserveLookupDuration(seconds float64) {
	if r == nil {
		return
	}
	r.lookupDuration.Observe(seconds)
}

// IncConnections records an accepted connection.
func (r *Registry) IncConnections() {
	if r == nil {
		return
	}
	r.connections.Inc()
}

// DecConnections records a closed connection.
func (r *Registry) DecConnections() {
	if r == nil {
		return
	}
	r.connections.Dec()
}

// RecordFrame counts one frame in the given direction.
func (r *Registry) RecordFrame(direction string) {
	if r == nil {
		return
	}
	r.frames.WithLabelValues(direction).Inc()
}

// RecordReload counts one configuration reload.
func (r *Registry) RecordReload(result string) {
	if r == nil {
		return
	}
	r.reloads.WithLabelValues(result).Inc()
}
