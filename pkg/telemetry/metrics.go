package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Metrics collects resolver counters. A nil *Metrics is a valid no-op
// collector, so library code records unconditionally.
type Metrics struct {
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheEvictions prometheus.Counter

	instantiations *prometheus.CounterVec
	importsMerged  prometheus.Counter
	importsSkipped prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector registered on its own registry.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of shared-instance cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of shared-instance cache misses",
		}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Total number of shared-instance cache evictions",
		}),
		instantiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instantiations_total",
			Help:      "Total number of instance constructions by outcome",
		}, []string{"outcome"}),
		importsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_merged_total",
			Help:      "Total number of import manifest entries merged",
		}),
		importsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_skipped_total",
			Help:      "Total number of optional import entries skipped",
		}),
	}

	registry.MustRegister(
		m.cacheHits, m.cacheMisses, m.cacheEvictions,
		m.instantiations, m.importsMerged, m.importsSkipped,
	)
	return m
}

// CacheHit records a shared-instance cache hit.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

// CacheMiss records a shared-instance cache miss.
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

// CacheEviction records a cache entry drop.
func (m *Metrics) CacheEviction() {
	if m == nil {
		return
	}
	m.cacheEvictions.Inc()
}

// Instantiation records a construction attempt with its outcome
// ("ok" or "error").
func (m *Metrics) Instantiation(outcome string) {
	if m == nil {
		return
	}
	m.instantiations.WithLabelValues(outcome).Inc()
}

// ImportMerged records one manifest entry merged into the store.
func (m *Metrics) ImportMerged() {
	if m == nil {
		return
	}
	m.importsMerged.Inc()
}

// ImportSkipped records one optional manifest entry skipped.
func (m *Metrics) ImportSkipped() {
	if m == nil {
		return
	}
	m.importsSkipped.Inc()
}

// Gather returns the current metric families, for tests and reporting.
func (m *Metrics) Gather() ([]*dto.MetricFamily, error) {
	if m == nil {
		return nil, nil
	}
	return m.registry.Gather()
}

// Handler returns an HTTP handler exposing the metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
