// Package metrics provides Prometheus metrics for the enrichment pipeline
// and its HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/starford/commentmap/internal/index"
	"github.com/starford/commentmap/internal/models"
)

const namespace = "commentmap"

// Enrichment outcomes.
const (
	OutcomePlaced   = "placed"
	OutcomeFallback = "fallback"
)

// Metrics holds all collectors on a private registry so that several
// instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	EnrichRunsTotal  prometheus.Counter
	EnrichDuration   prometheus.Histogram
	CommentsTotal    *prometheus.CounterVec
	RepliesTotal     prometheus.Counter
	IndexEventsTotal *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	m.EnrichRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enrich_runs_total",
		Help:      "Total number of enrichment runs",
	})
	m.EnrichDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "enrich_duration_seconds",
		Help:      "Duration of a single enrichment run in seconds",
		Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})
	m.CommentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comments_enriched_total",
			Help:      "Total number of enriched comments by outcome",
		},
		[]string{"outcome"},
	)
	m.RepliesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "replies_enriched_total",
		Help:      "Total number of enriched comments that are replies",
	})
	m.IndexEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_events_total",
			Help:      "Total number of index change events",
		},
		[]string{"kind"},
	)

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.EnrichRunsTotal,
		m.EnrichDuration,
		m.CommentsTotal,
		m.RepliesTotal,
		m.IndexEventsTotal,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordEnrich records one enrichment run and the outcome of every comment.
func (m *Metrics) RecordEnrich(out []models.EnrichedComment, d time.Duration) {
	m.EnrichRunsTotal.Inc()
	m.EnrichDuration.Observe(d.Seconds())
	for i := range out {
		outcome := OutcomePlaced
		if out[i].Ungrouped() {
			outcome = OutcomeFallback
		}
		m.CommentsTotal.WithLabelValues(outcome).Inc()
		if out[i].IsReply {
			m.RepliesTotal.Inc()
		}
	}
}

// Enricher wraps next so that every run is recorded.
func (m *Metrics) Enricher(next index.Enricher) index.Enricher {
	return &instrumented{next: next, m: m}
}

type instrumented struct {
	next index.Enricher
	m    *Metrics
}

func (e *instrumented) Enrich(comments, context []models.RawComment) []models.EnrichedComment {
	start := time.Now()
	out := e.next.Enrich(comments, context)
	e.m.RecordEnrich(out, time.Since(start))
	return out
}

// Events wraps an event callback so that every event is counted. A nil
// next only counts.
func (m *Metrics) Events(next index.EventCallback) index.EventCallback {
	return func(kind, name string) {
		m.IndexEventsTotal.WithLabelValues(kind).Inc()
		if next != nil {
			next(kind, name)
		}
	}
}

// Middleware records request count and latency per chi route pattern.
// Unmatched requests are grouped under "unmatched" to bound cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
