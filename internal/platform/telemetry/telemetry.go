// Package telemetry exposes Prometheus metrics for the clinic backend:
// HTTP traffic, reconciliation outcomes, cascade deletes and the stats cache.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clinic"

// Metrics holds every collector. A nil *Metrics records nothing, so services
// and tests can run without a registry.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	reconciles    *prometheus.CounterVec
	changes       *prometheus.CounterVec
	reconcileTime *prometheus.HistogramVec
	cascade       *prometheus.CounterVec
	statsCache    *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		reconciles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_total",
			Help:      "Reconciliations by collection and outcome.",
		}, []string{"collection", "outcome"}),
		changes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_changes_total",
			Help:      "Child rows written by reconciliation, by collection and change kind.",
		}, []string{"collection", "kind"}),
		reconcileTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Time spent in one reconciliation transaction.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"collection"}),
		cascade: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_deleted_total",
			Help:      "Rows removed by cascade deletes, by entity.",
		}, []string{"entity"}),
		statsCache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_cache_total",
			Help:      "Statistics cache lookups by result.",
		}, []string{"result"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Middleware records request counts and latency keyed by route template.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.httpRequests.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// ObserveReconcile records one reconciliation. outcome is "ok" or an error
// kind; added, updated and deleted count only on success.
func (m *Metrics) ObserveReconcile(collection, outcome string, added, updated, deleted int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.reconciles.WithLabelValues(collection, outcome).Inc()
	m.reconcileTime.WithLabelValues(collection).Observe(elapsed.Seconds())
	if outcome != "ok" {
		return
	}
	m.changes.WithLabelValues(collection, "added").Add(float64(added))
	m.changes.WithLabelValues(collection, "updated").Add(float64(updated))
	m.changes.WithLabelValues(collection, "deleted").Add(float64(deleted))
}

func (m *Metrics) ObserveCascade(entity string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.cascade.WithLabelValues(entity).Add(float64(n))
}

func (m *Metrics) ObserveStatsCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.statsCache.WithLabelValues(result).Inc()
}
