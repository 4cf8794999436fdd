// Package metrics holds the Prometheus collectors of the service: HTTP
// traffic, database operation latency and the domain operations
// (deployments, rollbacks, clones).
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lpar_inventory/internal/apperr"
)

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	DBOperationDuration *prometheus.HistogramVec

	DeploymentsTotal *prometheus.CounterVec
	DeployedLPARs    prometheus.Counter
	RollbacksTotal   *prometheus.CounterVec
	ClonesTotal      *prometheus.CounterVec
}

// New registers every collector on a fresh registry, so several instances
// can coexist in tests.
func New(prefix string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		DBOperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation_type", "table"}),
		DeploymentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_deployments_total",
			Help: "Package deployment requests by outcome",
		}, []string{"outcome"}),
		DeployedLPARs: f.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_deployed_lpars_total",
			Help: "LPARs that received a package",
		}),
		RollbacksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_rollbacks_total",
			Help: "Software rollbacks by outcome",
		}, []string{"outcome"}),
		ClonesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_clones_total",
			Help: "Entity clones by entity type and outcome",
		}, []string{"entity", "outcome"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Middleware records count and latency per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(string(apperr.KindOf(err)))
}

func (m *Metrics) RecordDeployment(lpars int, err error) {
	m.DeploymentsTotal.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		m.DeployedLPARs.Add(float64(lpars))
	}
}

func (m *Metrics) RecordRollback(err error) {
	m.RollbacksTotal.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) RecordClone(entity string, err error) {
	m.ClonesTotal.WithLabelValues(entity, outcome(err)).Inc()
}

// TrackDBOperation returns a function that records the duration of a database operation
func (m *Metrics) TrackDBOperation(operationType, table string) func(startTime time.Time) {
	return func(startTime time.Time) {
		m.DBOperationDuration.WithLabelValues(operationType, table).Observe(time.Since(startTime).Seconds())
	}
}
