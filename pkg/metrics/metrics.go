package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arnavshah/odp-scheduler-go/internal/integrity"
)

// Collector handles metrics collection and reporting on a private registry.
type Collector struct {
	registry *prometheus.Registry

	mutations       *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	orphanEvents    prometheus.Gauge
	missingMachines prometheus.Gauge
	inconsistent    prometheus.Gauge
	lastCheck       prometheus.Gauge
}

// NewCollector creates a collector with every metric registered.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "odp_scheduler_mutations_total",
				Help: "Schedule, unschedule and reschedule commands by outcome",
			},
			[]string{"operation", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "odp_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		orphanEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "odp_integrity_orphan_events",
			Help: "Events referencing a missing order or machine at the last check",
		}),
		missingMachines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "odp_integrity_missing_machines",
			Help: "Machine references absent from the catalog at the last check",
		}),
		inconsistent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "odp_integrity_inconsistent_orders",
			Help: "Orders whose scheduling fields disagree with their status",
		}),
		lastCheck: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "odp_integrity_last_check_timestamp_seconds",
			Help: "Unix time of the last integrity check",
		}),
	}
	c.registry.MustRegister(
		c.mutations,
		c.requestDuration,
		c.orphanEvents,
		c.missingMachines,
		c.inconsistent,
		c.lastCheck,
		collectors.NewGoCollector(),
	)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// ObserveMutation counts one engine mutation.
func (c *Collector) ObserveMutation(operation, outcome string) {
	c.mutations.WithLabelValues(operation, outcome).Inc()
}

// ObserveIntegrity records the figures of an integrity report.
func (c *Collector) ObserveIntegrity(r integrity.Report, at time.Time) {
	c.orphanEvents.Set(float64(r.OrphanEventCount()))
	c.missingMachines.Set(float64(r.OrphanMachineCount()))
	c.inconsistent.Set(float64(len(r.InconsistentOrders)))
	c.lastCheck.Set(float64(at.Unix()))
}

// Middleware times every request by its route template.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		c.requestDuration.
			WithLabelValues(ctx.Request.Method, route, strconv.Itoa(ctx.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
