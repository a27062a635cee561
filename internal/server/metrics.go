package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiro_gateway_http_requests_total",
			Help: "Total number of HTTP requests processed, by route and status.",
		},
		[]string{"route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kiro_gateway_http_request_duration_seconds",
			Help:    "HTTP request duration by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	dispatchOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiro_gateway_dispatch_outcomes_total",
			Help: "Dispatcher outcomes by inbound protocol and result kind.",
		},
		[]string{"protocol", "kind"},
	)

	metricsRegistry = prometheus.NewRegistry()
)

func init() {
	metricsRegistry.MustRegister(httpRequestsTotal, httpRequestDurationSeconds, dispatchOutcomesTotal)
}

// metricsMiddleware records per-route request counts and latency. Routes not matched to a
// registered gin handler (404s) are skipped to avoid unbounded label cardinality.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			return
		}
		httpRequestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDurationSeconds.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// recordDispatchOutcome is called by handlers after a dispatch completes, win or lose.
func recordDispatchOutcome(protocol, kind string) {
	dispatchOutcomesTotal.WithLabelValues(protocol, kind).Inc()
}

// metricsHandler serves the /metrics endpoint for Prometheus scraping.
func metricsHandler() gin.HandlerFunc {
	h := promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}
