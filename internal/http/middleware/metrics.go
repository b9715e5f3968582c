package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// unmatchedRoute labels requests that hit no registered route, so scanners
// probing random paths cannot grow the label set.
const unmatchedRoute = "unmatched"

var (
	httpReqs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rfidgate",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpLat = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rfidgate",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency. Ingestion includes relay pulses.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"method", "route"})

	// Ingest batches arrive as request bodies; the histogram helps size
	// http.max_body_bytes against send_batch_size on the edges.
	httpReqSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rfidgate",
		Subsystem: "http",
		Name:      "request_size_bytes",
		Help:      "HTTP request body size as declared by Content-Length.",
		Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
	}, []string{"route"})

	httpInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rfidgate",
		Subsystem: "http",
		Name:      "requests_inflight",
		Help:      "HTTP requests currently being served.",
	})
)

// Metrics records request counts, latency, body size and in-flight
// requests. /metrics itself is mounted by the router.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method

		httpReqs.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if n := c.Request.ContentLength; n > 0 {
			httpReqSize.WithLabelValues(route).Observe(float64(n))
		}
	}
}
