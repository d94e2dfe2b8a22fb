package middleware

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
)

var (
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
)

// InitRequestMetrics registers the API request collectors. Call once at
// startup before the server starts serving.
func InitRequestMetrics() {
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "schoolsight",
			Name:      "requests_total",
			Help:      "Total number of handled API requests.",
		},
		[]string{"path", "method", "status"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "schoolsight",
			Name:      "request_duration_seconds",
			Help:      "Histogram of API request durations in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"path", "method"},
	)
	prometheus.MustRegister(requestsTotal, requestDuration)
}

// RequestMetrics observes every request into the registered collectors. The
// metrics endpoint itself is excluded to avoid self-inflation.
func RequestMetrics(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)

		path := string(ctx.Path())
		if path == "/metrics" {
			return
		}
		method := string(ctx.Method())
		requestsTotal.WithLabelValues(path, method, strconv.Itoa(ctx.Response.StatusCode())).Inc()
		requestDuration.WithLabelValues(path, method).Observe(time.Since(start).Seconds())
	}
}
