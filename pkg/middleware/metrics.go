package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	gojimw "goji.io/v3/middleware"

	"github.com/DECODEproject/iotdashboard/pkg/metrics"
)

// metricsMiddleware holds the state of the configured prometheus HistogramVec.
type metricsMiddleware struct {
	h        http.Handler
	duration *prometheus.HistogramVec
}

// ServeHTTP is our implementation of the http.Handler interface
func (m *metricsMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cw := &captureWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
	startTime := time.Now()
	m.h.ServeHTTP(cw, r)
	took := time.Since(startTime)
	m.duration.WithLabelValues(
		strconv.Itoa(cw.statusCode), r.Method, routeLabel(r)).
		Observe(took.Seconds())
}

// unmatchedRoute is the path label of requests no route matched.
const unmatchedRoute = "unmatched"

// routeLabel returns the pattern of the goji route that matched the request,
// so path variables such as device names do not each create a new series.
func routeLabel(r *http.Request) string {
	if p, ok := gojimw.Pattern(r.Context()).(fmt.Stringer); ok {
		return p.String()
	}
	return unmatchedRoute
}

// MetricsMiddleware returns a new middleware recording request durations by
// status code, method and matched route. It must be Used on a goji mux, as the
// route is read from the context goji populates before running middleware.
func MetricsMiddleware(namespace, subsystem string) func(http.Handler) http.Handler {
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_sec",
			Help:      "Time (in seconds) spent serving HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status_code", "method", "path"},
	)

	metrics.MustRegister(duration)

	return func(h http.Handler) http.Handler {
		return &metricsMiddleware{
			h:        h,
			duration: duration,
		}
	}
}
