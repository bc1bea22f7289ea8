package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	goji "goji.io/v3"
	"goji.io/v3/pat"
)

func TestMetricsMiddlewareLabelsByRoute(t *testing.T) {
	var mw *metricsMiddleware

	wrap := MetricsMiddleware("decode", "middleware_route_test")

	mux := goji.NewMux()
	mux.Handle(pat.Post("/api/device/:name/set"), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	mux.Use(func(h http.Handler) http.Handler {
		wrapped := wrap(h)
		mw = wrapped.(*metricsMiddleware)
		return wrapped
	})

	for _, target := range []string{"/api/device/LEDs/set", "/api/device/Buzzer/set", "/api/device/x1/set"} {
		mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, target, nil))
	}

	for _, target := range []string{"/nope", "/also/nope"} {
		mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	// one series for the device route and one for everything unmatched
	assert.Equal(t, 2, testutil.CollectAndCount(mw.duration))

	name := "decode_middleware_route_test_request_duration_sec"

	assert.Equal(t, uint64(3), sampleCount(t, name, map[string]string{
		"status_code": "200",
		"method":      http.MethodPost,
		"path":        "/api/device/:name/set",
	}))
	assert.Equal(t, uint64(2), sampleCount(t, name, map[string]string{
		"status_code": "404",
		"method":      http.MethodGet,
		"path":        unmatchedRoute,
	}))
}

// sampleCount returns the number of observations recorded under the given
// status, method and path labels.
func sampleCount(t *testing.T, name string, labels map[string]string) uint64 {
	t.Helper()

	families, err := prometheus.DefaultGatherer.Gather()
	assert.Nil(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}

		for _, m := range mf.GetMetric() {
			matched := 0
			for _, l := range m.GetLabel() {
				if labels[l.GetName()] == l.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}

	return 0
}
