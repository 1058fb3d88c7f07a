package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg, reg)

	m.ObserveOperation("add_book", "success")
	m.ObserveOperation("add_book", "success")
	m.ObserveOperation("remove_book", "conflict")

	assert.Equal(t, testutil.ToFloat64(m.operations.WithLabelValues("add_book", "success")), float64(2))
	assert.Equal(t, testutil.ToFloat64(m.operations.WithLabelValues("remove_book", "conflict")), float64(1))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveCall("bundles", http.MethodGet, 20*time.Millisecond)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(rr.Body)
	assert.Equal(t, rr.Code, http.StatusOK)
	assert.Equal(t, strings.Contains(string(body), `b4_remote_call_duration_seconds_count{method="GET",store="bundles"} 1`), true)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("fetch", "success")
	m.ObserveCall("books", http.MethodGet, time.Second)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, rr.Code, http.StatusNotFound)
}
