package middleware

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveWithChi wraps a handler in a chi router so RouteContext is available.
func serveWithChi(mw func(http.Handler) http.Handler, handler http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(mw)
	r.Get("/api/v1/reindex/runs/{id}", handler.ServeHTTP)
	return r
}

func TestPrometheusMetrics_RequestCounting(t *testing.T) {
	handler := serveWithChi(PrometheusMetrics("count-svc"), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, id := range []string{"a", "b", "c"} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/reindex/runs/"+id, nil))
		require.Equal(t, http.StatusOK, rr.Code)
	}

	// All three share the route pattern label.
	c := httpRequestsTotal.WithLabelValues("count-svc", "GET", "/api/v1/reindex/runs/{id}", "200")
	assert.Equal(t, float64(3), testutil.ToFloat64(c))
}

func TestPrometheusMetrics_DurationHistogram(t *testing.T) {
	handler := serveWithChi(PrometheusMetrics("hist-svc"), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/reindex/runs/x", nil))
	assert.Equal(t, http.StatusCreated, rr.Code)

	assert.GreaterOrEqual(t, testutil.CollectAndCount(httpRequestDuration, "http_request_duration_seconds"), 1)
}

func TestPrometheusMetrics_InFlightGauge(t *testing.T) {
	var inFlight float64
	handler := serveWithChi(PrometheusMetrics("inflight-svc"), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inFlight = testutil.ToFloat64(httpRequestsInFlight.WithLabelValues("inflight-svc"))
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/reindex/runs/x", nil))

	assert.Equal(t, float64(1), inFlight)
	assert.Equal(t, float64(0), testutil.ToFloat64(httpRequestsInFlight.WithLabelValues("inflight-svc")))
}

func TestPrometheusMetrics_StatusCodeCapture(t *testing.T) {
	for _, code := range []int{http.StatusOK, http.StatusNotFound, http.StatusConflict, http.StatusBadGateway} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			svc := "status-" + http.StatusText(code)
			handler := serveWithChi(PrometheusMetrics(svc), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(code)
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/reindex/runs/x", nil))

			counted := httpRequestsTotal.WithLabelValues(svc, "GET", "/api/v1/reindex/runs/{id}", strconv.Itoa(code))
			assert.Equal(t, float64(1), testutil.ToFloat64(counted))
		})
	}
}

func TestPrometheusMetrics_DefaultStatusCode(t *testing.T) {
	handler := serveWithChi(PrometheusMetrics("default-status-svc"), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/reindex/runs/x", nil))

	c := httpRequestsTotal.WithLabelValues("default-status-svc", "GET", "/api/v1/reindex/runs/{id}", "200")
	assert.Equal(t, float64(1), testutil.ToFloat64(c))
}

func TestPrometheusMetrics_UnmatchedRoute(t *testing.T) {
	mw := PrometheusMetrics("unmatched-svc")
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	c := httpRequestsTotal.WithLabelValues("unmatched-svc", "GET", "unmatched", "404")
	assert.Equal(t, float64(1), testutil.ToFloat64(c))
}

// mockFlusherWriter implements both http.ResponseWriter and http.Flusher.
type mockFlusherWriter struct {
	http.ResponseWriter
	flushed bool
}

func (m *mockFlusherWriter) Flush() {
	m.flushed = true
}

// mockHijackerWriter implements both http.ResponseWriter and http.Hijacker.
type mockHijackerWriter struct {
	http.ResponseWriter
	hijacked bool
}

func (m *mockHijackerWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	m.hijacked = true
	return nil, nil, nil
}

// minimalResponseWriter is a bare http.ResponseWriter without Flusher/Hijacker.
type minimalResponseWriter struct {
	header http.Header
}

func (m *minimalResponseWriter) Header() http.Header {
	if m.header == nil {
		m.header = make(http.Header)
	}
	return m.header
}

func (m *minimalResponseWriter) Write(b []byte) (int, error) {
	return len(b), nil
}

func (m *minimalResponseWriter) WriteHeader(int) {}

func TestStatusRecorder_Flush(t *testing.T) {
	mock := &mockFlusherWriter{ResponseWriter: httptest.NewRecorder()}
	newStatusRecorder(mock).Flush()
	assert.True(t, mock.flushed)

	// No panic when the underlying writer cannot flush.
	newStatusRecorder(&minimalResponseWriter{}).Flush()
}

func TestStatusRecorder_Hijack(t *testing.T) {
	mock := &mockHijackerWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := newStatusRecorder(mock).Hijack()
	assert.NoError(t, err)
	assert.True(t, mock.hijacked)

	_, _, err = newStatusRecorder(&minimalResponseWriter{}).Hijack()
	assert.ErrorIs(t, err, http.ErrNotSupported)
}

func TestStatusRecorder_FirstStatusWins(t *testing.T) {
	rec := newStatusRecorder(httptest.NewRecorder())
	rec.WriteHeader(http.StatusConflict)
	rec.WriteHeader(http.StatusOK)
	assert.Equal(t, http.StatusConflict, rec.status)

	rec = newStatusRecorder(httptest.NewRecorder())
	_, _ = rec.Write([]byte("body"))
	rec.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusOK, rec.status, "status is fixed once the body is written")
	assert.Equal(t, 4, rec.bytes)
}

func TestStatusRecorder_Unwrap(t *testing.T) {
	inner := httptest.NewRecorder()
	assert.Same(t, inner, newStatusRecorder(inner).Unwrap())
}
