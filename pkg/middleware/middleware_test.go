package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfeed/mbo-gateway/internal/config"
	"github.com/quantfeed/mbo-gateway/pkg/observability"
)

type recordingMetrics struct {
	method, path, status string
	duration              time.Duration
	calls                 int
}

func (m *recordingMetrics) RecordHTTPRequest(ctx context.Context, method, path, status string, duration time.Duration) {
	m.method, m.path, m.status, m.duration = method, path, status, duration
	m.calls++
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func testLogger() *observability.Logger {
	return observability.NewLogger(config.ObservabilityConfig{ServiceName: "test", LogLevel: "error", LogFormat: "text"})
}

func TestCORSSetsPermissiveHeaders(t *testing.T) {
	handler := CORS([]string{"*"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestTracingPassesThroughAndRecordsStatus(t *testing.T) {
	handler := Tracing("mbo-gateway")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoggingPassesThroughToNextHandler(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusAccepted)
	})

	handler := Logging(testLogger())(next)

	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.True(t, called)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestMetricsRecordsMethodPathStatus(t *testing.T) {
	rm := &recordingMetrics{}
	handler := Metrics(rm)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/book/1/1/snapshot", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, 1, rm.calls)
	assert.Equal(t, http.MethodGet, rm.method)
	assert.Equal(t, "/api/book/1/1/snapshot", rm.path)
	assert.Equal(t, "200", rm.status)
}

func TestRateLimitRejectsOverBurst(t *testing.T) {
	handler := RateLimit(config.RateLimitConfig{RequestsPerMinute: 60, Burst: 1})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, req)
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, req)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestRecoveryCatchesPanicAndReturns500(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	handler := Recovery(testLogger())(next)

	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	rec := httptest.NewRecorder()

	assert.NotPanics(t, func() {
		handler.ServeHTTP(rec, req)
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
