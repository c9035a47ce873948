package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSimpleObservabilityProviderDefaultsOnNilConfig(t *testing.T) {
	op, err := NewSimpleObservabilityProvider(nil)
	require.NoError(t, err)
	assert.NotNil(t, op.Logger)
}

func TestSimpleObservabilityProviderStartStop(t *testing.T) {
	op, err := NewSimpleObservabilityProvider(&SimpleObservabilityConfig{
		ServiceName: "mbo-gateway", ServiceVersion: "1.0.0", Environment: "test",
		LogLevel: "error", LogFormat: "text",
	})
	require.NoError(t, err)

	assert.NoError(t, op.Start(context.Background()))
	assert.NoError(t, op.Stop(context.Background()))
}

func TestGetHTTPMiddlewareInjectsRequestID(t *testing.T) {
	op, err := NewSimpleObservabilityProvider(&SimpleObservabilityConfig{LogLevel: "error", LogFormat: "text"})
	require.NoError(t, err)

	var sawRequestID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawRequestID = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusOK)
	})

	handler := op.GetHTTPMiddleware()(next)
	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, sawRequestID)
}

func TestGetDefaultSimpleConfigFallsBackToDefaults(t *testing.T) {
	cfg := GetDefaultSimpleConfig()
	assert.Equal(t, "unknown-service", cfg.ServiceName)
	assert.Equal(t, "info", cfg.LogLevel)
}
