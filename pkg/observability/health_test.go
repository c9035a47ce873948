package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfeed/mbo-gateway/internal/config"
)

func newTestHealthChecker() *HealthChecker {
	return NewHealthChecker(NewLogger(config.ObservabilityConfig{ServiceName: "test", LogLevel: "error", LogFormat: "text"}))
}

func TestIngestHealthCheckRunning(t *testing.T) {
	check := IngestHealthCheck(func() (bool, error) { return false, nil })
	result := check(context.Background())
	assert.Equal(t, HealthStatusHealthy, result.Status)
}

func TestIngestHealthCheckFinishedWithError(t *testing.T) {
	check := IngestHealthCheck(func() (bool, error) { return true, errors.New("decode failed") })
	result := check(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, result.Status)
	assert.Equal(t, "decode failed", result.Error)
}

func TestIngestHealthCheckFinishedCleanly(t *testing.T) {
	check := IngestHealthCheck(func() (bool, error) { return true, nil })
	result := check(context.Background())
	assert.Equal(t, HealthStatusDegraded, result.Status)
}

func TestBroadcasterHealthCheckReportsSubscriberCount(t *testing.T) {
	check := BroadcasterHealthCheck(func() int { return 3 })
	result := check(context.Background())
	assert.Equal(t, HealthStatusHealthy, result.Status)
	assert.Equal(t, 3, result.Details["subscriber_count"])
}

func TestHealthCheckerOverallStatusAggregation(t *testing.T) {
	hc := newTestHealthChecker()
	hc.RegisterCheck("ingest", func(ctx context.Context) HealthCheckResult {
		return HealthCheckResult{Status: HealthStatusHealthy}
	})
	hc.RegisterCheck("broadcaster", func(ctx context.Context) HealthCheckResult {
		return HealthCheckResult{Status: HealthStatusDegraded}
	})

	results := hc.CheckHealth(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, HealthStatusDegraded, hc.GetOverallStatus(results))
}

func TestHealthCheckerUnhealthyOverridesDegraded(t *testing.T) {
	hc := newTestHealthChecker()
	hc.RegisterCheck("a", func(ctx context.Context) HealthCheckResult {
		return HealthCheckResult{Status: HealthStatusDegraded}
	})
	hc.RegisterCheck("b", func(ctx context.Context) HealthCheckResult {
		return HealthCheckResult{Status: HealthStatusUnhealthy}
	})

	results := hc.CheckHealth(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, hc.GetOverallStatus(results))
}

func TestHealthCheckerUnregisterCheck(t *testing.T) {
	hc := newTestHealthChecker()
	hc.RegisterCheck("ingest", func(ctx context.Context) HealthCheckResult {
		return HealthCheckResult{Status: HealthStatusHealthy}
	})
	hc.UnregisterCheck("ingest")

	results := hc.CheckHealth(context.Background())
	assert.Empty(t, results)
	assert.Equal(t, HealthStatusUnknown, hc.GetOverallStatus(results))
}
