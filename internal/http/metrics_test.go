package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Noctocode/worken-ai/internal/access"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestRequestMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := newRequestMetrics(mp.Meter(httpInstrumentationName))
	require.NoError(t, err)

	e := echo.New()
	e.Use(m.middleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/api/v1/projects/:id", func(c echo.Context) error {
		c.Set(principalKey, access.Principal{UserID: "u-1"})
		return echo.NewHTTPError(http.StatusNotFound, "Project "+c.Param("id")+" not found")
	})

	for _, path := range []string{"/health", "/api/v1/projects/8c1f", "/api/v1/projects/9d2a"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	metrics := collect(t, reader)

	requests, ok := metrics["worken.http.requests_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok, "requests counter not found")
	byEndpoint := make(map[string]int64)
	for _, dp := range requests.DataPoints {
		endpoint, _ := dp.Attributes.Value("endpoint")
		status, _ := dp.Attributes.Value("status")
		authenticated, _ := dp.Attributes.Value("authenticated")
		byEndpoint[endpoint.AsString()] += dp.Value

		switch endpoint.AsString() {
		case "/api/v1/projects/:id":
			assert.EqualValues(t, http.StatusNotFound, status.AsInt64())
			assert.True(t, authenticated.AsBool())
		case "/health":
			assert.EqualValues(t, http.StatusOK, status.AsInt64())
			assert.False(t, authenticated.AsBool())
		}
	}
	assert.Equal(t, map[string]int64{
		"/health":              1,
		"/api/v1/projects/:id": 2,
	}, byEndpoint)

	duration, ok := metrics["worken.http.request_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok, "duration histogram not found")
	var observed uint64
	for _, dp := range duration.DataPoints {
		observed += dp.Count
	}
	assert.EqualValues(t, 3, observed)

	assert.Contains(t, metrics, "worken.http.response_size_bytes")

	active, ok := metrics["worken.http.active_requests"].Data.(metricdata.Sum[int64])
	require.True(t, ok, "active requests gauge not found")
	var inFlight int64
	for _, dp := range active.DataPoints {
		inFlight += dp.Value
	}
	assert.Zero(t, inFlight)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "unmatched"},
		{"/health", "/health"},
		{"/api/v1/projects/:id", "/api/v1/projects/:id"},
		{"/api/v1/teams/:id/members/:memberId", "/api/v1/teams/:id/members/:memberId"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, normalizePath(tt.input), tt.input)
	}
}
