package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fyrsmithlabs/docqa/internal/logging"
)

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	m := &HTTPMetrics{
		meter:  mp.Meter(httpInstrumentationName),
		logger: logging.NewNop(),
	}
	m.init()

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/api/v1/sessions/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	})

	for _, path := range []string{"/health", "/api/v1/sessions/abc", "/api/v1/sessions/def"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			found[md.Name] = md
		}
	}
	require.Contains(t, found, "docqa.http.requests_total")
	require.Contains(t, found, "docqa.http.request_duration_seconds")
	require.Contains(t, found, "docqa.http.response_size_bytes")

	sum, ok := found["docqa.http.requests_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	byEndpoint := map[string]int64{}
	for _, dp := range sum.DataPoints {
		endpoint, _ := dp.Attributes.Value(attribute.Key("endpoint"))
		status, _ := dp.Attributes.Value(attribute.Key("status"))
		if endpoint.AsString() == "/api/v1/sessions/:id" {
			assert.Equal(t, int64(http.StatusNotFound), status.AsInt64())
		}
		byEndpoint[endpoint.AsString()] += dp.Value
	}
	assert.Equal(t, map[string]int64{"/health": 1, "/api/v1/sessions/:id": 2}, byEndpoint)

	hist, ok := found["docqa.http.request_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "unmatched"},
		{"/health", "/health"},
		{"/api/v1/sessions/:id/ask", "/api/v1/sessions/:id/ask"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, normalizePath(tt.input))
	}
}
