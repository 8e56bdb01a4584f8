package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func TestNew_DisabledTelemetry(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, tel)

	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.Empty(t, tel.Degraded())
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""

	tel, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.Nil(t, tel.Degraded())
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestTestTelemetry_Spans(t *testing.T) {
	tel := NewTestTelemetry()

	_, span := tel.Tracer("worken.test").Start(context.Background(), "documents.ingest")
	span.SetAttributes(attribute.String("project.id", "p1"), attribute.Int("chunks", 3))
	span.End()

	tel.AssertSpanExists(t, "documents.ingest")
	tel.AssertSpanAttribute(t, "documents.ingest", "project.id", "p1")
	tel.AssertSpanAttribute(t, "documents.ingest", "chunks", int64(3))
	assert.Nil(t, tel.SpanByName("missing"))
}

func TestTestTelemetry_Metrics(t *testing.T) {
	tel := NewTestTelemetry()
	ctx := context.Background()

	counter, err := tel.Meter("worken.test").Int64Counter("worken.test.requests")
	require.NoError(t, err)
	counter.Add(ctx, 2, metricAttrs("GET"))
	counter.Add(ctx, 3, metricAttrs("POST"))

	m, ok := tel.MetricByName(ctx, "worken.test.requests")
	require.True(t, ok)
	assert.Equal(t, int64(5), SumValue(m))
	assert.Equal(t, int64(3), SumValue(m, attribute.String("method", "POST")))

	_, ok = tel.MetricByName(ctx, "worken.test.missing")
	assert.False(t, ok)
}

func TestTelemetry_ShutdownWithProviders(t *testing.T) {
	tel := NewTestTelemetry()
	_, span := tel.Tracer("worken.test").Start(context.Background(), "chat.send")
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tel.Shutdown(ctx))
	tel.AssertSpanExists(t, "chat.send")
	require.NoError(t, tel.Shutdown(ctx), "second shutdown is a no-op")
}

func metricAttrs(method string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("method", method))
}
