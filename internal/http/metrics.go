package http

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const httpInstrumentationName = "github.com/Noctocode/worken-ai/internal/http"

// requestMetrics records OTEL request instruments. Routes are labeled by
// template, so project and team ids never become label values.
type requestMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	size     metric.Int64Histogram
	inFlight metric.Int64UpDownCounter
}

func newRequestMetrics(meter metric.Meter) (*requestMetrics, error) {
	if meter == nil {
		meter = otel.Meter(httpInstrumentationName)
	}

	var m requestMetrics
	var err, errs error

	m.requests, err = meter.Int64Counter("worken.http.requests_total",
		metric.WithDescription("HTTP requests by method, route template, status and whether a principal was authenticated"),
		metric.WithUnit("{request}"))
	errs = errors.Join(errs, err)

	m.duration, err = meter.Float64Histogram("worken.http.request_duration_seconds",
		metric.WithDescription("HTTP request latency; chat and upload routes include upstream LLM and embedding time"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60))
	errs = errors.Join(errs, err)

	m.size, err = meter.Int64Histogram("worken.http.response_size_bytes",
		metric.WithDescription("HTTP response body size"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(100, 1000, 10000, 100000, 1000000))
	errs = errors.Join(errs, err)

	m.inFlight, err = meter.Int64UpDownCounter("worken.http.active_requests",
		metric.WithDescription("HTTP requests currently being served"),
		metric.WithUnit("{request}"))
	errs = errors.Join(errs, err)

	if errs != nil {
		return nil, errs
	}
	return &m, nil
}

// middleware renders handler errors itself so the recorded status is the
// one sent to the client.
func (m *requestMetrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			m.inFlight.Add(ctx, 1)
			defer m.inFlight.Add(ctx, -1)

			if err := next(c); err != nil {
				c.Error(err)
			}

			authenticated := principalFrom(c).UserID != ""
			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("endpoint", normalizePath(c.Path())),
				attribute.Int("status", c.Response().Status),
				attribute.Bool("authenticated", authenticated),
			)
			m.requests.Add(ctx, 1, attrs)
			m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			m.size.Record(ctx, c.Response().Size, attrs)
			return nil
		}
	}
}

func normalizePath(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}
