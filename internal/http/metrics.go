package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// InstrumentationName is the meter scope for HTTP metrics.
const InstrumentationName = "github.com/fyrsmithlabs/sketchd/internal/http"

// HTTPMetrics records request counts, latency and response sizes for the
// status API.
type HTTPMetrics struct {
	logger   *zap.Logger
	requests metric.Int64Counter
	latency  metric.Float64Histogram
	size     metric.Int64Histogram
	inFlight metric.Int64UpDownCounter
}

// NewHTTPMetrics creates HTTP metrics on meter. Instruments that fail to
// register are logged and skipped.
func NewHTTPMetrics(meter metric.Meter, logger *zap.Logger) *HTTPMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &HTTPMetrics{logger: logger}

	var err error
	if m.requests, err = meter.Int64Counter("sketchd.http.requests_total",
		metric.WithDescription("Total HTTP requests labeled by method, endpoint and status code"),
		metric.WithUnit("{request}"),
	); err != nil {
		m.warn("requests_total", err)
	}
	if m.latency, err = meter.Float64Histogram("sketchd.http.request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	); err != nil {
		m.warn("request_duration_seconds", err)
	}
	if m.size, err = meter.Int64Histogram("sketchd.http.response_size_bytes",
		metric.WithDescription("HTTP response body size in bytes"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(100, 500, 1000, 5000, 10000, 50000, 100000),
	); err != nil {
		m.warn("response_size_bytes", err)
	}
	if m.inFlight, err = meter.Int64UpDownCounter("sketchd.http.active_requests",
		metric.WithDescription("Number of requests being served"),
		metric.WithUnit("{request}"),
	); err != nil {
		m.warn("active_requests", err)
	}
	return m
}

func (m *HTTPMetrics) warn(instrument string, err error) {
	m.logger.Warn("failed to create http instrument", zap.String("instrument", instrument), zap.Error(err))
}

// MetricsMiddleware returns an Echo middleware that records HTTP metrics.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
				defer m.inFlight.Add(ctx, -1)
			}

			err := next(c)

			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("endpoint", normalizePath(c.Path())),
				attribute.Int("status", c.Response().Status),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.latency != nil {
				m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			if m.size != nil {
				m.size.Record(ctx, c.Response().Size, attrs)
			}
			return err
		}
	}
}

// normalizePath maps the empty path of unmatched routes to "/". Routes are
// fixed, so no parameter rewriting is needed.
func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
