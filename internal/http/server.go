// Package http serves the status API of a watching sketchd process.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sketchd/internal/telemetry"
)

// Server provides HTTP endpoints for sketchd.
type Server struct {
	echo      *echo.Echo
	source    Source
	logger    *zap.Logger
	config    *Config
	telemetry *telemetry.Telemetry
	metrics   *HTTPMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Addr    string
	Version string
}

// Option configures a Server.
type Option func(*Server)

// WithTelemetry reports telemetry health on /healthz.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(s *Server) {
		s.telemetry = t
	}
}

// WithMetrics records request metrics.
func WithMetrics(m *HTTPMetrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer creates a new HTTP server.
func NewServer(source Source, logger *zap.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Addr: "127.0.0.1:9464"}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		source: source,
		logger: logger,
		config: cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Debug("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})
	if s.metrics != nil {
		e.Use(s.metrics.MetricsMiddleware())
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/result", s.handleResult)
	v1.POST("/run", s.handleRun)
}

// handleHealth reports process health. A failed last run or degraded
// telemetry makes the status "degraded"; the endpoint itself stays 200.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{
		Status:    "ok",
		Version:   s.config.Version,
		Telemetry: "disabled",
	}

	if s.telemetry != nil && s.telemetry.IsEnabled() {
		resp.Telemetry = "ok"
	}
	if s.telemetry != nil && s.telemetry.Health().Degraded {
		resp.Telemetry = "degraded"
		resp.Status = "degraded"
	}

	run, ok := s.source.LastRun()
	switch {
	case !ok:
		resp.Status = "starting"
	case run.Err != nil:
		resp.Status = "degraded"
		resp.LastError = run.Err.Error()
	}
	resp.Runs = run.Runs

	return c.JSON(http.StatusOK, resp)
}

// handleResult returns the latest run.
func (s *Server) handleResult(c echo.Context) error {
	run, ok := s.source.LastRun()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no run has completed yet")
	}
	return c.JSON(http.StatusOK, newResultResponse(run))
}

// handleRun schedules a new run.
func (s *Server) handleRun(c echo.Context) error {
	s.source.Trigger()
	s.logger.Info("run requested",
		zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)))
	return c.NoContent(http.StatusAccepted)
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.config.Addr))
	return s.echo.Start(s.config.Addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
