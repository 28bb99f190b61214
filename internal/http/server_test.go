package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sketchd/internal/cluster"
	"github.com/fyrsmithlabs/sketchd/internal/pipeline"
	"github.com/fyrsmithlabs/sketchd/internal/recognition"
	"github.com/fyrsmithlabs/sketchd/internal/sketch"
	"github.com/fyrsmithlabs/sketchd/internal/telemetry"
	"github.com/fyrsmithlabs/sketchd/internal/verify"
)

// stubSource is a Source with a settable last run.
type stubSource struct {
	mu        sync.Mutex
	run       *RunState
	triggered atomic.Int32
}

func (s *stubSource) LastRun() (RunState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return RunState{}, false
	}
	return *s.run, true
}

func (s *stubSource) Trigger() { s.triggered.Add(1) }

func (s *stubSource) set(run RunState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run = &run
}

func TestNewServer(t *testing.T) {
	t.Run("creates server with valid config", func(t *testing.T) {
		cfg := &Config{Addr: "127.0.0.1:9999", Version: "v1"}
		server, err := NewServer(&stubSource{}, zap.NewNop(), cfg)
		require.NoError(t, err)
		assert.NotNil(t, server.echo)
		assert.Equal(t, cfg, server.config)
	})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(&stubSource{}, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:9464", server.config.Addr)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(&stubSource{}, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when source is nil", func(t *testing.T) {
		_, err := NewServer(nil, zap.NewNop(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "source cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name      string
		run       *RunState
		tel       *telemetry.Telemetry
		status    string
		telemetry string
		lastError string
	}{
		{name: "before first run", status: "starting", telemetry: "disabled"},
		{name: "healthy run", run: &RunState{Runs: 2}, status: "ok", telemetry: "disabled"},
		{
			name:      "failed run",
			run:       &RunState{Runs: 1, Err: errors.New("classifying: boom")},
			status:    "degraded",
			telemetry: "disabled",
			lastError: "classifying: boom",
		},
		{
			name:      "telemetry enabled",
			run:       &RunState{Runs: 1},
			tel:       telemetry.NewTestTelemetry().Telemetry,
			status:    "ok",
			telemetry: "ok",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &stubSource{}
			if tt.run != nil {
				src.set(*tt.run)
			}
			var opts []Option
			if tt.tel != nil {
				opts = append(opts, WithTelemetry(tt.tel))
			}
			server, err := NewServer(src, zap.NewNop(), &Config{Addr: "127.0.0.1:0", Version: "test"}, opts...)
			require.NoError(t, err)

			rec := serve(server, http.MethodGet, "/healthz")
			assert.Equal(t, http.StatusOK, rec.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, tt.telemetry, resp.Telemetry)
			assert.Equal(t, tt.lastError, resp.LastError)
			assert.Equal(t, "test", resp.Version)
		})
	}
}

func TestHandleResult(t *testing.T) {
	src := &stubSource{}
	server := setupTestServer(t, src)

	t.Run("not found before first run", func(t *testing.T) {
		rec := serve(server, http.MethodGet, "/api/v1/result")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("returns latest run", func(t *testing.T) {
		finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		src.set(RunState{
			Document: "drawing.json",
			SketchID: "sk-1",
			Revision: 4,
			Runs:     1,
			Finished: finished,
			Shapes: []pipeline.ShapeView{
				{ID: "s1", Type: "AND", Probability: 0.9, Strokes: []sketch.StrokeID{"a", "b"}},
				{ID: "s2", Unresolved: true, Strokes: []sketch.StrokeID{"c"},
					Errors: []sketch.StructuralError{{Kind: "missing_stroke"}}},
			},
			Final: []pipeline.FinalCluster{{
				Shape:     "s1",
				Candidate: cluster.Candidate{Score: cluster.NewScore([]recognition.Result{{Symbol: "AND", FusedScore: 0.95}})},
			}},
			Report: &verify.Report{Submitted: 2, StrokesPruned: 1},
		})

		rec := serve(server, http.MethodGet, "/api/v1/result")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp ResultResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "drawing.json", resp.Document)
		assert.Equal(t, "sk-1", resp.SketchID)
		assert.Equal(t, uint64(4), resp.Revision)
		assert.True(t, finished.Equal(resp.Finished))
		require.Len(t, resp.Shapes, 2)
		assert.Equal(t, []string{"a", "b"}, resp.Shapes[0].Strokes)
		assert.Equal(t, "AND", resp.Shapes[0].Type)
		assert.True(t, resp.Shapes[1].Unresolved)
		assert.Equal(t, 1, resp.Shapes[1].Errors)
		require.Len(t, resp.FinalClusters, 1)
		assert.InDelta(t, 0.95, resp.FinalClusters[0].Score, 1e-9)
		require.NotNil(t, resp.Verification)
		assert.Equal(t, 2, resp.Verification.Submitted)
		assert.Equal(t, 1, resp.Verification.StrokesPruned)
	})
}

func TestHandleRun(t *testing.T) {
	src := &stubSource{}
	server := setupTestServer(t, src)

	rec := serve(server, http.MethodPost, "/api/v1/run")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, int32(1), src.triggered.Load())

	rec = serve(server, http.MethodGet, "/api/v1/run")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, int32(1), src.triggered.Load())
}

func TestPrometheusEndpoint(t *testing.T) {
	server := setupTestServer(t, &stubSource{})

	rec := serve(server, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sketchd_search_candidates_generated_total")
}

func TestServerLifecycle(t *testing.T) {
	server, err := NewServer(&stubSource{}, zap.NewNop(), &Config{Addr: "127.0.0.1:0"})
	require.NoError(t, err)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, server.Shutdown(ctx))

	select {
	case err := <-errChan:
		assert.True(t, err == nil || errors.Is(err, http.ErrServerClosed))
	case <-time.After(6 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func TestMiddleware(t *testing.T) {
	t.Run("adds request ID to response", func(t *testing.T) {
		server := setupTestServer(t, &stubSource{})
		rec := serve(server, http.MethodGet, "/healthz")
		assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("recovers from panic", func(t *testing.T) {
		server := setupTestServer(t, &stubSource{})
		server.echo.GET("/panic", func(c echo.Context) error {
			panic("test panic")
		})

		var rec *httptest.ResponseRecorder
		assert.NotPanics(t, func() {
			rec = serve(server, http.MethodGet, "/panic")
		})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func setupTestServer(t *testing.T, src Source) *Server {
	t.Helper()
	server, err := NewServer(src, zap.NewNop(), &Config{Addr: "127.0.0.1:0"})
	require.NoError(t, err)
	return server
}

func serve(server *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}
