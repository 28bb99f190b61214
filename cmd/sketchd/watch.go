package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	sketchhttp "github.com/fyrsmithlabs/sketchd/internal/http"
)

var (
	watchVerify bool
	watchSearch bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <document>",
	Short: "Re-run the pipeline whenever a sketch document changes",
	Long: `Watch a sketch document and re-run the pipeline on every change.

The status API listens on server.addr and serves /healthz, /metrics,
GET /api/v1/result and POST /api/v1/run.

Examples:
  sketchd watch --verify drawing.json`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchVerify, "verify", false, "verify and repair merged shapes")
	watchCmd.Flags().BoolVar(&watchSearch, "search", false, "search for better stroke clusters (implies --verify)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	w, err := newWatcher(a, args[0], runOptions{
		verify: watchVerify || watchSearch,
		search: watchSearch || a.cfg.Verify.SearchCandidates,
	}, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	httpLogger := a.logger.Underlying().Named("http")
	server, err := sketchhttp.NewServer(w, httpLogger,
		&sketchhttp.Config{Addr: a.cfg.Server.Addr, Version: version},
		sketchhttp.WithTelemetry(a.telemetry),
		sketchhttp.WithMetrics(sketchhttp.NewHTTPMetrics(a.telemetry.Meter(sketchhttp.InstrumentationName), httpLogger)))
	if err != nil {
		return fmt.Errorf("creating status server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return w.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	a.logger.Info(ctx, "watch stopped", zap.Int("runs", w.runCount()))
	return err
}

// watcher re-runs the pipeline over one document. Filesystem events are
// debounced; triggers that arrive during a run collapse into one more run.
type watcher struct {
	app      *app
	path     string
	opts     runOptions
	out      io.Writer
	debounce time.Duration
	trigger  chan struct{}

	mu   sync.Mutex
	last *sketchhttp.RunState
	runs int
}

func newWatcher(a *app, path string, opts runOptions, out io.Writer) (*watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	return &watcher{
		app:      a,
		path:     abs,
		opts:     opts,
		out:      out,
		debounce: a.cfg.Watch.Debounce.Duration(),
		trigger:  make(chan struct{}, 1),
	}, nil
}

// LastRun implements sketchhttp.Source.
func (w *watcher) LastRun() (sketchhttp.RunState, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last == nil {
		return sketchhttp.RunState{}, false
	}
	return *w.last, true
}

// Trigger implements sketchhttp.Source.
func (w *watcher) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

func (w *watcher) runCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runs
}

// Run runs the document once, then again after every change, until ctx is
// done. The parent directory is watched so editors that replace the file
// on save are still seen.
func (w *watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer func() {
		_ = fsw.Close() // Best-effort cleanup
	}()
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	w.app.logger.Info(ctx, "watching document",
		zap.String("document", w.path),
		zap.Duration("debounce", w.debounce))
	w.Trigger()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			watchEvents.Inc()
			if timer == nil {
				timer = time.AfterFunc(w.debounce, w.Trigger)
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.app.logger.Warn(ctx, "file watcher error", zap.Error(err))

		case <-w.trigger:
			w.runOnce(ctx)
		}
	}
}

func (w *watcher) runOnce(ctx context.Context) {
	start := time.Now()
	res, err := w.app.runDocument(ctx, w.path, w.opts)
	watchRunDuration.Observe(time.Since(start).Seconds())

	state := sketchhttp.RunState{Document: w.path, Finished: time.Now(), Err: err}
	if err != nil {
		watchRuns.WithLabelValues("failed").Inc()
		w.app.logger.Warn(ctx, "watch run failed", zap.String("document", w.path), zap.Error(err))
	} else {
		watchRuns.WithLabelValues("ok").Inc()
		state.SketchID = res.SketchID
		state.Revision = res.Revision
		state.Shapes = res.Shapes
		state.Final = res.Final
		state.Report = res.Report
		fmt.Fprintln(w.out, renderResult(res))
	}

	w.mu.Lock()
	w.runs++
	state.Runs = w.runs
	w.last = &state
	w.mu.Unlock()
}
