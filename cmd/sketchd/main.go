// Sketchd runs the sketch recognition pipeline over sketch documents.
//
// Usage:
//
//	# Merge and verify a document, then print the resulting shapes
//	sketchd run --verify drawing.json
//
//	# Re-run on every save and serve /metrics and /healthz
//	sketchd watch drawing.toml
//
// Configuration is read from ~/.config/sketchd/config.yaml (or --config)
// and SKETCHD_* environment variables.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sketchd/internal/config"
	"github.com/fyrsmithlabs/sketchd/internal/logging"
	"github.com/fyrsmithlabs/sketchd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sketchd",
	Short: "Sketch recognition pipeline",
	Long: `sketchd groups the strokes of a sketch into shapes, verifies them against
a recognizer and searches for better stroke clusters.

Sketch documents are JSON or TOML files listing strokes together with the
classifier labels, grouper pairs and recognizer templates the pipeline
should use.`,
	Version:      version,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "sketchd by Fyrsmith Labs\n")
		fmt.Fprintf(out, "Version:    %s\n", version)
		fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
		fmt.Fprintf(out, "Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/sketchd/config.yaml)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

// app holds the process-wide dependencies shared by the subcommands.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
}

// setup loads configuration and initializes logging and telemetry.
//
// The logger is created first so telemetry can report degraded exporters.
// When OTEL log output is requested it is rebuilt on top of the telemetry
// logger provider.
func setup(ctx context.Context, path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logCfg, err := logging.FromSettings(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OTEL)
	if err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version),
		telemetry.WithLogger(logger.Underlying()))
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	if logCfg.Output.OTEL && tel.LoggerProvider() != nil {
		otelLogger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
		if err != nil {
			logger.Warn(ctx, "OTEL log output unavailable", zap.Error(err))
		} else {
			_ = logger.Sync()
			logger = otelLogger
		}
	}

	return &app{cfg: cfg, logger: logger, telemetry: tel}, nil
}

// Close flushes telemetry and the logger.
func (a *app) Close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := a.telemetry.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync() // Best-effort sync on shutdown
}
