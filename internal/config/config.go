// Package config loads sketchd configuration.
//
// Values come from three layers, lowest precedence first: compiled
// defaults, an optional YAML file, and SKETCHD_* environment variables.
// Sections mirror the packages that consume them; cluster and verify own
// their option types directly, the others are mapped by the command layer.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/sketchd/internal/cluster"
	"github.com/fyrsmithlabs/sketchd/internal/verify"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete sketchd configuration.
type Config struct {
	Search    cluster.SearchConfig `koanf:"search"`
	Verify    verify.Config        `koanf:"verify"`
	Pipeline  PipelineConfig       `koanf:"pipeline"`
	Logging   LoggingConfig        `koanf:"logging"`
	Telemetry TelemetryConfig      `koanf:"telemetry"`
	Server    ServerConfig         `koanf:"server"`
	Watch     WatchConfig          `koanf:"watch"`
}

// PipelineConfig tunes the stage orchestrator.
type PipelineConfig struct {
	NotificationBuffer int `koanf:"notification_buffer"`
}

// LoggingConfig selects log level and output format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig holds the OTLP export settings.
type TelemetryConfig struct {
	Enabled    bool    `koanf:"enabled"`
	Endpoint   string  `koanf:"endpoint"`
	Protocol   string  `koanf:"protocol"` // grpc or http/protobuf
	Insecure   bool    `koanf:"insecure"`
	SampleRate float64 `koanf:"sample_rate"`
}

// ServerConfig configures the metrics and health listener used by watch mode.
type ServerConfig struct {
	Addr            string   `koanf:"addr"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// WatchConfig configures document reloading.
type WatchConfig struct {
	Debounce Duration `koanf:"debounce"`
}

// Default returns a configuration with every section populated.
func Default() *Config {
	return &Config{
		Search: cluster.DefaultSearchConfig(),
		Verify: verify.DefaultConfig(),
		Pipeline: PipelineConfig{
			NotificationBuffer: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			Endpoint:   "localhost:4317",
			Protocol:   "grpc",
			Insecure:   true,
			SampleRate: 1.0,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:9464",
			ShutdownTimeout: Duration(5 * time.Second),
		},
		Watch: WatchConfig{
			Debounce: Duration(200 * time.Millisecond),
		},
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("%w: search: %w", ErrInvalidConfig, err)
	}
	if err := c.Verify.Validate(); err != nil {
		return fmt.Errorf("%w: verify: %w", ErrInvalidConfig, err)
	}
	if c.Pipeline.NotificationBuffer < 1 {
		return fmt.Errorf("%w: pipeline.notification_buffer must be >= 1, got %d", ErrInvalidConfig, c.Pipeline.NotificationBuffer)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: logging.format must be json or console, got %q", ErrInvalidConfig, c.Logging.Format)
	}
	switch c.Telemetry.Protocol {
	case "grpc", "http/protobuf":
	default:
		return fmt.Errorf("%w: telemetry.protocol must be grpc or http/protobuf, got %q", ErrInvalidConfig, c.Telemetry.Protocol)
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("%w: telemetry.sample_rate must be between 0 and 1, got %f", ErrInvalidConfig, c.Telemetry.SampleRate)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is required", ErrInvalidConfig)
	}
	return nil
}
