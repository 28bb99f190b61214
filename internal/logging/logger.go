package logging

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps Zap with context-aware methods.
type Logger struct {
	zap    *zap.Logger
	config *Config

	// bound holds correlation keys attached as fields by ForSketch or Stage.
	bound map[string]struct{}
}

// NewLogger creates a logger from config.
// otelProvider can be nil to disable OTEL output.
func NewLogger(cfg *Config, otelProvider log.LoggerProvider) (*Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	core, err := newDualCore(cfg, otelProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create core: %w", err)
	}

	opts := []zap.Option{}
	if cfg.Caller.Enabled {
		// Skip counts frames above the level methods; log adds one more.
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(cfg.Caller.Skip+1))
	}
	if cfg.Stacktrace.Level != 0 {
		opts = append(opts, zap.AddStacktrace(cfg.Stacktrace.Level))
	}

	zapLogger := zap.New(core, opts...)
	if len(cfg.Fields) > 0 {
		fields := make([]zap.Field, 0, len(cfg.Fields))
		for k, v := range cfg.Fields {
			fields = append(fields, zap.String(k, v))
		}
		zapLogger = zapLogger.With(fields...)
	}

	return &Logger{
		zap:    zapLogger,
		config: cfg,
	}, nil
}

// newEncoder creates JSON or console encoder.
func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = encodeLevel

	if format == "console" {
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}

// Correlation keys shared by every sketchd component.
const (
	SketchIDKey = "sketch.id"
	RevisionKey = "sketch.revision"
	StageKey    = "stage"
)

func (l *Logger) Trace(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, TraceLevel, msg, fields)
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.DebugLevel, msg, fields)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.InfoLevel, msg, fields)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.WarnLevel, msg, fields)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.ErrorLevel, msg, fields)
}

// log writes one entry. Context fields are only built for enabled levels,
// and a correlation key already bound by ForSketch or Stage is not repeated
// from the context.
func (l *Logger) log(ctx context.Context, level zapcore.Level, msg string, fields []zap.Field) {
	ce := l.zap.Check(level, msg)
	if ce == nil {
		return
	}
	ctxFields := ContextFields(ctx)
	if len(l.bound) > 0 {
		kept := ctxFields[:0]
		for _, f := range ctxFields {
			if _, ok := l.bound[f.Key]; !ok {
				kept = append(kept, f)
			}
		}
		ctxFields = kept
	}
	ce.Write(append(ctxFields, fields...)...)
}

// With returns a child logger carrying fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return l.child(l.zap.With(fields...))
}

// Named returns a child logger with a name segment appended.
func (l *Logger) Named(name string) *Logger {
	return l.child(l.zap.Named(name))
}

// ForSketch returns a child logger bound to one sketch. Its entries carry
// the sketch id even when the context does not.
func (l *Logger) ForSketch(id string) *Logger {
	c := l.child(l.zap.With(zap.String(SketchIDKey, id)))
	c.bind(SketchIDKey)
	return c
}

// Stage returns a child logger for one pipeline stage at a sketch revision.
// The bound revision wins over one found in the context, so a completion
// handled after the sketch moved on still logs the revision it was issued
// for.
func (l *Logger) Stage(stage string, revision uint64) *Logger {
	c := l.child(l.zap.With(
		zap.String(StageKey, stage),
		zap.Uint64(RevisionKey, revision),
	))
	c.bind(StageKey, RevisionKey)
	return c
}

func (l *Logger) child(z *zap.Logger) *Logger {
	c := &Logger{zap: z, config: l.config}
	if len(l.bound) > 0 {
		c.bound = make(map[string]struct{}, len(l.bound))
		for k := range l.bound {
			c.bound[k] = struct{}{}
		}
	}
	return c
}

func (l *Logger) bind(keys ...string) {
	if l.bound == nil {
		l.bound = make(map[string]struct{}, len(keys))
	}
	for _, k := range keys {
		l.bound[k] = struct{}{}
	}
}

// Enabled returns true if the given level is enabled.
func (l *Logger) Enabled(level zapcore.Level) bool {
	return l.zap.Core().Enabled(level)
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	err := l.zap.Sync()
	if err != nil && isConsoleSyncError(err) {
		return nil
	}
	return err
}

// Underlying returns the underlying zap.Logger for components that take
// one directly.
func (l *Logger) Underlying() *zap.Logger {
	return l.zap
}

// isConsoleSyncError reports the EINVAL/ENOTTY returned when syncing a
// terminal on Linux.
func isConsoleSyncError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EINVAL || errno == syscall.ENOTTY
	}
	return false
}
