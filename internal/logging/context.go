package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if id := SketchIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String(SketchIDKey, id))
	}
	if rev, ok := RevisionFromContext(ctx); ok {
		fields = append(fields, zap.Uint64(RevisionKey, rev))
	}
	if runID := RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("run.id", runID))
	}

	return fields
}

type sketchCtxKey struct{}
type revisionCtxKey struct{}
type runCtxKey struct{}
type loggerCtxKey struct{}

// WithSketchID adds the sketch id to context.
func WithSketchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sketchCtxKey{}, id)
}

// SketchIDFromContext extracts the sketch id from context.
func SketchIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(sketchCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithRevision adds the sketch revision a request was issued for.
func WithRevision(ctx context.Context, rev uint64) context.Context {
	return context.WithValue(ctx, revisionCtxKey{}, rev)
}

// RevisionFromContext extracts the sketch revision from context.
func RevisionFromContext(ctx context.Context) (uint64, bool) {
	rev, ok := ctx.Value(revisionCtxKey{}).(uint64)
	return rev, ok
}

// WithRunID adds the id of one CLI run (one document load) to context.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runCtxKey{}, id)
}

// RunIDFromContext extracts the run id from context.
func RunIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(runCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}
