package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// InstrumentationName is the name used for OTEL instrumentation.
	InstrumentationName = "github.com/fyrsmithlabs/sketchd/internal/pipeline"
)

// Stage outcomes recorded on the transitions counter.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeStale     = "stale"
)

// Metrics provides OpenTelemetry metrics for the pipeline.
type Metrics struct {
	// Counters
	stageTransitionsTotal metric.Int64Counter
	staleDiscardedTotal   metric.Int64Counter
	shapesMergedTotal     metric.Int64Counter
	strokesRepairedTotal  metric.Int64Counter

	// Histograms
	stageDuration metric.Float64Histogram

	initialized bool
}

// NewMetrics creates a new Metrics instance with the provided meter.
// If meter is nil, uses the global meter provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	m := &Metrics{}
	var err error

	m.stageTransitionsTotal, err = meter.Int64Counter(
		"pipeline.stage.transitions.total",
		metric.WithDescription("Total number of stage completions by stage and outcome"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	m.staleDiscardedTotal, err = meter.Int64Counter(
		"pipeline.stale.discarded.total",
		metric.WithDescription("Total number of completions discarded for a stale sketch revision"),
		metric.WithUnit("{completion}"),
	)
	if err != nil {
		return nil, err
	}

	m.shapesMergedTotal, err = meter.Int64Counter(
		"pipeline.shapes.merged.total",
		metric.WithDescription("Total number of shape merges performed by grouping"),
		metric.WithUnit("{merge}"),
	)
	if err != nil {
		return nil, err
	}

	m.strokesRepairedTotal, err = meter.Int64Counter(
		"pipeline.strokes.repaired.total",
		metric.WithDescription("Total number of extra strokes removed from shapes by verification"),
		metric.WithUnit("{stroke}"),
	)
	if err != nil {
		return nil, err
	}

	m.stageDuration, err = meter.Float64Histogram(
		"pipeline.stage.duration.seconds",
		metric.WithDescription("Duration of a pipeline stage from request to handled completion"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	m.initialized = true
	return m, nil
}

// RecordStage records a stage completion with its outcome.
func (m *Metrics) RecordStage(ctx context.Context, stage Stage, outcome string, duration time.Duration) {
	if m == nil || !m.initialized {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("stage", string(stage)),
		attribute.String("outcome", outcome),
	)
	m.stageTransitionsTotal.Add(ctx, 1, attrs)
	m.stageDuration.Record(ctx, duration.Seconds(), attrs)
	if outcome == OutcomeStale {
		m.staleDiscardedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", string(stage))))
	}
}

// RecordMerges records shape merges from one grouping pass.
func (m *Metrics) RecordMerges(ctx context.Context, merges int) {
	if m == nil || !m.initialized || merges == 0 {
		return
	}
	m.shapesMergedTotal.Add(ctx, int64(merges))
}

// RecordRepairs records strokes removed by verification.
func (m *Metrics) RecordRepairs(ctx context.Context, strokes int) {
	if m == nil || !m.initialized || strokes == 0 {
		return
	}
	m.strokesRepairedTotal.Add(ctx, int64(strokes))
}

// Tracer returns a tracer for the pipeline package.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// SpanAttributes returns common span attributes for a stage request.
func SpanAttributes(sketchID string, stage Stage, revision uint64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("sketch.id", sketchID),
		attribute.String("pipeline.stage", string(stage)),
		attribute.Int64("sketch.revision", int64(revision)),
	}
}

// StartSpan starts a new span with stage context. A nil tracer uses the
// global provider.
func StartSpan(ctx context.Context, tracer trace.Tracer, name, sketchID string, stage Stage, revision uint64, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if tracer == nil {
		tracer = Tracer()
	}
	attrs := SpanAttributes(sketchID, stage, revision)
	allOpts := append([]trace.SpanStartOption{trace.WithAttributes(attrs...)}, opts...)
	return tracer.Start(ctx, name, allOpts...)
}

// RecordError records an error on the current span.
func RecordError(ctx context.Context, err error, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err, trace.WithAttributes(attrs...))
	}
}

// SetSpanStatus sets the status on the current span.
func SetSpanStatus(ctx context.Context, code codes.Code, description string) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetStatus(code, description)
	}
}

// spanName maps a stage to its span name.
func spanName(stage Stage) string {
	switch stage {
	case StageFeaturizing:
		return "pipeline.featurize"
	case StageClassifying:
		return "pipeline.classify"
	case StageGrouping:
		return "pipeline.group"
	case StageVerifying:
		return "pipeline.verify"
	}
	return "pipeline." + string(stage)
}
