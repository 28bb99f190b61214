package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sketchd/internal/logging"
)

// Logger wraps zap.Logger with pipeline lifecycle events.
type Logger struct {
	logger *zap.Logger
}

// NewLogger creates a new Logger. If logger is nil, uses a no-op logger.
func NewLogger(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger.Named("pipeline")}
}

// Zap returns the underlying named logger for collaborating components.
func (l *Logger) Zap() *zap.Logger {
	if l == nil || l.logger == nil {
		return zap.NewNop()
	}
	return l.logger
}

// StageStarted logs a collaborator request being issued.
func (l *Logger) StageStarted(ctx context.Context, stage Stage, revision uint64) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Debug("stage started", l.baseFields(ctx, stage, revision)...)
}

// StageCompleted logs a stage completion that advanced the pipeline.
func (l *Logger) StageCompleted(ctx context.Context, stage Stage, revision uint64, duration time.Duration) {
	if l == nil || l.logger == nil {
		return
	}
	fields := l.baseFields(ctx, stage, revision)
	fields = append(fields, zap.Duration("duration", duration))
	l.logger.Info("stage completed", fields...)
}

// StaleCompletion logs a completion discarded because the sketch moved on.
func (l *Logger) StaleCompletion(ctx context.Context, stage Stage, issued, current uint64) {
	if l == nil || l.logger == nil {
		return
	}
	fields := l.baseFields(ctx, stage, issued)
	fields = append(fields, zap.Uint64("current_revision", current))
	l.logger.Debug("stale completion discarded", fields...)
}

// StageFailed logs a stage failure. The pipeline stalls until the sketch
// changes.
func (l *Logger) StageFailed(ctx context.Context, stage Stage, revision uint64, err error) {
	if l == nil || l.logger == nil {
		return
	}
	fields := l.baseFields(ctx, stage, revision)
	fields = append(fields, zap.Error(err))
	l.logger.Warn("stage failed", fields...)
}

// ShapesMerged logs the outcome of a merge pass.
func (l *Logger) ShapesMerged(ctx context.Context, revision uint64, merges, skipped, shapes int) {
	if l == nil || l.logger == nil {
		return
	}
	fields := l.baseFields(ctx, StageGrouping, revision)
	fields = append(fields,
		zap.Int("merges", merges),
		zap.Int("skipped_pairs", skipped),
		zap.Int("shapes", shapes),
	)
	l.logger.Info("initial clusters ready", fields...)
}

// Verified logs a verification pass.
func (l *Logger) Verified(ctx context.Context, revision uint64, submitted, pruned, unresolved, finalClusters int, duration time.Duration) {
	if l == nil || l.logger == nil {
		return
	}
	fields := l.baseFields(ctx, StageVerifying, revision)
	fields = append(fields,
		zap.Int("submitted", submitted),
		zap.Int("strokes_pruned", pruned),
		zap.Int("unresolved", unresolved),
		zap.Int("final_clusters", finalClusters),
		zap.Duration("duration", duration),
	)
	l.logger.Info("verification complete", fields...)
}

// NotificationDropped logs a completion notification coalesced into one
// already pending.
func (l *Logger) NotificationDropped(ctx context.Context, name string) {
	if l == nil || l.logger == nil {
		return
	}
	fields := append(logging.ContextFields(ctx), zap.String("notification", name))
	l.logger.Debug("notification coalesced", fields...)
}

// Error logs an error with context.
func (l *Logger) Error(ctx context.Context, msg string, err error, fields ...zap.Field) {
	if l == nil || l.logger == nil {
		return
	}
	allFields := logging.ContextFields(ctx)
	allFields = append(allFields, zap.Error(err))
	allFields = append(allFields, fields...)
	l.logger.Error(msg, allFields...)
}

// baseFields returns common fields for stage events. Sketch and trace
// correlation come from the context.
func (l *Logger) baseFields(ctx context.Context, stage Stage, revision uint64) []zap.Field {
	fields := []zap.Field{
		zap.String("stage", string(stage)),
		zap.Uint64("revision", revision),
	}
	return append(fields, logging.ContextFields(ctx)...)
}
