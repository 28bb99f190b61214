package logging

import (
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger wraps Logger with test observation capabilities.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger creates a logger for testing that records every level.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger: &Logger{
			zap:    zap.New(core),
			config: NewDefaultConfig(),
		},
		observed: observed,
	}
}

// All returns all logged entries.
func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

// FilterMessage returns entries matching message exactly.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessage(msg)
}

// Reset clears all logged entries.
func (t *TestLogger) Reset() {
	t.observed.TakeAll()
}

// AssertLogged verifies a log at level containing message was logged.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	for _, entry := range t.observed.All() {
		if entry.Level == level && strings.Contains(entry.Message, msgContains) {
			return
		}
	}
	tb.Errorf("expected log at %v containing %q, logs: %+v", level, msgContains, t.observed.All())
}

// AssertNotLogged verifies no log at level containing message was logged.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	for _, entry := range t.observed.All() {
		if entry.Level == level && strings.Contains(entry.Message, msgContains) {
			tb.Errorf("unexpected log at %v containing %q", level, msgContains)
		}
	}
}

// AssertField verifies a field with key and value exists in message.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, expected interface{}) {
	tb.Helper()
	for _, entry := range t.observed.FilterMessage(msg).All() {
		if v, ok := entry.ContextMap()[key]; ok && reflect.DeepEqual(v, expected) {
			return
		}
	}
	tb.Errorf("field %q=%v not found in message %q", key, expected, msg)
}

// AssertSketchCorrelation verifies msg carries the sketch id field exactly
// once.
func (t *TestLogger) AssertSketchCorrelation(tb testing.TB, msg, sketchID string) {
	tb.Helper()
	for _, entry := range t.observed.FilterMessage(msg).All() {
		n := 0
		for _, f := range entry.Context {
			if f.Key == SketchIDKey {
				n++
			}
		}
		if n > 1 {
			tb.Errorf("message %q carries %s %d times", msg, SketchIDKey, n)
			return
		}
	}
	t.AssertField(tb, msg, SketchIDKey, sketchID)
}

// AssertStage verifies msg was logged for stage at revision.
func (t *TestLogger) AssertStage(tb testing.TB, msg, stage string, revision uint64) {
	tb.Helper()
	for _, entry := range t.observed.FilterMessage(msg).All() {
		fields := entry.ContextMap()
		if fields[StageKey] == stage && fields[RevisionKey] == revision {
			return
		}
	}
	tb.Errorf("message %q not logged for stage %s at revision %d", msg, stage, revision)
}

// SketchEntries returns the entries correlated with one sketch, in order.
func (t *TestLogger) SketchEntries(sketchID string) []observer.LoggedEntry {
	return t.observed.Filter(func(e observer.LoggedEntry) bool {
		return e.ContextMap()[SketchIDKey] == sketchID
	}).All()
}

// AssertTraceCorrelation verifies trace_id present in message.
func (t *TestLogger) AssertTraceCorrelation(tb testing.TB, msg string) {
	tb.Helper()
	for _, entry := range t.observed.FilterMessage(msg).All() {
		for _, field := range entry.Context {
			if field.Key == "trace_id" {
				return
			}
		}
	}
	tb.Errorf("message %q missing trace_id", msg)
}
