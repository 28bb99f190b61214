// Package logging provides structured logging with OpenTelemetry integration.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Dual output (console + OpenTelemetry log bridge)
//   - Automatic context field injection (trace_id, sketch.id, sketch.revision, run.id)
//   - Level-aware sampling (errors never sampled)
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, otelProvider)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithSketchID(ctx, sk.ID)
//	ctx = logging.WithRevision(ctx, sk.Revision())
//	logger.Info(ctx, "sketch loaded", zap.Int("strokes", n))
//
// Components that take a *zap.Logger get it from Underlying and call
// ContextFields themselves.
//
// # Configuration Precedence
//
//  1. Defaults (NewDefaultConfig)
//  2. File (sketchd.yaml)
//  3. Environment variables (SKETCHD_LOGGING_*)
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
package logging
