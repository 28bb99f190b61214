// Package telemetry sets up OpenTelemetry tracing and metrics for sketchd.
//
// Spans and metrics are exported over OTLP (gRPC or HTTP) to a collector.
// The pipeline package records stage spans and counters through the
// providers installed here.
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
//	orch, err := pipeline.New(sk, collab, pcfg,
//	    pipeline.WithTracerProvider(tel.TracerProvider()))
//
// # Configuration
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc        # or http/protobuf
//	  sample_rate: 1.0
//
// Plaintext export is refused for non-loopback endpoints.
//
// # Degradation
//
// A provider that cannot be built is logged and skipped; the global no-op
// provider serves in its place and Health reports Degraded.
//
// # Testing
//
// NewTestTelemetry records spans and metrics in memory without touching the
// global providers:
//
//	tt := telemetry.NewTestTelemetry()
//	orch, _ := pipeline.New(sk, collab, pcfg,
//	    pipeline.WithTracerProvider(tt.TracerProvider()))
//	...
//	tt.AssertSpanExists(t, "pipeline.classify")
package telemetry
