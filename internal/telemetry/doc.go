// Package telemetry wires OpenTelemetry tracing and metrics for the worken service.
//
// Traces and metrics are exported over OTLP (grpc or http/protobuf) to a
// collector. When telemetry is disabled the global no-op providers stay in
// place, so instrumented packages can always call otel.Tracer and otel.Meter.
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Observability, version), logger)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
