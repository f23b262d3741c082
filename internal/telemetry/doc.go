// Package telemetry installs the global OpenTelemetry tracer provider.
//
// Spans are exported over OTLP/HTTP when tracing.enabled is set and an
// endpoint is configured. Otherwise Setup leaves the no-op provider in place.
package telemetry
