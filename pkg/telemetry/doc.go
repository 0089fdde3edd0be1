// Package telemetry wires OpenTelemetry for ckan-spatial.
//
// It sets up the process-wide tracer provider with an optional OTLP gRPC
// exporter and owns the meter instruments that count extent generation and
// CSW record synchronisation outcomes.
package telemetry
