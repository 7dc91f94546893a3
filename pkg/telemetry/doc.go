// Package telemetry bootstraps OpenTelemetry tracing for the gateway and
// exposes OTel counters for pipeline-level events. Request-level serving
// metrics live in the gateway package as Prometheus collectors; the OTel
// instruments here cover the enrichment fan-out and upstream retry behavior
// that OTLP consumers correlate with traces.
package telemetry
