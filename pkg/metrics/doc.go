// Package metrics provides the observability surface of the Veil TLS
// library: a leveled structured logger and a pluggable tracing
// abstraction.
//
// Tracing backends plug in behind the Tracer interface. The
// OpenTelemetry adapter is compiled in with the `otel` build tag;
// without it, OTelTracer degrades to a no-op and the library carries
// no OpenTelemetry dependency at runtime.
//
// Sessions never require either: a nil logger and the NoOpTracer are
// the defaults.
package metrics
