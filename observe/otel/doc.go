// Package otel records every job as an OpenTelemetry span. A child job's
// span is a child of its parent's span; cancellation, joins and body panics
// are recorded as span events.
package otel
