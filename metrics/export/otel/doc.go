// Package otel provides OpenTelemetry metric bindings for engine counters
// and histograms.
//
// [NewExporter] registers Int64ObservableCounter instruments per metric and
// Int64ObservableGauge instruments per histogram bucket. A single callback
// reads [authcore.Engine.MetricsSnapshot] on each collection cycle. Callers
// own the MeterProvider.
package otel
