// Package otel exposes engine counters and latency histograms as
// OpenTelemetry observable instruments.
//
// [NewOTelExporter] registers an Int64ObservableCounter per counter and an
// Int64ObservableGauge per histogram bucket; one callback reads
// [authcore.Engine.MetricsSnapshot] on each collection. The caller owns the
// MeterProvider.
package otel
