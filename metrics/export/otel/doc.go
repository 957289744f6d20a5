// Package otel publishes engine metrics through an OpenTelemetry Meter.
//
// Each counter becomes an Int64ObservableCounter and each latency bucket an
// Int64ObservableGauge. One callback reads the engine snapshot per
// collection. The caller owns the MeterProvider.
package otel
