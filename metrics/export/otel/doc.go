// Package otel binds engine metrics to OpenTelemetry observable
// instruments.
//
// The caller owns the MeterProvider. [NewOTelExporter] only registers
// instruments and a callback that reads [portalauth.Engine.MetricsSnapshot].
package otel
