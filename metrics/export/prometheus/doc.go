// Package prometheus renders engine counters and the verify latency
// histogram in the Prometheus text exposition format.
//
// Counters are named portalauth_*_total and the histogram is
// portalauth_verify_latency_seconds. When the source is an Engine the
// output also carries portalauth_sessions gauges from the session ledger.
// Nothing is registered globally; callers mount [PrometheusExporter.Handler]
// where they like.
package prometheus
