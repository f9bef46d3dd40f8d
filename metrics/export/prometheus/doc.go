// Package prometheus renders engine metrics in the Prometheus text
// exposition format.
//
// Counters are named authcore_*_total. The login and token validation
// latency histograms are authcore_login_latency_seconds and
// authcore_validate_latency_seconds. Nothing is registered globally;
// callers mount [PrometheusExporter.Handler].
package prometheus
