// Package prometheus provides Prometheus collectors for mxauth metrics.
//
// [NewPrometheusExporter] accepts an [mxauth.AuthenticationService] and exposes an
// [http.Handler] that renders all mxauth counters and histograms in Prometheus text
// exposition format. Counter names are prefixed mxauth_*_total; the single histogram
// is mxauth_register_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate service state.
package prometheus
