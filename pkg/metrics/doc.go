// Package metrics exposes Prometheus collectors for scan diagnostics and
// the optional /metrics endpoint.
package metrics
