// Package telemetry provides Prometheus collectors for the worker pool.
//
// Metrics are opt-in: the pool creates them only when the caller supplies a
// prometheus.Registerer, and a nil *Metrics disables collection without any
// call-site guards.
package telemetry
