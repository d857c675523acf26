// Package api implements the control interface of spec.md §4.J/§6: a
// gRPC service fronting gwconfig.Processor (ApplyConfig, GetCurrentConfig,
// GetGeneration) plus an HTTP mux for liveness, readiness and Prometheus
// scraping. It carries no transport security of its own -- the gateway
// is scoped to a single trusted management network, per spec.md's
// explicit non-goal on credential handling.
package api
