// Package metric provides Prometheus metrics for relaygate.
//
// Metrics include:
//
//   - Token validations and one-time consumptions
//   - Identity binds and impersonation attempts
//   - Room registry operations and index pruning
//   - Internal API request counts and latency
//   - Shared store operation counts and latency
//
// Metrics are exposed at /metrics in Prometheus format.
package metric
