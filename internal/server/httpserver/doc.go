// Package httpserver serves the relaygate internal HTTP API.
//
// The router mounts the handler package behind a middleware chain:
// Recover, RequestID, Observe (metrics and audit log), RateLimit and
// InternalAuth on /internal/v1 routes. /health and /ready skip the secret;
// /metrics serves the Prometheus registry.
package httpserver
