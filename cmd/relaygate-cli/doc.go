// Package main provides the entry point for relaygate-cli.
//
// The CLI talks to a relaygate server over its internal API:
//
//   - Token verification (peek or consume) and local minting for development
//   - Room listing, lookup, announcement (with keepalive) and removal
//   - Internal secret generation and hashing
//   - Connection profiles in ~/.relaygate/cli.yaml
//
// Usage:
//
//	relaygate-cli [global flags] command [flags] [args]
//	relaygate-cli -o json room list
//	relaygate-cli token verify --peek eyJhbGciOi...
//	relaygate-cli secret generate --hash
package main
