// Command relaygate-server runs the relaygate internal API.
//
// It validates relay auth tokens against the shared store, tracks which relay
// node hosts each room, and serves both to relay nodes over an HTTP API
// guarded by a shared secret.
//
// Usage:
//
//	relaygate-server --config /etc/relaygate/server.yaml
//	relaygate-server check-config --config /etc/relaygate/server.yaml
//
// Every setting can be overridden from the environment with the RELAYGATE_
// prefix, using "__" between sections: RELAYGATE_STORE__REDIS__HOST=redis.
package main
