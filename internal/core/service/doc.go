// Package service provides the relaygate domain services.
//
// Services hold no registry state of their own. Everything shared between
// relay nodes lives in an injected storage.Store, so any number of instances
// can run side by side.
//
// This package contains:
//
//   - TokenValidator: signature, claim and confirmation checks for relay tokens
//   - Binder: one-shot binding of a validated identity to a connection
//   - RoomRegistry: soft-consistency room name to node mapping with TTLs
//   - RoomRefresher: periodic refresh of the rooms a node hosts
//   - FederatedValidator: extension point for identities asserted by peers
//   - Gateway: the operations a relay node calls
//
// All services are safe for concurrent use.
package service
