// Package memory provides in-memory storage for relaygate.
//
// It implements storage.Store on top of the sharded concurrent map in
// pkg/cmap. Every stored entry is immutable; writers replace entries under
// the owning shard's lock, which is also what makes HConsume atomic.
//
// Expiry is evaluated lazily against an injectable clock, so tests can move
// time forward without sleeping. Sweep reclaims expired entries.
//
// The memory store is process-local: it is meant for tests and for a single
// gateway instance in development, never for a multi-node deployment.
package memory
