// Package storage provides the shared store abstraction for relaygate.
//
// The Store interface is the only way relaygate touches shared state. It is
// namespace-isolated and offers get/set-with-expiry, atomic delete,
// atomic read-and-delete of hashes, hash read/write and index sets.
//
// Backends:
//
//   - redisstore: Redis via go-redis (production, shared across nodes)
//   - badgerstore: embedded Badger database (single gateway instance)
//   - memory: in-process maps (tests and local development)
//
// Keyspace (relative to the namespace):
//
//	auth:<token-id>          confirmation record (hash, expiring)
//	room:<room-name>         room record (hash, expiring)
//	room:index               room index (set)
//	nonce:<issuer>:<nonce>   federation replay guard (string, expiring)
package storage
