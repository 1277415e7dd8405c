// Package cmap provides a sharded, string-keyed concurrent map.
//
// Keys are spread over a power-of-two number of shards by a seeded
// murmur3 hash; each shard has its own RWMutex. Read-modify-write helpers
// (Update, Upsert, Pop) run under the shard lock, so a single key's
// transitions are atomic without a global lock.
//
// Usage:
//
//	m := cmap.New[string, *entry]()
//	m.Set("sfu:room:arena", e)
//	e, ok := m.Pop("sfu:room:arena")
package cmap
