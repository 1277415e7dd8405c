// Package redisstore provides the production shared store for relaygate.
//
// All gateway instances and relay nodes that share a namespace see the same
// confirmation records and room registry through this backend. Multi-step
// operations run inside MULTI/EXEC so they are atomic on the server:
//
//	HSetEX    DEL + HSET + PEXPIRE
//	HConsume  HGETALL + DEL
//
// The client never retries on its own and every call is bounded by the
// configured operation timeout. Network failures and timeouts surface as
// storage.ErrUnavailable.
package redisstore
