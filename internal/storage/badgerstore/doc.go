// Package badgerstore provides an embedded storage.Store for single-instance
// deployments.
//
// String and hash values are CBOR-encoded under "v/<key>" and carry Badger
// TTLs. Set members are stored as individual "m/<key>\x00<member>" keys so
// concurrent adds never conflict. Transactions run with conflict detection;
// HConsume relies on it for one-time consumption.
//
// Because the database is local to one process, this backend cannot be
// shared between gateway instances or relay nodes.
package badgerstore
