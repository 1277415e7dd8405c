package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common errors
var (
	// ErrKeyNotFound is returned when a key does not exist or has expired.
	ErrKeyNotFound = errors.New("key not found")

	// ErrUnavailable wraps every failure to reach the backing store within
	// the operation timeout, including cancellation by the caller.
	ErrUnavailable = errors.New("store unavailable")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")

	// ErrInvalidKey is returned for keys outside the allowed keyspace.
	ErrInvalidKey = errors.New("invalid key")
)

// Store is the thin accessor to the restricted key-value namespace shared by
// every relaygate instance and relay node. It carries no business logic.
//
// Keys passed to a Store are relative; implementations prefix them with the
// configured namespace so no component can address data outside it. There is
// deliberately no scan or key-listing operation: discovery goes through
// explicitly maintained index sets.
//
// Implementations must be safe for concurrent use and must never retry an
// operation internally.
type Store interface {
	// Get returns a string value. Returns ErrKeyNotFound if absent.
	Get(ctx context.Context, key string) (string, error)

	// SetEX stores a string value with an expiry. ttl must be positive.
	SetEX(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX stores a string value with an expiry only if the key is absent.
	// Reports whether the value was stored.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Del deletes a key in a single indivisible step and reports whether
	// something was deleted.
	Del(ctx context.Context, key string) (bool, error)

	// HGetAll returns all fields of a hash. Returns ErrKeyNotFound if absent.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// HSetEX replaces a hash with the given fields and sets its expiry.
	HSetEX(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error

	// HConsume atomically reads and deletes a hash. Of any number of
	// concurrent callers on the same key exactly one receives the fields;
	// the others get ErrKeyNotFound. A cancelled caller either completed
	// the operation or left the hash untouched.
	HConsume(ctx context.Context, key string) (map[string]string, error)

	// SAdd adds members to a set. Sets do not expire.
	SAdd(ctx context.Context, key string, members ...string) error

	// SRem removes members from a set.
	SRem(ctx context.Context, key string, members ...string) error

	// SMembers returns the members of a set (empty if absent).
	SMembers(ctx context.Context, key string) ([]string, error)

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}

// Keyspace segments.
const (
	segmentAuth  = "auth"
	segmentRoom  = "room"
	segmentIndex = "index"
	segmentNonce = "nonce"
)

// DefaultNamespace is the default key namespace.
const DefaultNamespace = "sfu"

// AuthKey returns the confirmation record key for a token id.
func AuthKey(tokenID string) string {
	return segmentAuth + ":" + tokenID
}

// RoomKey returns the registry key for a room.
func RoomKey(name string) string {
	return segmentRoom + ":" + name
}

// RoomIndexKey returns the key of the room index set.
func RoomIndexKey() string {
	return segmentRoom + ":" + segmentIndex
}

// NonceKey returns the replay-guard key for a federated assertion nonce.
func NonceKey(issuer, nonce string) string {
	return segmentNonce + ":" + issuer + ":" + nonce
}

// Namespaced joins a namespace and a relative key after validating both.
// Wildcard and whitespace characters are rejected so a key can never be
// interpreted as a pattern by the backing store.
func Namespaced(namespace, key string) (string, error) {
	if namespace == "" || key == "" {
		return "", fmt.Errorf("%w: empty namespace or key", ErrInvalidKey)
	}
	if strings.ContainsAny(namespace, ":*?[] \t\r\n") {
		return "", fmt.Errorf("%w: namespace %q", ErrInvalidKey, namespace)
	}
	if strings.ContainsAny(key, "*?[] \t\r\n") {
		return "", fmt.Errorf("%w: key %q", ErrInvalidKey, key)
	}
	return namespace + ":" + key, nil
}

// IsUnavailable reports whether err means the store could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrClosed)
}

// Unavailable wraps a backend failure as ErrUnavailable, keeping the cause
// visible in the message.
func Unavailable(op string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, cause)
}
