// Package memory provides an in-process implementation of storage.Store.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/relaygate/internal/storage"
	"github.com/yndnr/relaygate/pkg/cmap"
)

// errWrongType mirrors the Redis WRONGTYPE error.
var errWrongType = errors.New("operation against a key holding the wrong kind of value")

type kind uint8

const (
	kindString kind = iota + 1
	kindHash
	kindSet
)

// entry is immutable once stored; writers replace it under the shard lock.
type entry struct {
	kind      kind
	str       string
	hash      map[string]string
	set       map[string]struct{}
	expiresAt time.Time // zero means no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// DefaultSweepInterval is how often expired entries are reclaimed.
const DefaultSweepInterval = time.Minute

// Store is a storage.Store backed by a sharded concurrent map. Expired
// entries are invisible immediately and reclaimed by a background sweep.
type Store struct {
	items  *cmap.Map[string, *entry]
	now    func() time.Time
	closed atomic.Bool

	sweepInterval time.Duration
	stopCh        chan struct{}
	doneCh        chan struct{}
	stopOnce      sync.Once
}

// Option configures the Store.
type Option func(*Store)

// WithClock sets the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithSweepInterval sets the background sweep period. Zero or negative
// disables the sweep; expired entries then stay until overwritten or Sweep
// is called.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) {
		s.sweepInterval = d
	}
}

// New creates a new in-memory store and starts its sweep loop.
func New(opts ...Option) *Store {
	s := &Store{
		items:         cmap.New[string, *entry](),
		now:           time.Now,
		sweepInterval: DefaultSweepInterval,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.sweepInterval > 0 {
		go s.sweepLoop()
	} else {
		close(s.doneCh)
	}
	return s
}

var _ storage.Store = (*Store)(nil)

func (s *Store) check(ctx context.Context, op string) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return storage.Unavailable(op, err)
	}
	return nil
}

// load returns a live entry of the given kind.
func (s *Store) load(key string, k kind) (*entry, error) {
	e, ok := s.items.Get(key)
	if !ok || e.expired(s.now()) {
		return nil, storage.ErrKeyNotFound
	}
	if e.kind != k {
		return nil, errWrongType
	}
	return e, nil
}

func (s *Store) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

// Get returns a string value.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := s.check(ctx, "get"); err != nil {
		return "", err
	}
	e, err := s.load(key, kindString)
	if err != nil {
		return "", err
	}
	return e.str, nil
}

// SetEX stores a string value with an expiry.
func (s *Store) SetEX(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.check(ctx, "set"); err != nil {
		return err
	}
	s.items.Set(key, &entry{kind: kindString, str: value, expiresAt: s.expiry(ttl)})
	return nil
}

// SetNX stores a string value only if the key is absent or expired.
func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := s.check(ctx, "setnx"); err != nil {
		return false, err
	}
	fresh := &entry{kind: kindString, str: value, expiresAt: s.expiry(ttl)}
	now := s.now()
	stored := s.items.Upsert(key, fresh, func(existing *entry, exists bool) *entry {
		if exists && !existing.expired(now) {
			return existing
		}
		return fresh
	})
	return stored == fresh, nil
}

// Del deletes a key and reports whether a live key was deleted.
func (s *Store) Del(ctx context.Context, key string) (bool, error) {
	if err := s.check(ctx, "del"); err != nil {
		return false, err
	}
	e, ok := s.items.Pop(key)
	return ok && !e.expired(s.now()), nil
}

// HGetAll returns all fields of a hash.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if err := s.check(ctx, "hgetall"); err != nil {
		return nil, err
	}
	e, err := s.load(key, kindHash)
	if err != nil {
		return nil, err
	}
	return copyHash(e.hash), nil
}

// HSetEX replaces a hash and sets its expiry.
func (s *Store) HSetEX(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if err := s.check(ctx, "hset"); err != nil {
		return err
	}
	s.items.Set(key, &entry{kind: kindHash, hash: copyHash(fields), expiresAt: s.expiry(ttl)})
	return nil
}

// HConsume atomically reads and deletes a hash. The shard lock held by Pop
// makes the read and the delete a single step.
func (s *Store) HConsume(ctx context.Context, key string) (map[string]string, error) {
	if err := s.check(ctx, "hconsume"); err != nil {
		return nil, err
	}
	e, ok := s.items.Pop(key)
	if !ok || e.expired(s.now()) {
		return nil, storage.ErrKeyNotFound
	}
	if e.kind != kindHash {
		return nil, errWrongType
	}
	return copyHash(e.hash), nil
}

// SAdd adds members to a set.
func (s *Store) SAdd(ctx context.Context, key string, members ...string) error {
	if err := s.check(ctx, "sadd"); err != nil {
		return err
	}
	var typeErr error
	s.items.Update(key, func(existing *entry, exists bool) *entry {
		next := &entry{kind: kindSet, set: make(map[string]struct{}, len(members))}
		if exists {
			if existing.kind != kindSet {
				typeErr = errWrongType
				return existing
			}
			for m := range existing.set {
				next.set[m] = struct{}{}
			}
		}
		for _, m := range members {
			next.set[m] = struct{}{}
		}
		return next
	})
	return typeErr
}

// SRem removes members from a set.
func (s *Store) SRem(ctx context.Context, key string, members ...string) error {
	if err := s.check(ctx, "srem"); err != nil {
		return err
	}
	e, ok := s.items.Get(key)
	if !ok {
		return nil
	}
	if e.kind != kindSet {
		return errWrongType
	}
	s.items.Update(key, func(existing *entry, exists bool) *entry {
		next := &entry{kind: kindSet, set: make(map[string]struct{})}
		if exists && existing.kind == kindSet {
			for m := range existing.set {
				next.set[m] = struct{}{}
			}
		}
		for _, m := range members {
			delete(next.set, m)
		}
		return next
	})
	return nil
}

// SMembers returns the members of a set in sorted order.
func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	if err := s.check(ctx, "smembers"); err != nil {
		return nil, err
	}
	e, err := s.load(key, kindSet)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	members := make([]string, 0, len(e.set))
	for m := range e.set {
		members = append(members, m)
	}
	sort.Strings(members)
	return members, nil
}

// Ping checks the store is open.
func (s *Store) Ping(ctx context.Context) error {
	return s.check(ctx, "ping")
}

// Close stops the sweep and marks the store closed. Subsequent operations
// return storage.ErrClosed.
func (s *Store) Close() error {
	s.closed.Store(true)
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
	return nil
}

// Len returns the number of stored keys, including expired ones not yet
// reclaimed.
func (s *Store) Len() int {
	return s.items.Count()
}

// Sweep removes expired entries and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.now()
	return s.reclaim(s.expiredKeys(now), now)
}

func (s *Store) expiredKeys(now time.Time) []string {
	var keys []string
	s.items.Range(func(key string, e *entry) bool {
		if e.expired(now) {
			keys = append(keys, key)
		}
		return true
	})
	return keys
}

// reclaim deletes keys that are still expired. A key rewritten since it
// was collected holds a new entry and survives.
func (s *Store) reclaim(keys []string, now time.Time) int {
	removed := 0
	for _, key := range keys {
		if s.items.DeleteIf(key, func(e *entry) bool { return e.expired(now) }) {
			removed++
		}
	}
	return removed
}

func (s *Store) sweepLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopCh:
			return
		}
	}
}

func copyHash(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
