// Package badgerstore implements storage.Store on an embedded Badger database.
package badgerstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/fxamacker/cbor/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/relaygate/internal/storage"
)

// Key prefixes separate the value kinds inside one Badger keyspace.
var (
	prefixValue  = []byte("v/")
	prefixMember = []byte("m/")
)

const (
	kindString uint8 = iota + 1
	kindHash
)

// DefaultGCInterval is the value log GC period when none is configured.
const DefaultGCInterval = 10 * time.Minute

// maxConflictRetries bounds optimistic transaction retries.
const maxConflictRetries = 16

// Config holds the Badger settings.
type Config struct {
	// Dir is the data directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps all data in memory (tests).
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// GCInterval is the value log GC period.
	GCInterval time.Duration

	// GCThreshold is the discard ratio passed to RunValueLogGC.
	GCThreshold float64
}

// record is the CBOR-encoded value stored under a v/ key.
type record struct {
	Kind uint8             `cbor:"1,keyasint"`
	Str  string            `cbor:"2,keyasint,omitempty"`
	Hash map[string]string `cbor:"3,keyasint,omitempty"`
}

// Store is a storage.Store backed by Badger.
type Store struct {
	db     *badger.DB
	cfg    Config
	logger *slog.Logger
	closed atomic.Bool

	lastGCTime atomic.Int64 // Unix milliseconds

	stopCh chan struct{}
	doneCh chan struct{}
}

var _ storage.Store = (*Store)(nil)

// Open opens (or creates) a Badger store and starts its GC loop.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badgerstore: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = DefaultGCInterval
	}
	if cfg.GCThreshold <= 0 || cfg.GCThreshold >= 1 {
		cfg.GCThreshold = 0.5
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.SyncWrites = cfg.SyncWrites
	opts.DetectConflicts = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open db: %w", err)
	}

	s := &Store{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go s.gcLoop()

	logger.Info("badger store started",
		"dir", cfg.Dir,
		"in_memory", cfg.InMemory,
		"gc_interval", cfg.GCInterval)

	return s, nil
}

func valueKey(key string) []byte {
	return append(append([]byte{}, prefixValue...), key...)
}

func memberPrefix(key string) []byte {
	p := append(append([]byte{}, prefixMember...), key...)
	return append(p, 0)
}

func memberKey(key, member string) []byte {
	return append(memberPrefix(key), member...)
}

func (s *Store) check(ctx context.Context, op string) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return storage.Unavailable(op, err)
	}
	return nil
}

// update runs fn in a read-write transaction, retrying on write conflicts.
// A conflicting transaction commits nothing, so a retry observes the
// winner's effects.
func (s *Store) update(op string, fn func(txn *badger.Txn) error) error {
	for i := 0; i < maxConflictRetries; i++ {
		err := s.db.Update(fn)
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
	return fmt.Errorf("badgerstore: %s: %w", op, badger.ErrConflict)
}

func readRecord(txn *badger.Txn, key string) (*record, error) {
	item, err := txn.Get(valueKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec record
	err = item.Value(func(val []byte) error {
		return cbor.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: decode %q: %w", key, err)
	}
	return &rec, nil
}

func writeRecord(txn *badger.Txn, key string, rec *record, ttl time.Duration) error {
	data, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("badgerstore: encode %q: %w", key, err)
	}
	e := badger.NewEntry(valueKey(key), data)
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	return txn.SetEntry(e)
}

func wrongType(key string) error {
	return fmt.Errorf("badgerstore: key %q holds the wrong kind of value", key)
}

// Get returns a string value.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := s.check(ctx, "get"); err != nil {
		return "", err
	}

	var value string
	err := s.db.View(func(txn *badger.Txn) error {
		rec, err := readRecord(txn, key)
		if err != nil {
			return err
		}
		if rec.Kind != kindString {
			return wrongType(key)
		}
		value = rec.Str
		return nil
	})
	return value, err
}

// SetEX stores a string value with an expiry.
func (s *Store) SetEX(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.check(ctx, "set"); err != nil {
		return err
	}
	return s.update("set", func(txn *badger.Txn) error {
		return writeRecord(txn, key, &record{Kind: kindString, Str: value}, ttl)
	})
}

// SetNX stores a string value only if the key is absent.
func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := s.check(ctx, "setnx"); err != nil {
		return false, err
	}

	var stored bool
	err := s.update("setnx", func(txn *badger.Txn) error {
		stored = false
		_, err := txn.Get(valueKey(key))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		stored = true
		return writeRecord(txn, key, &record{Kind: kindString, Str: value}, ttl)
	})
	return stored, err
}

// Del deletes a key and reports whether it existed.
func (s *Store) Del(ctx context.Context, key string) (bool, error) {
	if err := s.check(ctx, "del"); err != nil {
		return false, err
	}

	var deleted bool
	err := s.update("del", func(txn *badger.Txn) error {
		deleted = false
		_, err := txn.Get(valueKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		deleted = true
		return txn.Delete(valueKey(key))
	})
	return deleted, err
}

// HGetAll returns all fields of a hash.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if err := s.check(ctx, "hgetall"); err != nil {
		return nil, err
	}

	var fields map[string]string
	err := s.db.View(func(txn *badger.Txn) error {
		rec, err := readRecord(txn, key)
		if err != nil {
			return err
		}
		if rec.Kind != kindHash {
			return wrongType(key)
		}
		fields = rec.Hash
		return nil
	})
	if err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]string{}
	}
	return fields, nil
}

// HSetEX replaces a hash and sets its expiry.
func (s *Store) HSetEX(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if err := s.check(ctx, "hsetex"); err != nil {
		return err
	}
	return s.update("hsetex", func(txn *badger.Txn) error {
		return writeRecord(txn, key, &record{Kind: kindHash, Hash: fields}, ttl)
	})
}

// HConsume reads and deletes a hash in one conflict-checked transaction.
// Of several concurrent consumers only one commits; the others retry and
// find the key gone.
func (s *Store) HConsume(ctx context.Context, key string) (map[string]string, error) {
	if err := s.check(ctx, "hconsume"); err != nil {
		return nil, err
	}

	var fields map[string]string
	err := s.update("hconsume", func(txn *badger.Txn) error {
		fields = nil
		rec, err := readRecord(txn, key)
		if err != nil {
			return err
		}
		if rec.Kind != kindHash {
			return wrongType(key)
		}
		fields = rec.Hash
		return txn.Delete(valueKey(key))
	})
	if err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]string{}
	}
	return fields, nil
}

// SAdd adds members to a set. Each member is its own key so adds from
// different writers never conflict.
func (s *Store) SAdd(ctx context.Context, key string, members ...string) error {
	if err := s.check(ctx, "sadd"); err != nil {
		return err
	}
	return s.update("sadd", func(txn *badger.Txn) error {
		for _, m := range members {
			if err := txn.Set(memberKey(key, m), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// SRem removes members from a set.
func (s *Store) SRem(ctx context.Context, key string, members ...string) error {
	if err := s.check(ctx, "srem"); err != nil {
		return err
	}
	return s.update("srem", func(txn *badger.Txn) error {
		for _, m := range members {
			if err := txn.Delete(memberKey(key, m)); err != nil {
				return err
			}
		}
		return nil
	})
}

// SMembers returns the members of a set in key order.
func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	if err := s.check(ctx, "smembers"); err != nil {
		return nil, err
	}

	prefix := memberPrefix(key)
	members := []string{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().Key()
			members = append(members, string(bytes.TrimPrefix(k, prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(members)
	return members, nil
}

// Ping reports whether the database is open.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.check(ctx, "ping"); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return storage.ErrClosed
	}
	return nil
}

// GC runs value log garbage collection until nothing more can be rewritten.
func (s *Store) GC() error {
	start := time.Now()
	runs := 0
	for {
		err := s.db.RunValueLogGC(s.cfg.GCThreshold)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			break
		}
		if err != nil {
			return fmt.Errorf("badgerstore: gc: %w", err)
		}
		runs++
	}

	s.lastGCTime.Store(time.Now().UnixMilli())
	s.logger.Debug("gc completed", "rewrites", runs, "elapsed", time.Since(start))
	return nil
}

// Close stops the GC loop and closes the database.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(s.stopCh)
	<-s.doneCh

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("badgerstore: close db: %w", err)
	}

	s.logger.Info("badger store closed")
	return nil
}

// Collectors returns Prometheus collectors reporting the database size.
func (s *Store) Collectors() []prometheus.Collector {
	size := func(pick func(lsm, vlog int64) int64) func() float64 {
		return func() float64 {
			if s.closed.Load() {
				return 0
			}
			return float64(pick(s.db.Size()))
		}
	}

	return []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "relaygate",
			Subsystem: "badger",
			Name:      "lsm_size_bytes",
			Help:      "Badger LSM tree size in bytes",
		}, size(func(lsm, _ int64) int64 { return lsm })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "relaygate",
			Subsystem: "badger",
			Name:      "value_log_size_bytes",
			Help:      "Badger value log size in bytes",
		}, size(func(_, vlog int64) int64 { return vlog })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "relaygate",
			Subsystem: "badger",
			Name:      "last_gc_timestamp_seconds",
			Help:      "Unix timestamp of the last value log GC",
		}, func() float64 { return float64(s.lastGCTime.Load()) / 1000.0 }),
	}
}

func (s *Store) gcLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.GC(); err != nil {
				s.logger.Error("auto gc failed", "error", err)
			}
		case <-s.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
