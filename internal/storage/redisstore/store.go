// Package redisstore implements storage.Store on Redis using go-redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yndnr/relaygate/internal/storage"
)

// DefaultOpTimeout bounds every store operation when no timeout is configured.
const DefaultOpTimeout = 500 * time.Millisecond

// Config holds the Redis connection settings.
type Config struct {
	// URL is a redis:// or rediss:// connection URL.
	URL string

	// OpTimeout bounds each operation, including the network round trip.
	OpTimeout time.Duration

	// PoolSize overrides the go-redis default pool size when positive.
	PoolSize int
}

// Store is a storage.Store backed by Redis.
type Store struct {
	rdb       *redis.Client
	opTimeout time.Duration
	logger    *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// New creates a Redis store. It does not contact the server; use Ping to
// check reachability.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redisstore: url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redisstore: parse url: %w", err)
	}

	timeout := cfg.OpTimeout
	if timeout <= 0 {
		timeout = DefaultOpTimeout
	}

	// The caller decides whether to retry; a retried HConsume could
	// otherwise report a consumed record as missing.
	opts.MaxRetries = -1
	opts.DialTimeout = timeout
	opts.ReadTimeout = timeout
	opts.WriteTimeout = timeout
	opts.ContextTimeoutEnabled = true
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	logger.Info("redis store configured",
		"addr", opts.Addr,
		"db", opts.DB,
		"tls", opts.TLSConfig != nil,
		"op_timeout", timeout,
	)

	return &Store{
		rdb:       redis.NewClient(opts),
		opTimeout: timeout,
		logger:    logger,
	}, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// mapErr converts go-redis errors to storage errors.
func mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return storage.ErrKeyNotFound
	case errors.Is(err, redis.ErrClosed):
		return storage.ErrClosed
	}

	var rerr redis.Error
	if errors.As(err, &rerr) {
		// A reply from the server, e.g. WRONGTYPE: the store was reached.
		return fmt.Errorf("redisstore: %s: %w", op, err)
	}
	return storage.Unavailable(op, err)
}

// Get returns a string value.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	v, err := s.rdb.Get(ctx, key).Result()
	return v, mapErr("get", err)
}

// SetEX stores a string value with an expiry.
func (s *Store) SetEX(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return mapErr("set", s.rdb.Set(ctx, key, value, ttl).Err())
}

// SetNX stores a string value only if the key is absent.
func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ok, err := s.rdb.SetNX(ctx, key, value, ttl).Result()
	return ok, mapErr("setnx", err)
}

// Del deletes a key.
func (s *Store) Del(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.rdb.Del(ctx, key).Result()
	return n > 0, mapErr("del", err)
}

// HGetAll returns all fields of a hash.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, mapErr("hgetall", err)
	}
	if len(fields) == 0 {
		return nil, storage.ErrKeyNotFound
	}
	return fields, nil
}

// HSetEX replaces a hash and sets its expiry in one MULTI/EXEC block.
func (s *Store) HSetEX(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, values)
		if ttl > 0 {
			pipe.PExpire(ctx, key, ttl)
		}
		return nil
	})
	return mapErr("hsetex", err)
}

// HConsume reads and deletes a hash in one MULTI/EXEC block. The DEL reply
// decides which caller won: only the transaction that actually removed the
// key returns the fields.
func (s *Store) HConsume(ctx context.Context, key string) (map[string]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		get *redis.MapStringStringCmd
		del *redis.IntCmd
	)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.HGetAll(ctx, key)
		del = pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, mapErr("hconsume", err)
	}
	if del.Val() == 0 || len(get.Val()) == 0 {
		return nil, storage.ErrKeyNotFound
	}
	return get.Val(), nil
}

// SAdd adds members to a set.
func (s *Store) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return mapErr("sadd", s.rdb.SAdd(ctx, key, toArgs(members)...).Err())
}

// SRem removes members from a set.
func (s *Store) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return mapErr("srem", s.rdb.SRem(ctx, key, toArgs(members)...).Err())
}

// SMembers returns the members of a set.
func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	members, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, mapErr("smembers", err)
	}
	return members, nil
}

// Ping checks that Redis answers.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return mapErr("ping", s.rdb.Ping(ctx).Err())
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func toArgs(members []string) []interface{} {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return args
}
