package storage

import (
	"context"
	"errors"
	"time"
)

// Observer receives the outcome of every store operation.
// result is one of "ok", "miss", "unavailable" or "error".
type Observer func(op, result string, elapsed time.Duration)

type instrumentedStore struct {
	inner   Store
	observe Observer
}

// Instrument wraps a Store so each operation is reported to observe.
func Instrument(inner Store, observe Observer) Store {
	if observe == nil {
		return inner
	}
	return &instrumentedStore{inner: inner, observe: observe}
}

// Result classifies an operation error for metrics and logs.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrKeyNotFound):
		return "miss"
	case IsUnavailable(err):
		return "unavailable"
	default:
		return "error"
	}
}

func (s *instrumentedStore) done(op string, start time.Time, err error) {
	s.observe(op, Result(err), time.Since(start))
}

func (s *instrumentedStore) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	v, err := s.inner.Get(ctx, key)
	s.done("get", start, err)
	return v, err
}

func (s *instrumentedStore) SetEX(ctx context.Context, key, value string, ttl time.Duration) error {
	start := time.Now()
	err := s.inner.SetEX(ctx, key, value, ttl)
	s.done("setex", start, err)
	return err
}

func (s *instrumentedStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := s.inner.SetNX(ctx, key, value, ttl)
	s.done("setnx", start, err)
	return ok, err
}

func (s *instrumentedStore) Del(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := s.inner.Del(ctx, key)
	s.done("del", start, err)
	return ok, err
}

func (s *instrumentedStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	start := time.Now()
	fields, err := s.inner.HGetAll(ctx, key)
	s.done("hgetall", start, err)
	return fields, err
}

func (s *instrumentedStore) HSetEX(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	start := time.Now()
	err := s.inner.HSetEX(ctx, key, fields, ttl)
	s.done("hsetex", start, err)
	return err
}

func (s *instrumentedStore) HConsume(ctx context.Context, key string) (map[string]string, error) {
	start := time.Now()
	fields, err := s.inner.HConsume(ctx, key)
	s.done("hconsume", start, err)
	return fields, err
}

func (s *instrumentedStore) SAdd(ctx context.Context, key string, members ...string) error {
	start := time.Now()
	err := s.inner.SAdd(ctx, key, members...)
	s.done("sadd", start, err)
	return err
}

func (s *instrumentedStore) SRem(ctx context.Context, key string, members ...string) error {
	start := time.Now()
	err := s.inner.SRem(ctx, key, members...)
	s.done("srem", start, err)
	return err
}

func (s *instrumentedStore) SMembers(ctx context.Context, key string) ([]string, error) {
	start := time.Now()
	members, err := s.inner.SMembers(ctx, key)
	s.done("smembers", start, err)
	return members, err
}

func (s *instrumentedStore) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.done("ping", start, err)
	return err
}

func (s *instrumentedStore) Close() error {
	return s.inner.Close()
}
