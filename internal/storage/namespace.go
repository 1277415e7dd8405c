package storage

import (
	"context"
	"time"
)

// namespacedStore confines a Store to one key namespace.
type namespacedStore struct {
	inner     Store
	namespace string
}

// WithNamespace returns a Store that prefixes every key with namespace and
// rejects keys that could escape it.
func WithNamespace(inner Store, namespace string) Store {
	return &namespacedStore{inner: inner, namespace: namespace}
}

func (s *namespacedStore) key(key string) (string, error) {
	return Namespaced(s.namespace, key)
}

func (s *namespacedStore) Get(ctx context.Context, key string) (string, error) {
	k, err := s.key(key)
	if err != nil {
		return "", err
	}
	return s.inner.Get(ctx, k)
}

func (s *namespacedStore) SetEX(ctx context.Context, key, value string, ttl time.Duration) error {
	k, err := s.key(key)
	if err != nil {
		return err
	}
	return s.inner.SetEX(ctx, k, value, ttl)
}

func (s *namespacedStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	k, err := s.key(key)
	if err != nil {
		return false, err
	}
	return s.inner.SetNX(ctx, k, value, ttl)
}

func (s *namespacedStore) Del(ctx context.Context, key string) (bool, error) {
	k, err := s.key(key)
	if err != nil {
		return false, err
	}
	return s.inner.Del(ctx, k)
}

func (s *namespacedStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	k, err := s.key(key)
	if err != nil {
		return nil, err
	}
	return s.inner.HGetAll(ctx, k)
}

func (s *namespacedStore) HSetEX(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	k, err := s.key(key)
	if err != nil {
		return err
	}
	return s.inner.HSetEX(ctx, k, fields, ttl)
}

func (s *namespacedStore) HConsume(ctx context.Context, key string) (map[string]string, error) {
	k, err := s.key(key)
	if err != nil {
		return nil, err
	}
	return s.inner.HConsume(ctx, k)
}

func (s *namespacedStore) SAdd(ctx context.Context, key string, members ...string) error {
	k, err := s.key(key)
	if err != nil {
		return err
	}
	return s.inner.SAdd(ctx, k, members...)
}

func (s *namespacedStore) SRem(ctx context.Context, key string, members ...string) error {
	k, err := s.key(key)
	if err != nil {
		return err
	}
	return s.inner.SRem(ctx, k, members...)
}

func (s *namespacedStore) SMembers(ctx context.Context, key string) ([]string, error) {
	k, err := s.key(key)
	if err != nil {
		return nil, err
	}
	return s.inner.SMembers(ctx, k)
}

func (s *namespacedStore) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

func (s *namespacedStore) Close() error {
	return s.inner.Close()
}
