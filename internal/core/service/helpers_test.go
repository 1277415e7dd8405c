package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yndnr/relaygate/internal/core/domain"
	"github.com/yndnr/relaygate/internal/infra/keyring"
	"github.com/yndnr/relaygate/internal/storage"
	"github.com/yndnr/relaygate/internal/storage/memory"
	"github.com/yndnr/relaygate/internal/telemetry/logger"
	"github.com/yndnr/relaygate/internal/telemetry/metric"
)

const testIssuer = "romm:sfu"

var (
	testSecret  = []byte("0123456789abcdef0123456789abcdef")
	otherSecret = []byte("fedcba9876543210fedcba9876543210")
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestKeyring(t *testing.T, id string, secret []byte) *keyring.Keyring {
	t.Helper()
	k, err := keyring.NewHMACKey(id, "HS256", secret)
	if err != nil {
		t.Fatalf("NewHMACKey: %v", err)
	}
	set, err := keyring.NewSet("", k)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	return keyring.New(set)
}

// tokenSpec describes a token to mint in tests.
type tokenSpec struct {
	class    string
	sub      string
	jti      string
	name     string
	issuer   string
	audience []string
	iat      time.Time
	ttl      time.Duration
}

func sign(t *testing.T, kr *keyring.Keyring, s tokenSpec) string {
	t.Helper()
	claims := &domain.Claims{
		Type:        s.class,
		DisplayName: s.name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   s.sub,
			ID:        s.jti,
			Audience:  s.audience,
			IssuedAt:  jwt.NewNumericDate(s.iat),
			ExpiresAt: jwt.NewNumericDate(s.iat.Add(s.ttl)),
		},
	}
	raw, err := kr.Sign("", claims)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return raw
}

// confirm writes a confirmation record the way the identity authority does.
func confirm(t *testing.T, store storage.Store, rec *domain.ConfirmationRecord, ttl time.Duration) {
	t.Helper()
	if err := store.HSetEX(context.Background(), storage.AuthKey(rec.TokenID), rec.Fields(), ttl); err != nil {
		t.Fatalf("HSetEX: %v", err)
	}
}

// countingStore records every call and fails them all with err.
type countingStore struct {
	storage.Store
	calls atomic.Int64
	err   error
}

func (s *countingStore) fail() error {
	s.calls.Add(1)
	return s.err
}

func (s *countingStore) Get(context.Context, string) (string, error) { return "", s.fail() }
func (s *countingStore) SetEX(context.Context, string, string, time.Duration) error {
	return s.fail()
}
func (s *countingStore) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, s.fail()
}
func (s *countingStore) Del(context.Context, string) (bool, error) { return false, s.fail() }
func (s *countingStore) HGetAll(context.Context, string) (map[string]string, error) {
	return nil, s.fail()
}
func (s *countingStore) HSetEX(context.Context, string, map[string]string, time.Duration) error {
	return s.fail()
}
func (s *countingStore) HConsume(context.Context, string) (map[string]string, error) {
	return nil, s.fail()
}
func (s *countingStore) SAdd(context.Context, string, ...string) error { return s.fail() }
func (s *countingStore) SRem(context.Context, string, ...string) error { return s.fail() }
func (s *countingStore) SMembers(context.Context, string) ([]string, error) {
	return nil, s.fail()
}
func (s *countingStore) Ping(context.Context) error { return s.fail() }

func unavailableStore() *countingStore {
	return &countingStore{err: storage.Unavailable("test", context.DeadlineExceeded)}
}

// testEnv wires a validator against a memory store sharing one fake clock.
type testEnv struct {
	clock     *fakeClock
	store     *memory.Store
	keys      *keyring.Keyring
	metrics   *metric.Registry
	validator *TokenValidator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := newFakeClock()
	env := &testEnv{
		clock:   clock,
		store:   memory.New(memory.WithClock(clock.Now)),
		keys:    newTestKeyring(t, "k1", testSecret),
		metrics: metric.NewRegistry(),
	}
	cfg := DefaultValidatorConfig()
	cfg.Issuer = testIssuer
	env.validator = NewTokenValidator(env.keys, env.store, cfg,
		WithClock(clock.Now),
		WithLogger(logger.Discard()),
		WithMetrics(env.metrics),
	)
	return env
}

func (e *testEnv) readToken(t *testing.T, sub string) string {
	t.Helper()
	return sign(t, e.keys, tokenSpec{
		class:  "sfu:read",
		sub:    sub,
		issuer: testIssuer,
		iat:    e.clock.Now(),
		ttl:    domain.DefaultReadTokenTTL,
	})
}

// writeToken mints a write token and stores its confirmation record.
func (e *testEnv) writeToken(t *testing.T, sub, jti, displayName string) string {
	t.Helper()
	iat := e.clock.Now()
	raw := sign(t, e.keys, tokenSpec{
		class:  "sfu:write",
		sub:    sub,
		jti:    jti,
		issuer: testIssuer,
		iat:    iat,
		ttl:    domain.DefaultWriteTokenTTL,
	})
	confirm(t, e.store, &domain.ConfirmationRecord{
		Subject:     sub,
		Issuer:      testIssuer,
		TokenID:     jti,
		IssuedAt:    iat,
		ExpiresAt:   iat.Add(domain.DefaultWriteTokenTTL),
		DisplayName: displayName,
	}, domain.DefaultWriteTokenTTL+5*time.Second)
	return raw
}

func scrape(t *testing.T, r *metric.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}
