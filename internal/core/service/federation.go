package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/yndnr/relaygate/internal/core/domain"
	"github.com/yndnr/relaygate/internal/storage"
)

// Assertion is an identity statement made by a federated peer.
type Assertion struct {
	Issuer      string
	Subject     string
	DisplayName string
	Scopes      []string
	Nonce       string
	IssuedAt    time.Time
}

// AssertionVerifier verifies assertions from one peer issuer.
type AssertionVerifier interface {
	// Issuer returns the issuer the verifier is responsible for.
	Issuer() string

	// Verify checks the assertion's authenticity and decodes it.
	Verify(ctx context.Context, raw []byte) (*Assertion, error)
}

// NonceStore remembers assertion nonces for replay protection.
type NonceStore interface {
	// Remember records nonce for issuer and reports whether it was new.
	Remember(ctx context.Context, issuer, nonce string, ttl time.Duration) (bool, error)
}

// FederationConfig holds configuration for FederatedValidator.
type FederationConfig struct {
	// TimestampWindow is the acceptable deviation of an assertion's issue
	// time from now (default: ±30s).
	TimestampWindow time.Duration

	// NonceTTL is how long nonces are remembered (default: 60s). It should
	// cover the whole timestamp window.
	NonceTTL time.Duration
}

// DefaultFederationConfig returns default configuration.
func DefaultFederationConfig() *FederationConfig {
	return &FederationConfig{
		TimestampWindow: 30 * time.Second,
		NonceTTL:        60 * time.Second,
	}
}

// FederatedValidator accepts identities asserted by registered peer issuers.
// Accepted assertions carry read-class privileges only.
type FederatedValidator struct {
	nonces NonceStore
	cfg    FederationConfig
	opts   options

	mu        sync.RWMutex
	verifiers map[string]AssertionVerifier
}

// NewFederatedValidator creates a new FederatedValidator.
func NewFederatedValidator(nonces NonceStore, cfg *FederationConfig, opts ...Option) *FederatedValidator {
	if cfg == nil {
		cfg = DefaultFederationConfig()
	}
	c := *cfg
	if c.TimestampWindow <= 0 {
		c.TimestampWindow = 30 * time.Second
	}
	if c.NonceTTL <= 0 {
		c.NonceTTL = 2 * c.TimestampWindow
	}
	return &FederatedValidator{
		nonces:    nonces,
		cfg:       c,
		opts:      buildOptions(opts),
		verifiers: make(map[string]AssertionVerifier),
	}
}

// Register adds a verifier for its issuer.
func (f *FederatedValidator) Register(v AssertionVerifier) error {
	issuer := v.Issuer()
	if issuer == "" {
		return domain.ErrInvalidArgument.WithDetails("verifier without issuer")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.verifiers[issuer]; dup {
		return domain.ErrInvalidArgument.WithDetails("issuer already registered: " + issuer)
	}
	f.verifiers[issuer] = v
	return nil
}

// Issuers returns the registered issuers in sorted order.
func (f *FederatedValidator) Issuers() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	issuers := make([]string, 0, len(f.verifiers))
	for iss := range f.verifiers {
		issuers = append(issuers, iss)
	}
	slices.Sort(issuers)
	return issuers
}

// Validate verifies an assertion from issuer and returns the asserted
// identity.
func (f *FederatedValidator) Validate(ctx context.Context, issuer string, raw []byte) (*Identity, error) {
	id, reason, err := f.validate(ctx, issuer, raw)
	if err != nil {
		f.opts.metrics.RecordAssertionRejection(reason)
		f.opts.logger.Debug("assertion rejected", "issuer", issuer, "reason", reason)
		return nil, err
	}
	return id, nil
}

func (f *FederatedValidator) validate(ctx context.Context, issuer string, raw []byte) (*Identity, string, error) {
	f.mu.RLock()
	v, ok := f.verifiers[issuer]
	f.mu.RUnlock()
	if !ok {
		return nil, "unknown_issuer", domain.ErrUnknownIssuer.WithDetails(issuer)
	}

	a, err := v.Verify(ctx, raw)
	if err != nil {
		if domain.IsDomainError(err, "") {
			return nil, validationResult(err), err
		}
		return nil, resultBadSignature, domain.ErrTokenBadSignature.WithCause(err)
	}
	if a.Issuer != issuer {
		return nil, resultWrongIssuer, domain.ErrTokenWrongIssuer
	}
	if a.Subject == "" {
		return nil, resultClaimsInvalid, domain.ErrTokenClaimsInvalid.WithDetails("missing subject")
	}
	if a.Nonce == "" {
		return nil, "missing_nonce", domain.ErrInvalidArgument.WithDetails("missing nonce")
	}

	// 1. Check timestamp window
	diff := f.opts.now().Sub(a.IssuedAt)
	if diff < 0 {
		diff = -diff
	}
	if a.IssuedAt.IsZero() || diff > f.cfg.TimestampWindow {
		return nil, "timestamp_skew", domain.ErrTimestampSkew.WithDetails("timestamp outside acceptable window")
	}

	// 2. Record the nonce; a nonce seen before is a replay
	fresh, err := f.nonces.Remember(ctx, issuer, a.Nonce, f.cfg.NonceTTL)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			return nil, "missing_nonce", err
		}
		return nil, resultStoreUnavailable, storeError(err)
	}
	if !fresh {
		return nil, "replay", domain.ErrNonceReplay.WithDetails("nonce has been used before")
	}

	return &Identity{
		subject:     a.Subject,
		displayName: a.DisplayName,
		scopes:      slices.Clone(a.Scopes),
		class:       domain.TokenClassRead,
		issuer:      a.Issuer,
	}, "", nil
}

// ============================================================================
// NonceCache - in-process NonceStore
// ============================================================================

// NonceCache is a bounded in-process NonceStore. It protects a single
// instance only; use StoreNonceStore when several instances accept the same
// assertions.
type NonceCache struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, struct{}]
}

// NewNonceCache creates a new NonceCache with the given capacity and TTL.
func NewNonceCache(capacity int, ttl time.Duration) *NonceCache {
	return &NonceCache{
		cache: expirable.NewLRU[string, struct{}](capacity, nil, ttl),
	}
}

// AddIfAbsent atomically adds a nonce if it is not already present.
// Returns true if the nonce was added.
func (c *NonceCache) AddIfAbsent(nonce string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.cache.Peek(nonce); ok {
		return false
	}
	c.cache.Add(nonce, struct{}{})
	return true
}

// Remember implements NonceStore. The cache-wide TTL applies.
func (c *NonceCache) Remember(_ context.Context, issuer, nonce string, _ time.Duration) (bool, error) {
	return c.AddIfAbsent(issuer + ":" + nonce), nil
}

// Size returns the current number of items in the cache.
func (c *NonceCache) Size() int {
	return c.cache.Len()
}

// ============================================================================
// StoreNonceStore - shared NonceStore
// ============================================================================

// StoreNonceStore keeps nonces in the shared store so every instance sees
// them.
type StoreNonceStore struct {
	store storage.Store
}

// NewStoreNonceStore creates a new StoreNonceStore.
func NewStoreNonceStore(store storage.Store) *StoreNonceStore {
	return &StoreNonceStore{store: store}
}

// Remember implements NonceStore using SetNX.
func (s *StoreNonceStore) Remember(ctx context.Context, issuer, nonce string, ttl time.Duration) (bool, error) {
	ok, err := s.store.SetNX(ctx, storage.NonceKey(issuer, nonce), "1", ttl)
	if errors.Is(err, storage.ErrInvalidKey) {
		return false, domain.ErrInvalidArgument.WithCause(err)
	}
	return ok, err
}

// ============================================================================
// JWTAssertionVerifier
// ============================================================================

// assertionClaims is the claim set of a JWT-encoded assertion.
type assertionClaims struct {
	Nonce       string   `json:"nonce"`
	DisplayName string   `json:"name,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// JWTAssertionVerifier verifies assertions encoded as signed JWTs.
type JWTAssertionVerifier struct {
	issuer string
	keys   KeySource
	parser *jwt.Parser
}

// NewJWTAssertionVerifier creates a verifier for issuer. algs restricts the
// accepted algorithms (default: DefaultAlgorithms).
func NewJWTAssertionVerifier(issuer string, keys KeySource, algs ...string) *JWTAssertionVerifier {
	if len(algs) == 0 {
		algs = DefaultAlgorithms
	}
	return &JWTAssertionVerifier{
		issuer: issuer,
		keys:   keys,
		parser: jwt.NewParser(
			jwt.WithValidMethods(slices.Clone(algs)),
			jwt.WithIssuer(issuer),
		),
	}
}

// Issuer implements AssertionVerifier.
func (v *JWTAssertionVerifier) Issuer() string {
	return v.issuer
}

// Verify implements AssertionVerifier.
func (v *JWTAssertionVerifier) Verify(_ context.Context, raw []byte) (*Assertion, error) {
	claims := &assertionClaims{}
	if _, err := v.parser.ParseWithClaims(string(raw), claims, v.keys.Keyfunc()); err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, domain.ErrTokenExpired.WithCause(err)
		case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
			return nil, domain.ErrTokenWrongIssuer.WithCause(err)
		default:
			return nil, domain.ErrTokenBadSignature.WithCause(err)
		}
	}
	if claims.IssuedAt == nil {
		return nil, domain.ErrTokenClaimsInvalid.WithDetails("missing iat")
	}

	return &Assertion{
		Issuer:      claims.Issuer,
		Subject:     claims.Subject,
		DisplayName: claims.DisplayName,
		Scopes:      claims.Scopes,
		Nonce:       claims.Nonce,
		IssuedAt:    claims.IssuedAt.Time,
	}, nil
}
