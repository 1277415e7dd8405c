package relayclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultRefreshSkew is how long before expiry a cached token is replaced.
const DefaultRefreshSkew = 5 * time.Second

// Token is a bearer token and its expiry. A zero ExpiresAt never expires.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// FetchFunc obtains a fresh token for purpose, e.g. from the identity authority.
type FetchFunc func(ctx context.Context, purpose string) (Token, error)

// TokenSource hands out cached tokens and refetches them on demand: when
// none is cached, when the cached one is about to expire, or after
// Invalidate. Concurrent callers for the same purpose share one fetch.
type TokenSource struct {
	fetch FetchFunc
	skew  time.Duration
	now   func() time.Time

	mu     sync.Mutex
	tokens map[string]Token
	// gens counts Invalidate calls per purpose. A fetch only caches its
	// result if no Invalidate happened while it ran.
	gens   map[string]uint64
	group  singleflight.Group
}

// TokenSourceOption configures a TokenSource.
type TokenSourceOption func(*TokenSource)

// WithRefreshSkew overrides DefaultRefreshSkew.
func WithRefreshSkew(d time.Duration) TokenSourceOption {
	return func(s *TokenSource) {
		s.skew = d
	}
}

// WithTokenClock sets the time source.
func WithTokenClock(now func() time.Time) TokenSourceOption {
	return func(s *TokenSource) {
		s.now = now
	}
}

// NewTokenSource wraps fetch with caching and request collapsing.
func NewTokenSource(fetch FetchFunc, opts ...TokenSourceOption) *TokenSource {
	s := &TokenSource{
		fetch:  fetch,
		skew:   DefaultRefreshSkew,
		now:    time.Now,
		tokens: make(map[string]Token),
		gens:   make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Token returns a usable token for purpose.
func (s *TokenSource) Token(ctx context.Context, purpose string) (string, error) {
	if tok, ok := s.cached(purpose); ok {
		return tok.Value, nil
	}

	ch := s.group.DoChan(purpose, func() (any, error) {
		if tok, ok := s.cached(purpose); ok {
			return tok, nil
		}
		s.mu.Lock()
		gen := s.gens[purpose]
		s.mu.Unlock()

		// Detached so one caller's cancellation does not fail the others.
		tok, err := s.fetch(context.WithoutCancel(ctx), purpose)
		if err != nil {
			return Token{}, err
		}
		if tok.Value == "" {
			return Token{}, fmt.Errorf("relayclient: empty token for %q", purpose)
		}
		s.mu.Lock()
		if s.gens[purpose] == gen {
			s.tokens[purpose] = tok
		}
		s.mu.Unlock()
		return tok, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", fmt.Errorf("relayclient: fetch token: %w", res.Err)
		}
		return res.Val.(Token).Value, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate drops the cached token for purpose, typically after the server
// rejected it. A fetch already in flight is not restarted: callers keep
// joining it, but its result is handed out without being cached, so the
// call after that fetches again.
func (s *TokenSource) Invalidate(purpose string) {
	s.mu.Lock()
	delete(s.tokens, purpose)
	s.gens[purpose]++
	s.mu.Unlock()
}

func (s *TokenSource) cached(purpose string) (Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[purpose]
	if !ok {
		return Token{}, false
	}
	if !tok.ExpiresAt.IsZero() && !s.now().Add(s.skew).Before(tok.ExpiresAt) {
		delete(s.tokens, purpose)
		return Token{}, false
	}
	return tok, true
}
