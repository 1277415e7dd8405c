package authority

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"

	"github.com/yndnr/relaygate/internal/core/domain"
	"github.com/yndnr/relaygate/internal/storage"
)

// DefaultRecordSlack is added to a write token's lifetime to get the
// confirmation record TTL, so the record never lapses before the token.
const DefaultRecordSlack = 5 * time.Second

// Signer signs claims with a named key. *keyring.Keyring implements it.
type Signer interface {
	Sign(kid string, claims jwt.Claims) (string, error)
}

// Config holds configuration for Minter.
type Config struct {
	// Issuer is written to the iss claim and the confirmation record.
	Issuer string

	// Audience is written to the aud claim when set.
	Audience string

	// ClassPrefix namespaces the type claim, e.g. "sfu" gives "sfu:write".
	ClassPrefix string

	// KeyID selects the signing key ("" for the default key).
	KeyID string

	// Policy supplies the token lifetimes.
	Policy domain.TokenPolicy

	// RecordSlack extends the confirmation record beyond the token expiry.
	RecordSlack time.Duration
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		ClassPrefix: "sfu",
		Policy:      domain.DefaultTokenPolicy(),
		RecordSlack: DefaultRecordSlack,
	}
}

// Request describes the token to mint.
type Request struct {
	Subject     string
	DisplayName string
	Scopes      []string
	Room        string

	// TTL overrides the class lifetime. It may only shorten it.
	TTL time.Duration
}

// Token is a minted token.
type Token struct {
	Raw       string            `json:"token"`
	Class     domain.TokenClass `json:"class"`
	TokenID   string            `json:"jti"`
	IssuedAt  time.Time         `json:"iat"`
	ExpiresAt time.Time         `json:"exp"`
}

// Minter issues relay tokens.
type Minter struct {
	signer Signer
	store  storage.Store
	cfg    Config
	now    func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Option configures a Minter.
type Option func(*Minter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Minter) {
		m.now = now
	}
}

// New creates a new Minter. store may be nil when only read tokens are minted.
func New(signer Signer, store storage.Store, cfg *Config, opts ...Option) *Minter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if c.Policy == (domain.TokenPolicy{}) {
		c.Policy = domain.DefaultTokenPolicy()
	}
	if c.RecordSlack < 0 {
		c.RecordSlack = 0
	}

	m := &Minter{
		signer:  signer,
		store:   store,
		cfg:     c,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MintRead issues a read token. No store access is involved.
func (m *Minter) MintRead(req Request) (*Token, error) {
	return m.mint(domain.TokenClassRead, req)
}

// MintWrite issues a write token and writes its confirmation record. The
// token is only returned once the record is stored.
func (m *Minter) MintWrite(ctx context.Context, req Request) (*Token, error) {
	if m.store == nil {
		return nil, fmt.Errorf("authority: write tokens need a store")
	}

	tok, err := m.mint(domain.TokenClassWrite, req)
	if err != nil {
		return nil, err
	}

	rec := &domain.ConfirmationRecord{
		Subject:     req.Subject,
		Issuer:      m.cfg.Issuer,
		TokenID:     tok.TokenID,
		IssuedAt:    tok.IssuedAt,
		ExpiresAt:   tok.ExpiresAt,
		DisplayName: req.DisplayName,
	}
	ttl := tok.ExpiresAt.Sub(tok.IssuedAt) + m.cfg.RecordSlack
	if err := m.store.HSetEX(ctx, storage.AuthKey(tok.TokenID), rec.Fields(), ttl); err != nil {
		if storage.IsUnavailable(err) {
			return nil, domain.ErrStoreUnavailable.WithCause(err)
		}
		return nil, fmt.Errorf("authority: store confirmation record: %w", err)
	}
	return tok, nil
}

// Mint issues a token of the given class.
func (m *Minter) Mint(ctx context.Context, class domain.TokenClass, req Request) (*Token, error) {
	if class == domain.TokenClassWrite {
		return m.MintWrite(ctx, req)
	}
	return m.MintRead(req)
}

func (m *Minter) mint(class domain.TokenClass, req Request) (*Token, error) {
	if req.Subject == "" {
		return nil, domain.ErrMissingArgument.WithDetails("subject is required")
	}
	if req.Room != "" {
		if err := domain.ValidateRoomName(req.Room); err != nil {
			return nil, err
		}
	}

	ttl := m.cfg.Policy.MaxTTL(class)
	if req.TTL > 0 && req.TTL < ttl {
		ttl = req.TTL
	}

	// Whole seconds, so the numeric dates on the wire match.
	now := m.now().Truncate(time.Second)
	jti, err := m.newID(now)
	if err != nil {
		return nil, fmt.Errorf("authority: generate token id: %w", err)
	}

	claims := &domain.Claims{
		Type:        class.WireValue(m.cfg.ClassPrefix),
		Scopes:      req.Scopes,
		DisplayName: req.DisplayName,
		Room:        req.Room,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   req.Subject,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if m.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.cfg.Audience}
	}

	raw, err := m.signer.Sign(m.cfg.KeyID, claims)
	if err != nil {
		return nil, fmt.Errorf("authority: sign token: %w", err)
	}

	return &Token{
		Raw:       raw,
		Class:     class,
		TokenID:   jti,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

func (m *Minter) newID(now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(now), m.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
