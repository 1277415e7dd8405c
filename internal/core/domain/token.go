package domain

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClass is a token's declared privilege tier.
type TokenClass string

const (
	// TokenClassRead tokens are accepted on signature validity alone.
	TokenClassRead TokenClass = "read"

	// TokenClassWrite tokens additionally require a confirmation record.
	TokenClassWrite TokenClass = "write"
)

// Default lifetime policy. Only the ordering write ≪ read is load-bearing.
const (
	DefaultWriteTokenTTL = 30 * time.Second
	DefaultReadTokenTTL  = 15 * time.Minute
)

// ParseTokenClass parses the "type" claim. Both the bare form ("write") and
// the namespaced form used by the minting backend ("sfu:write") are accepted.
func ParseTokenClass(s string) (TokenClass, bool) {
	if idx := strings.LastIndexByte(s, ':'); idx >= 0 {
		s = s[idx+1:]
	}
	switch TokenClass(strings.ToLower(s)) {
	case TokenClassRead:
		return TokenClassRead, true
	case TokenClassWrite:
		return TokenClassWrite, true
	default:
		return "", false
	}
}

// WireValue returns the namespaced claim value for this class.
func (c TokenClass) WireValue(prefix string) string {
	if prefix == "" {
		return string(c)
	}
	return prefix + ":" + string(c)
}

// Claims is the claim set carried by relay access tokens.
type Claims struct {
	// Type carries the token class ("sfu:read" / "sfu:write").
	Type string `json:"type"`

	// Scopes is the optional scope list.
	Scopes []string `json:"scopes,omitempty"`

	// DisplayName is the optional display name.
	DisplayName string `json:"name,omitempty"`

	// Room optionally pins the token to a single room.
	Room string `json:"room,omitempty"`

	jwt.RegisteredClaims
}

// Class returns the parsed token class.
func (c *Claims) Class() (TokenClass, bool) {
	return ParseTokenClass(c.Type)
}

// TokenPolicy bounds token lifetimes per class.
type TokenPolicy struct {
	WriteMaxTTL time.Duration
	ReadMaxTTL  time.Duration
}

// DefaultTokenPolicy returns the default lifetime policy.
func DefaultTokenPolicy() TokenPolicy {
	return TokenPolicy{
		WriteMaxTTL: DefaultWriteTokenTTL,
		ReadMaxTTL:  DefaultReadTokenTTL,
	}
}

// MaxTTL returns the maximum lifetime for the class.
func (p TokenPolicy) MaxTTL(class TokenClass) time.Duration {
	if class == TokenClassWrite {
		return p.WriteMaxTTL
	}
	return p.ReadMaxTTL
}

// Check validates claim invariants that the signature check does not cover:
// a subject, a known class, exp strictly after iat, a lifetime within the
// class bound, and a token id on write tokens.
func (p TokenPolicy) Check(c *Claims) (TokenClass, error) {
	class, ok := c.Class()
	if !ok {
		return "", ErrTokenClaimsInvalid.WithDetails("unknown token class")
	}
	if c.Subject == "" {
		return "", ErrTokenClaimsInvalid.WithDetails("missing subject")
	}
	if c.IssuedAt == nil || c.ExpiresAt == nil {
		return "", ErrTokenClaimsInvalid.WithDetails("missing iat or exp")
	}
	lifetime := c.ExpiresAt.Sub(c.IssuedAt.Time)
	if lifetime <= 0 {
		return "", ErrTokenClaimsInvalid.WithDetails("exp not after iat")
	}
	if max := p.MaxTTL(class); max > 0 && lifetime > max {
		return "", ErrTokenClaimsInvalid.WithDetails("lifetime exceeds " + string(class) + " policy")
	}
	if class == TokenClassWrite && c.ID == "" {
		return "", ErrTokenClaimsInvalid.WithDetails("write token without jti")
	}
	return class, nil
}

// MaskToken masks a JWT for safe logging, keeping the first and last few
// characters of the signature segment.
func MaskToken(token string) string {
	idx := strings.LastIndexByte(token, '.')
	if idx < 0 || len(token)-idx-1 < 8 {
		return "***REDACTED***"
	}
	sig := token[idx+1:]
	return "jwt:" + sig[:3] + "..." + sig[len(sig)-3:]
}
