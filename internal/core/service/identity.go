package service

import (
	"slices"
	"time"

	"github.com/yndnr/relaygate/internal/core/domain"
)

// Identity is the output of a successful token validation. Every field comes
// from the verified token or its confirmation record; nothing is taken from
// the client.
type Identity struct {
	subject     string
	displayName string
	scopes      []string
	class       domain.TokenClass
	tokenID     string
	issuer      string
	room        string
	expiresAt   time.Time
}

// Subject returns the authenticated subject.
func (i *Identity) Subject() string { return i.subject }

// DisplayName returns the display name, possibly empty.
func (i *Identity) DisplayName() string { return i.displayName }

// Scopes returns a copy of the scope list.
func (i *Identity) Scopes() []string { return slices.Clone(i.scopes) }

// HasScope reports whether the identity carries scope.
func (i *Identity) HasScope(scope string) bool { return slices.Contains(i.scopes, scope) }

// Class returns the token class.
func (i *Identity) Class() domain.TokenClass { return i.class }

// TokenID returns the token id (jti), empty for read tokens without one.
func (i *Identity) TokenID() string { return i.tokenID }

// Issuer returns the token issuer.
func (i *Identity) Issuer() string { return i.issuer }

// Room returns the room the token is pinned to, if any.
func (i *Identity) Room() string { return i.room }

// ExpiresAt returns the token expiry.
func (i *Identity) ExpiresAt() time.Time { return i.expiresAt }

// IdentityInfo is the serializable view of an Identity.
type IdentityInfo struct {
	Subject     string    `json:"sub"`
	DisplayName string    `json:"display_name,omitempty"`
	Scopes      []string  `json:"scopes,omitempty"`
	Class       string    `json:"class"`
	TokenID     string    `json:"jti,omitempty"`
	Issuer      string    `json:"iss,omitempty"`
	Room        string    `json:"room,omitempty"`
	ExpiresAt   time.Time `json:"exp,omitempty"`
}

// Info returns the serializable view.
func (i *Identity) Info() IdentityInfo {
	return IdentityInfo{
		Subject:     i.subject,
		DisplayName: i.displayName,
		Scopes:      i.Scopes(),
		Class:       string(i.class),
		TokenID:     i.tokenID,
		Issuer:      i.issuer,
		Room:        i.room,
		ExpiresAt:   i.expiresAt,
	}
}
