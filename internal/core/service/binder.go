package service

import (
	"slices"
	"sync/atomic"
	"time"

	"github.com/yndnr/relaygate/internal/core/domain"
)

// ClientClaim carries identity fields supplied by the client, for example a
// display name in a join message. It is untrusted and only used to detect
// impersonation attempts. Nothing turns a ClientClaim into a BoundIdentity.
type ClientClaim struct {
	Subject     string
	DisplayName string
}

// BoundIdentity is the authoritative identity of a connection. It is only
// created by Binder.Bind from a validated Identity and never changes
// afterwards.
type BoundIdentity struct {
	connectionID string
	subject      string
	displayName  string
	scopes       []string
	class        domain.TokenClass
	tokenID      string
	room         string
	boundAt      time.Time
}

// ConnectionID returns the connection the identity is bound to.
func (b *BoundIdentity) ConnectionID() string { return b.connectionID }

// Subject returns the authenticated subject.
func (b *BoundIdentity) Subject() string { return b.subject }

// DisplayName returns the display name.
func (b *BoundIdentity) DisplayName() string { return b.displayName }

// Scopes returns a copy of the scope list.
func (b *BoundIdentity) Scopes() []string { return slices.Clone(b.scopes) }

// HasScope reports whether the identity carries scope.
func (b *BoundIdentity) HasScope(scope string) bool { return slices.Contains(b.scopes, scope) }

// Class returns the class of the token the connection authenticated with.
func (b *BoundIdentity) Class() domain.TokenClass { return b.class }

// TokenID returns the id of that token.
func (b *BoundIdentity) TokenID() string { return b.tokenID }

// Room returns the room the token was pinned to, if any.
func (b *BoundIdentity) Room() string { return b.room }

// BoundAt returns when the identity was bound.
func (b *BoundIdentity) BoundAt() time.Time { return b.boundAt }

// Connection is a relay connection as seen by the binder.
type Connection struct {
	id    string
	bound atomic.Pointer[BoundIdentity]
}

// NewConnection creates an unbound connection.
func NewConnection(id string) *Connection {
	return &Connection{id: id}
}

// ID returns the connection id.
func (c *Connection) ID() string {
	return c.id
}

// Identity returns the bound identity, if any.
func (c *Connection) Identity() (*BoundIdentity, bool) {
	b := c.bound.Load()
	return b, b != nil
}

// Binder attaches validated identities to connections.
type Binder struct {
	opts options
}

// NewBinder creates a new Binder.
func NewBinder(opts ...Option) *Binder {
	return &Binder{opts: buildOptions(opts)}
}

// Bind binds id to conn. A connection is bound at most once; later calls
// fail with ErrAlreadyBound and leave the first binding in place.
func (b *Binder) Bind(conn *Connection, id *Identity) (*BoundIdentity, error) {
	if conn == nil || id == nil {
		return nil, domain.ErrInvalidArgument.WithDetails("connection and identity are required")
	}

	bound := &BoundIdentity{
		connectionID: conn.id,
		subject:      id.subject,
		displayName:  id.displayName,
		scopes:       slices.Clone(id.scopes),
		class:        id.class,
		tokenID:      id.tokenID,
		room:         id.room,
		boundAt:      b.opts.now(),
	}
	if !conn.bound.CompareAndSwap(nil, bound) {
		existing := conn.bound.Load()
		if existing.subject != id.subject {
			b.opts.metrics.IncImpersonation()
			b.opts.logger.Warn("rebind with different subject refused",
				"conn", conn.id,
				"bound_subject", existing.subject,
				"subject", id.subject,
			)
		}
		return nil, domain.ErrAlreadyBound
	}

	b.opts.metrics.IncIdentityBound()
	b.opts.logger.Info("identity bound",
		"conn", conn.id,
		"subject", bound.subject,
		"class", bound.class,
	)
	return bound, nil
}

// Identity returns the identity bound to conn.
func (b *Binder) Identity(conn *Connection) (*BoundIdentity, error) {
	if conn == nil {
		return nil, domain.ErrConnectionUnbound
	}
	bound, ok := conn.Identity()
	if !ok {
		return nil, domain.ErrConnectionUnbound
	}
	return bound, nil
}

// Attribute resolves who performed an action on conn. The client's claim is
// ignored for attribution; a claim that disagrees with the bound identity is
// logged and counted as an impersonation attempt.
func (b *Binder) Attribute(conn *Connection, claim ClientClaim) (*BoundIdentity, error) {
	bound, err := b.Identity(conn)
	if err != nil {
		return nil, err
	}

	subjectMismatch := claim.Subject != "" && claim.Subject != bound.subject
	nameMismatch := claim.DisplayName != "" && claim.DisplayName != bound.displayName
	if subjectMismatch || nameMismatch {
		b.opts.metrics.IncImpersonation()
		b.opts.logger.Warn("client claim does not match bound identity",
			"conn", conn.id,
			"subject", bound.subject,
			"claimed_subject", claim.Subject,
			"claimed_name", claim.DisplayName,
		)
	}
	return bound, nil
}
