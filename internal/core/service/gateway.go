package service

import (
	"context"

	"github.com/yndnr/relaygate/internal/core/domain"
	"github.com/yndnr/relaygate/internal/telemetry/logger"
)

// Gateway bundles the operations a relay node calls: connection admission
// and room placement.
type Gateway struct {
	validator *TokenValidator
	binder    *Binder
	rooms     *RoomRegistry
}

// NewGateway creates a new Gateway.
func NewGateway(validator *TokenValidator, binder *Binder, rooms *RoomRegistry) *Gateway {
	return &Gateway{
		validator: validator,
		binder:    binder,
		rooms:     rooms,
	}
}

// Validator returns the token validator.
func (g *Gateway) Validator() *TokenValidator { return g.validator }

// Rooms returns the room registry.
func (g *Gateway) Rooms() *RoomRegistry { return g.rooms }

// ValidateConnectionToken validates the token presented on a new connection.
func (g *Gateway) ValidateConnectionToken(ctx context.Context, raw string) (*Identity, error) {
	return g.validator.Validate(ctx, raw)
}

// BindIdentity binds a validated identity to a connection.
func (g *Gateway) BindIdentity(conn *Connection, id *Identity) (*BoundIdentity, error) {
	return g.binder.Bind(conn, id)
}

// Admit validates raw and binds the result to conn in one step.
func (g *Gateway) Admit(ctx context.Context, conn *Connection, raw string) (*BoundIdentity, error) {
	ctx = logger.WithConnectionID(ctx, conn.ID())
	id, err := g.validator.Validate(ctx, raw)
	if err != nil {
		return nil, err
	}
	return g.binder.Bind(conn, id)
}

// OpenRoom publishes a room hosted by up.NodeID with the default TTL.
func (g *Gateway) OpenRoom(ctx context.Context, up RoomUpsert) (*domain.RoomRecord, error) {
	return g.rooms.Upsert(ctx, up, 0)
}

// ResolveRoom returns the node hosting name.
func (g *Gateway) ResolveRoom(ctx context.Context, name string) (*domain.RoomRecord, error) {
	return g.rooms.Resolve(ctx, name)
}

// RefreshRoom extends the lifetime of a room still owned by nodeID.
func (g *Gateway) RefreshRoom(ctx context.Context, name, nodeID string) (*domain.RoomRecord, error) {
	return g.rooms.Refresh(ctx, name, nodeID, 0)
}

// ListRooms returns every live room.
func (g *Gateway) ListRooms(ctx context.Context) ([]domain.RoomRecord, error) {
	return g.rooms.List(ctx)
}

// CloseRoom removes a room owned by nodeID.
func (g *Gateway) CloseRoom(ctx context.Context, name, nodeID string) error {
	return g.rooms.Delete(ctx, name, nodeID)
}
