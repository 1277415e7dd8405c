package relayclient

import (
	"encoding/json"
	"time"
)

// ConsumeMode selects how VerifyToken treats write tokens.
type ConsumeMode int

const (
	// ServerDefault lets the server apply its configured policy.
	ServerDefault ConsumeMode = iota
	// Consume spends a write token on success.
	Consume
	// Peek verifies without consuming.
	Peek
)

// Identity is the verified identity returned by VerifyToken.
type Identity struct {
	Valid       bool      `json:"valid"`
	Consumed    bool      `json:"consumed"`
	Subject     string    `json:"sub"`
	DisplayName string    `json:"display_name,omitempty"`
	Scopes      []string  `json:"scopes,omitempty"`
	Class       string    `json:"class"`
	TokenID     string    `json:"jti,omitempty"`
	Issuer      string    `json:"iss,omitempty"`
	Room        string    `json:"room,omitempty"`
	ExpiresAt   time.Time `json:"exp,omitempty"`
}

// HasScope reports whether the identity carries scope.
func (i *Identity) HasScope(scope string) bool {
	for _, s := range i.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// RoomUpsert announces or refreshes a room. A zero TTL uses the server default.
type RoomUpsert struct {
	RoomName    string        `json:"room_name"`
	NodeID      string        `json:"node_id"`
	URL         string        `json:"url,omitempty"`
	Current     int           `json:"current"`
	Max         int           `json:"max"`
	HasPassword bool          `json:"has_password"`
	TTL         time.Duration `json:"-"`
}

// Room is a registry entry as served by the internal API.
type Room struct {
	RoomName    string    `json:"room_name"`
	NodeID      string    `json:"node_id"`
	URL         string    `json:"url,omitempty"`
	Current     int       `json:"current"`
	Max         int       `json:"max"`
	HasPassword bool      `json:"has_password"`
	CreatedAt   time.Time `json:"created_at"`
	RefreshedAt time.Time `json:"refreshed_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	TTLSeconds  int64     `json:"ttl_seconds"`
}

// Full reports whether the room is at capacity. Max zero means unlimited.
func (r *Room) Full() bool {
	return r.Max > 0 && r.Current >= r.Max
}

type envelope struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data,omitempty"`
	Details   string          `json:"details,omitempty"`
}

type verifyRequest struct {
	Token   string `json:"token"`
	Consume *bool  `json:"consume,omitempty"`
}

type upsertRequest struct {
	RoomUpsert
	TTLSeconds int64 `json:"ttl_seconds,omitempty"`
}

type deleteRequest struct {
	RoomName string `json:"room_name"`
	NodeID   string `json:"node_id,omitempty"`
}

type deleteResponse struct {
	Deleted string `json:"deleted"`
}

type listResponse struct {
	Rooms []Room `json:"rooms"`
	Count int    `json:"count"`
}
