package handler

import (
	"time"

	"github.com/yndnr/relaygate/internal/core/domain"
	"github.com/yndnr/relaygate/internal/core/service"
)

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics which uses Prometheus format).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, now time.Time, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: now.UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID string, now time.Time, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: now.UnixMilli(),
		Details:   details,
	}
}

// VerifyTokenRequest is the request body for POST /internal/v1/tokens/verify.
// A nil Consume uses the server default.
type VerifyTokenRequest struct {
	Token   string `json:"token"`
	Consume *bool  `json:"consume,omitempty"`
}

// VerifyTokenResponse is the response body for POST /internal/v1/tokens/verify.
type VerifyTokenResponse struct {
	Valid    bool `json:"valid"`
	Consumed bool `json:"consumed"`
	service.IdentityInfo
}

// UpsertRoomRequest is the request body for POST /internal/v1/rooms/upsert.
// A zero TTLSeconds uses the registry default.
type UpsertRoomRequest struct {
	RoomName    string `json:"room_name"`
	NodeID      string `json:"node_id"`
	URL         string `json:"url,omitempty"`
	Current     int    `json:"current"`
	Max         int    `json:"max"`
	HasPassword bool   `json:"has_password"`
	TTLSeconds  int64  `json:"ttl_seconds,omitempty"`
}

// DeleteRoomRequest is the request body for POST /internal/v1/rooms/delete.
// An empty NodeID deletes regardless of owner.
type DeleteRoomRequest struct {
	RoomName string `json:"room_name"`
	NodeID   string `json:"node_id,omitempty"`
}

// DeleteRoomResponse is the response body for POST /internal/v1/rooms/delete.
type DeleteRoomResponse struct {
	Deleted string `json:"deleted"`
}

// RoomView is the wire form of a room record.
type RoomView struct {
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

func newRoomView(rec *domain.RoomRecord) RoomView {
	return RoomView{
		RoomName:    rec.Name,
		NodeID:      rec.NodeID,
		URL:         rec.URL,
		Current:     rec.Current,
		Max:         rec.Max,
		HasPassword: rec.HasPassword,
		CreatedAt:   rec.CreatedAt.UTC(),
		RefreshedAt: rec.RefreshedAt.UTC(),
		ExpiresAt:   rec.ExpiresAt().UTC(),
		TTLSeconds:  int64(rec.TTL / time.Second),
	}
}

// ListRoomsResponse is the response body for GET /internal/v1/rooms/list.
type ListRoomsResponse struct {
	Rooms []RoomView `json:"rooms"`
	Count int        `json:"count"`
}
