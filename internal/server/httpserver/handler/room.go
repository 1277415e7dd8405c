package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/yndnr/relaygate/internal/core/domain"
	"github.com/yndnr/relaygate/internal/core/service"
)

// handleUpsertRoom handles POST /internal/v1/rooms/upsert.
func (h *Handler) handleUpsertRoom(w http.ResponseWriter, r *http.Request) {
	var req UpsertRoomRequest
	if err := decode(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if req.TTLSeconds < 0 {
		h.handleServiceError(w, r, domain.ErrInvalidArgument.WithDetails("ttl_seconds must not be negative"))
		return
	}
	// Checked in seconds so large values cannot overflow time.Duration.
	if limit := int64(h.rooms.MaxTTL() / time.Second); req.TTLSeconds > limit {
		h.handleServiceError(w, r, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("ttl_seconds must not exceed %d", limit)))
		return
	}

	rec, err := h.rooms.Upsert(r.Context(), service.RoomUpsert{
		Name:        req.RoomName,
		NodeID:      req.NodeID,
		URL:         req.URL,
		Current:     req.Current,
		Max:         req.Max,
		HasPassword: req.HasPassword,
	}, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, newRoomView(rec))
}

// handleResolveRoom handles GET /internal/v1/rooms/resolve?room=.
func (h *Handler) handleResolveRoom(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("room")
	if name == "" {
		h.handleServiceError(w, r, domain.ErrMissingArgument.WithDetails("room is required"))
		return
	}

	rec, err := h.rooms.Resolve(r.Context(), name)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, newRoomView(rec))
}

// handleListRooms handles GET /internal/v1/rooms/list.
func (h *Handler) handleListRooms(w http.ResponseWriter, r *http.Request) {
	recs, err := h.rooms.List(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	views := make([]RoomView, 0, len(recs))
	for i := range recs {
		views = append(views, newRoomView(&recs[i]))
	}
	h.writeJSON(w, r, http.StatusOK, ListRoomsResponse{Rooms: views, Count: len(views)})
}

// handleDeleteRoom handles POST /internal/v1/rooms/delete.
func (h *Handler) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	var req DeleteRoomRequest
	if err := decode(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	if err := h.rooms.Delete(r.Context(), req.RoomName, req.NodeID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, DeleteRoomResponse{Deleted: req.RoomName})
}
