package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/yndnr/relaygate/internal/core/domain"
	"github.com/yndnr/relaygate/internal/core/service"
	"github.com/yndnr/relaygate/internal/telemetry/logger"
)

// maxBodyBytes bounds request bodies on the internal API.
const maxBodyBytes = 64 << 10

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler is the main HTTP handler that routes requests to appropriate handlers.
type Handler struct {
	validator *service.TokenValidator
	rooms     *service.RoomRegistry
	ready     Pinger
	logger    *slog.Logger
	now       func() time.Time
	mux       *http.ServeMux
}

// New creates a Handler over the gateway's validator and room registry.
// ready is checked by GET /ready; nil reports ready unconditionally.
func New(gw *service.Gateway, ready Pinger, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		validator: gw.Validator(),
		rooms:     gw.Rooms(),
		ready:     ready,
		logger:    log,
		now:       time.Now,
		mux:       http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	h.mux.HandleFunc("POST /internal/v1/tokens/verify", h.handleVerifyToken)

	h.mux.HandleFunc("POST /internal/v1/rooms/upsert", h.handleUpsertRoom)
	h.mux.HandleFunc("GET /internal/v1/rooms/resolve", h.handleResolveRoom)
	h.mux.HandleFunc("GET /internal/v1/rooms/list", h.handleListRooms)
	h.mux.HandleFunc("POST /internal/v1/rooms/delete", h.handleDeleteRoom)
}

// decode reads a JSON body into dst. Unknown fields are rejected.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.ErrBadRequest.WithDetails("invalid request body").WithCause(err)
	}
	return nil
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := logger.RequestIDFromContext(r.Context())
	response := NewResponse(requestID, h.now(), data)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := logger.RequestIDFromContext(r.Context())
	response := NewErrorResponse(requestID, h.now(), code, message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}

// handleServiceError converts service errors to HTTP responses. Token
// failures are logged with their real reason and answered as unauthorized.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	public := domain.Public(err)
	if public != nil && public.Code == domain.ErrUnauthorized.Code {
		h.logger.InfoContext(r.Context(), "request rejected",
			"path", r.URL.Path,
			"reason", domain.GetErrorCode(err),
		)
		h.writeError(w, r, http.StatusUnauthorized, public.Code, public.Message, nil)
		return
	}

	var de *domain.DomainError
	if errors.As(err, &de) {
		status := errorCodeToHTTPStatus(de.Code)
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "request failed",
				"path", r.URL.Path,
				"error", err,
			)
		}
		var details any
		if de.Details != "" {
			details = de.Details
		}
		h.writeError(w, r, status, de.Code, de.Message, details)
		return
	}

	h.logger.ErrorContext(r.Context(), "internal error", "error", err)
	h.writeError(w, r, http.StatusInternalServerError, domain.ErrInternalServer.Code, domain.ErrInternalServer.Message, nil)
}

// errorCodeToHTTPStatus maps error codes to HTTP status codes.
func errorCodeToHTTPStatus(code string) int {
	switch {
	case strings.HasSuffix(code, "-4040"), strings.HasSuffix(code, "-4041"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4090"), strings.HasSuffix(code, "-4091"):
		return http.StatusConflict
	case strings.HasSuffix(code, "-4290"):
		return http.StatusTooManyRequests
	case strings.HasSuffix(code, "-4000"), strings.HasSuffix(code, "-4001"), strings.HasSuffix(code, "-4002"):
		return http.StatusBadRequest
	case strings.Contains(code, "-401"):
		return http.StatusUnauthorized
	case strings.Contains(code, "-403"):
		return http.StatusForbidden
	case strings.HasPrefix(code, "RG-ARG-"):
		return http.StatusBadRequest
	case strings.HasSuffix(code, "-5030"):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
