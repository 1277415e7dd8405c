package relayclient

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx answer from the internal API.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
	Details   string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("relayclient: HTTP %d", e.Status)
	}
	return fmt.Sprintf("relayclient: [%s] %s (HTTP %d)", e.Code, e.Message, e.Status)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

// CodeOf returns the RG- error code carried by err, or "".
func CodeOf(err error) string {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsUnauthorized reports a rejected token or internal secret.
func IsUnauthorized(err error) bool { return StatusOf(err) == http.StatusUnauthorized }

// IsNotFound reports an unknown or expired room.
func IsNotFound(err error) bool { return StatusOf(err) == http.StatusNotFound }

// IsConflict reports a room owned by another node.
func IsConflict(err error) bool { return StatusOf(err) == http.StatusConflict }

// IsUnavailable reports that the server could not reach its store, or
// is shedding load.
func IsUnavailable(err error) bool {
	s := StatusOf(err)
	return s == http.StatusServiceUnavailable || s == http.StatusTooManyRequests
}
