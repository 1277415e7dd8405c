// Package domain defines the core domain models for relaygate.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// DomainError represents a business domain error with a structured error code.
//
// Codes have the form RG-<AREA>-<NNNN>. The last four digits follow HTTP
// semantics (4010 unauthorized, 4040 not found, 5030 unavailable, ...), which
// is what the HTTP layer keys its status mapping on.
type DomainError struct {
	Code    string // Error code (e.g., "RG-TOKN-4011")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Token Errors (TOKN)
// ============================================================================

var (
	// ErrTokenBadSignature covers malformed input, unknown key ids, unexpected
	// algorithms and signature mismatches.
	ErrTokenBadSignature = NewDomainError("RG-TOKN-4010", "bad token signature")

	// ErrTokenExpired indicates now >= exp.
	ErrTokenExpired = NewDomainError("RG-TOKN-4011", "token expired")

	// ErrTokenWrongIssuer indicates the iss claim does not match configuration.
	ErrTokenWrongIssuer = NewDomainError("RG-TOKN-4012", "wrong token issuer")

	// ErrTokenWrongAudience indicates the aud claim does not match configuration.
	ErrTokenWrongAudience = NewDomainError("RG-TOKN-4013", "wrong token audience")

	// ErrTokenClaimsInvalid indicates the claims violate the token policy.
	ErrTokenClaimsInvalid = NewDomainError("RG-TOKN-4014", "token claims invalid")

	// ErrTokenNotFound indicates a write token has no confirmation record.
	// It covers both "never issued" and "already consumed".
	ErrTokenNotFound = NewDomainError("RG-TOKN-4040", "token not confirmed")
)

// ErrTokenAlreadyConsumed is the server-side refinement of ErrTokenNotFound
// for a token id this node consumed recently. errors.Is(err, ErrTokenNotFound)
// holds for it.
var ErrTokenAlreadyConsumed = &DomainError{
	Code:    "RG-TOKN-4041",
	Message: "token already consumed",
	Cause:   ErrTokenNotFound,
}

// ============================================================================
// Authentication Errors (AUTH)
// ============================================================================

var (
	// ErrUnauthorized is the only token failure the untrusted side ever sees.
	ErrUnauthorized = NewDomainError("RG-AUTH-4010", "unauthorized")

	// ErrInternalSecretInvalid indicates the internal API secret is missing or wrong.
	ErrInternalSecretInvalid = NewDomainError("RG-AUTH-4011", "invalid internal secret")

	// ErrTimestampSkew indicates an assertion timestamp is out of the acceptable window.
	ErrTimestampSkew = NewDomainError("RG-AUTH-4014", "timestamp out of acceptable window")

	// ErrNonceReplay indicates a nonce replay attack was detected.
	ErrNonceReplay = NewDomainError("RG-AUTH-4015", "nonce replay detected")

	// ErrUnknownIssuer indicates no assertion verifier is registered for an issuer.
	ErrUnknownIssuer = NewDomainError("RG-AUTH-4016", "unknown assertion issuer")
)

// ============================================================================
// Connection Errors (CONN)
// ============================================================================

var (
	// ErrConnectionUnbound indicates an identity was requested for a connection
	// that has not been bound yet.
	ErrConnectionUnbound = NewDomainError("RG-CONN-4010", "connection not bound")

	// ErrAlreadyBound indicates a second bind attempt on a connection.
	ErrAlreadyBound = NewDomainError("RG-CONN-4090", "connection already bound")
)

// ============================================================================
// Room Errors (ROOM)
// ============================================================================

var (
	// ErrRoomNameInvalid indicates the room name fails validation.
	ErrRoomNameInvalid = NewDomainError("RG-ROOM-4001", "invalid room name")

	// ErrRoomNotFound covers both never-created and expired rooms.
	ErrRoomNotFound = NewDomainError("RG-ROOM-4040", "room not found")

	// ErrRoomOwnershipLost indicates the room is now owned by another node.
	ErrRoomOwnershipLost = NewDomainError("RG-ROOM-4090", "room owned by another node")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError("RG-SYS-5000", "internal server error")

	// ErrStoreUnavailable indicates the shared store could not be reached
	// within the configured timeout. Callers fail closed and may retry with
	// backoff.
	ErrStoreUnavailable = NewDomainError("RG-SYS-5030", "store unavailable")

	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = NewDomainError("RG-SYS-4000", "bad request")

	// ErrRateLimited indicates too many requests.
	ErrRateLimited = NewDomainError("RG-SYS-4290", "too many requests")
)

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("RG-ARG-1001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("RG-ARG-1002", "missing required argument")
)

// IsTokenError reports whether err is a token rejection (as opposed to an
// infrastructure failure).
func IsTokenError(err error) bool {
	return strings.HasPrefix(GetErrorCode(err), "RG-TOKN-")
}

// Public returns the error as it may be shown to an untrusted client.
// Every token rejection collapses to ErrUnauthorized so the client cannot tell
// an expired token from a consumed one; store unavailability stays distinct so
// callers can retry.
func Public(err error) *DomainError {
	switch {
	case err == nil:
		return nil
	case IsTokenError(err), errors.Is(err, ErrConnectionUnbound):
		return ErrUnauthorized
	case errors.Is(err, ErrStoreUnavailable):
		return ErrStoreUnavailable
	case errors.Is(err, ErrRoomNotFound):
		return ErrRoomNotFound
	}
	var de *DomainError
	if errors.As(err, &de) {
		return NewDomainError(de.Code, de.Message)
	}
	return ErrInternalServer
}
