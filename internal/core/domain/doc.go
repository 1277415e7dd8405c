// Package domain defines the core domain models for relaygate.
//
// Domain models are pure value objects without any IO dependencies or
// framework coupling. This package contains:
//
//   - Claims: relay access token claims and the lifetime policy
//   - ConfirmationRecord: server-side marker for write tokens
//   - RoomRecord: registry entry mapping a room to its owning node
//   - Errors: domain error codes and the public error mapping
package domain
