// Package config provides server configuration for relaygate.
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Cross-field validation (TTL ordering, secrets, store engine)
//   - sanitize.go: Log sanitization (hide sensitive values)
//   - redis.go: Redis connection URL assembly
//
// Configuration is loaded via internal/infra/confloader from a YAML file and
// RELAYGATE_ environment variables.
package config
