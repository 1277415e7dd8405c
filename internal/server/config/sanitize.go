package config

import (
	"net/url"
	"strings"

	"github.com/yndnr/relaygate/pkg/secret"
)

const masked = "****"

// Sanitize returns a copy of the config with sensitive fields masked.
// It is used for logging configuration without exposing secrets.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg

	if s := sanitized.Server.Internal.Secret; s != "" {
		if secret.IsHash(s) {
			sanitized.Server.Internal.Secret = "argon2id:" + masked
		} else {
			sanitized.Server.Internal.Secret = maskSecret(s)
		}
	}
	if sanitized.Store.Redis.Password != "" {
		sanitized.Store.Redis.Password = masked
	}
	if sanitized.Store.Redis.URL != "" {
		sanitized.Store.Redis.URL = redactURL(sanitized.Store.Redis.URL)
	}
	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 8 {
		return masked
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

// redactURL hides the password component of a connection URL.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return masked
	}
	return u.Redacted()
}
