package logger

import (
	"log/slog"
	"strings"
)

const (
	secretPrefix = "rgs_"
	hashPrefix   = "$argon2id$"
	// jwtPrefix starts every JWT: base64url of `{"`.
	jwtPrefix = "eyJ"

	redactedValue = "***REDACTED***"
)

// Key fragments whose string values are fully redacted.
var sensitiveKeys = []string{"password", "secret", "token", "key", "credential", "auth", "bearer"}

// Key suffixes that name a reference to a secret rather than the secret.
var referenceSuffixes = []string{"_id", "_ids", "_file", "_path"}

func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		v := a.Value.String()
		if masked, ok := mask(v); ok {
			return slog.String(a.Key, masked)
		}
		if v != "" && sensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}

// mask shortens values whose shape alone marks them as credentials. The
// result keeps enough of the value to correlate log lines.
func mask(v string) (string, bool) {
	switch {
	case strings.HasPrefix(v, secretPrefix):
		return secretPrefix + ends(v[len(secretPrefix):]), true
	case strings.HasPrefix(v, hashPrefix):
		return "argon2id:***", true
	case strings.HasPrefix(v, jwtPrefix) && strings.Count(v, ".") == 2:
		return "jwt:" + ends(v[strings.LastIndexByte(v, '.')+1:]), true
	}
	return v, false
}

// ends keeps the first and last three bytes of s.
func ends(s string) string {
	if len(s) < 8 {
		return "***"
	}
	return s[:3] + "..." + s[len(s)-3:]
}

func sensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, suffix := range referenceSuffixes {
		if strings.HasSuffix(k, suffix) {
			return false
		}
	}
	for _, frag := range sensitiveKeys {
		if strings.Contains(k, frag) {
			return true
		}
	}
	return false
}
