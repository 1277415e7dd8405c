// Package secret provides generation and hashing of internal API secrets.
package secret

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Prefix marks relaygate internal secrets so they are easy to spot in logs
// and leak scanners.
const Prefix = "rgs_"

// DefaultLength is the default secret length in random bytes.
const DefaultLength = 32

// Argon2id parameters for newly created hashes.
const (
	argonTime    uint32 = 2
	argonMemory  uint32 = 16384
	argonThreads uint8  = 2
	argonKeyLen  uint32 = 32
	saltLength          = 16
)

const hashPrefix = "$argon2id$"

// Generate generates a prefixed, cryptographically secure secret.
func Generate() (string, error) {
	return GenerateWithLength(DefaultLength)
}

// GenerateWithLength generates a prefixed secret from length random bytes.
// The body is Base64 RawURL encoded for safe transport in headers.
func GenerateWithLength(length int) (string, error) {
	b, err := GenerateBytes(length)
	if err != nil {
		return "", err
	}
	return Prefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateBytes generates random bytes.
func GenerateBytes(length int) ([]byte, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Hash derives an Argon2id hash of secret in PHC string format:
//
//	$argon2id$v=19$m=16384,t=2,p=2$<salt>$<hash>
func Hash(secret string) (string, error) {
	salt, err := GenerateBytes(saltLength)
	if err != nil {
		return "", fmt.Errorf("secret: generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(secret), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		hashPrefix,
		argon2.Version,
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// IsHash reports whether s looks like an Argon2id hash.
func IsHash(s string) bool {
	return strings.HasPrefix(s, hashPrefix)
}

// Verify checks secret against an Argon2id hash using the parameters
// recorded in the hash.
func Verify(secret, hash string) bool {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var (
		memory, time uint32
		threads      uint8
	)
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return false
	}

	computed := argon2.IDKey([]byte(secret), salt, time, memory, threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1
}

// Equal compares two plaintext secrets in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Mask masks a secret for display, keeping the prefix and last 4 characters.
func Mask(s string) string {
	if len(s) <= len(Prefix)+8 {
		return "***REDACTED***"
	}
	if strings.HasPrefix(s, Prefix) {
		return Prefix + "***" + s[len(s)-4:]
	}
	return "***" + s[len(s)-4:]
}
