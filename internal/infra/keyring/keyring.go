// Package keyring holds the token verification keys.
package keyring

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"
)

// MinHMACSecretLength is the minimum HMAC secret size in bytes.
const MinHMACSecretLength = 32

var (
	// ErrUnknownKey is returned when a kid has no matching key.
	ErrUnknownKey = errors.New("keyring: unknown key id")

	// ErrAlgorithmMismatch is returned when a token's alg differs from its key.
	ErrAlgorithmMismatch = errors.New("keyring: algorithm mismatch")

	// ErrNoSigningKey is returned when a key has no private half.
	ErrNoSigningKey = errors.New("keyring: key cannot sign")

	// ErrEmpty is returned for a key set without keys.
	ErrEmpty = errors.New("keyring: no keys configured")
)

// Key is one verification key, optionally with its signing half.
type Key struct {
	ID     string
	Method jwt.SigningMethod

	verify interface{}
	sign   interface{}
}

// CanSign reports whether the key carries signing material.
func (k *Key) CanSign() bool {
	return k.sign != nil
}

// Set is an immutable collection of keys with a default.
type Set struct {
	keys       map[string]*Key
	defaultKey string
}

// NewSet builds a Set. defaultID may be empty when there is exactly one key.
func NewSet(defaultID string, keys ...*Key) (*Set, error) {
	if len(keys) == 0 {
		return nil, ErrEmpty
	}

	s := &Set{keys: make(map[string]*Key, len(keys))}
	for _, k := range keys {
		if k.ID == "" {
			return nil, fmt.Errorf("keyring: key without id")
		}
		if _, dup := s.keys[k.ID]; dup {
			return nil, fmt.Errorf("keyring: duplicate key id %q", k.ID)
		}
		s.keys[k.ID] = k
	}

	switch {
	case defaultID != "":
		if _, ok := s.keys[defaultID]; !ok {
			return nil, fmt.Errorf("keyring: default key %q not found", defaultID)
		}
		s.defaultKey = defaultID
	case len(keys) == 1:
		s.defaultKey = keys[0].ID
	default:
		return nil, fmt.Errorf("keyring: default key required with %d keys", len(keys))
	}

	return s, nil
}

// IDs returns the key ids in sorted order.
func (s *Set) IDs() []string {
	ids := make([]string, 0, len(s.keys))
	for id := range s.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DefaultID returns the default key id.
func (s *Set) DefaultID() string {
	return s.defaultKey
}

// NewHMACKey creates a symmetric key usable for both signing and verifying.
func NewHMACKey(id, alg string, secret []byte) (*Key, error) {
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("keyring: %q is not an HMAC algorithm", alg)
	}
	if len(secret) < MinHMACSecretLength {
		return nil, fmt.Errorf("keyring: key %q: secret shorter than %d bytes", id, MinHMACSecretLength)
	}
	return &Key{ID: id, Method: method, verify: secret, sign: secret}, nil
}

// Keyring is the live key set. Lookups and swaps are lock-free.
type Keyring struct {
	current atomic.Pointer[Set]
}

// New creates a keyring holding set.
func New(set *Set) *Keyring {
	kr := &Keyring{}
	kr.current.Store(set)
	return kr
}

// Swap atomically replaces the key set. Validations already in flight keep
// the set they started with.
func (kr *Keyring) Swap(set *Set) {
	kr.current.Store(set)
}

// Current returns the active key set.
func (kr *Keyring) Current() *Set {
	return kr.current.Load()
}

// Lookup returns the key with the given id, or the default key for "".
func (kr *Keyring) Lookup(kid string) (*Key, error) {
	set := kr.current.Load()
	if set == nil {
		return nil, ErrEmpty
	}
	if kid == "" {
		kid = set.defaultKey
	}
	k, ok := set.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, kid)
	}
	return k, nil
}

// Keyfunc returns a jwt.Keyfunc that selects the key by the "kid" header
// and refuses tokens whose algorithm differs from the key's.
func (kr *Keyring) Keyfunc() jwt.Keyfunc {
	return func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		k, err := kr.Lookup(kid)
		if err != nil {
			return nil, err
		}
		if t.Method == nil || t.Method.Alg() != k.Method.Alg() {
			return nil, ErrAlgorithmMismatch
		}
		return k.verify, nil
	}
}

// Sign signs claims with the key kid (default key for "") and sets the
// "kid" header.
func (kr *Keyring) Sign(kid string, claims jwt.Claims) (string, error) {
	k, err := kr.Lookup(kid)
	if err != nil {
		return "", err
	}
	if !k.CanSign() {
		return "", fmt.Errorf("%w: %q", ErrNoSigningKey, k.ID)
	}

	tok := jwt.NewWithClaims(k.Method, claims)
	tok.Header["kid"] = k.ID
	return tok.SignedString(k.sign)
}

// File is the on-disk key set format.
type File struct {
	Default string      `yaml:"default"`
	Keys    []FileEntry `yaml:"keys"`
}

// FileEntry describes one key. Paths are relative to the key file.
type FileEntry struct {
	ID             string `yaml:"id"`
	Algorithm      string `yaml:"algorithm"`
	Secret         string `yaml:"secret"`
	SecretFile     string `yaml:"secret_file"`
	PublicKeyFile  string `yaml:"public_key_file"`
	PrivateKeyFile string `yaml:"private_key_file"`
}

// LoadFile reads and parses a key set file.
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keyring: read %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("keyring: parse %s: %w", path, err)
	}

	base := filepath.Dir(path)
	keys := make([]*Key, 0, len(f.Keys))
	for _, e := range f.Keys {
		k, err := e.build(base)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}

	return NewSet(f.Default, keys...)
}

func (e FileEntry) build(base string) (*Key, error) {
	method := jwt.GetSigningMethod(e.Algorithm)
	if method == nil {
		return nil, fmt.Errorf("keyring: key %q: unsupported algorithm %q", e.ID, e.Algorithm)
	}

	if _, ok := method.(*jwt.SigningMethodHMAC); ok {
		secret := []byte(e.Secret)
		if e.SecretFile != "" {
			data, err := os.ReadFile(resolve(base, e.SecretFile))
			if err != nil {
				return nil, fmt.Errorf("keyring: key %q: %w", e.ID, err)
			}
			secret = trimNewline(data)
		}
		return NewHMACKey(e.ID, e.Algorithm, secret)
	}

	if e.PublicKeyFile == "" {
		return nil, fmt.Errorf("keyring: key %q: public_key_file required for %s", e.ID, e.Algorithm)
	}
	pubPEM, err := os.ReadFile(resolve(base, e.PublicKeyFile))
	if err != nil {
		return nil, fmt.Errorf("keyring: key %q: %w", e.ID, err)
	}

	k := &Key{ID: e.ID, Method: method}
	if k.verify, err = parsePublic(method, pubPEM); err != nil {
		return nil, fmt.Errorf("keyring: key %q: %w", e.ID, err)
	}

	if e.PrivateKeyFile != "" {
		privPEM, err := os.ReadFile(resolve(base, e.PrivateKeyFile))
		if err != nil {
			return nil, fmt.Errorf("keyring: key %q: %w", e.ID, err)
		}
		if k.sign, err = parsePrivate(method, privPEM); err != nil {
			return nil, fmt.Errorf("keyring: key %q: %w", e.ID, err)
		}
	}

	return k, nil
}

func parsePublic(method jwt.SigningMethod, pemData []byte) (interface{}, error) {
	switch method.(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS:
		return jwt.ParseRSAPublicKeyFromPEM(pemData)
	case *jwt.SigningMethodECDSA:
		return jwt.ParseECPublicKeyFromPEM(pemData)
	case *jwt.SigningMethodEd25519:
		return jwt.ParseEdPublicKeyFromPEM(pemData)
	}
	return nil, fmt.Errorf("unsupported algorithm %q", method.Alg())
}

func parsePrivate(method jwt.SigningMethod, pemData []byte) (interface{}, error) {
	switch method.(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS:
		return jwt.ParseRSAPrivateKeyFromPEM(pemData)
	case *jwt.SigningMethodECDSA:
		return jwt.ParseECPrivateKeyFromPEM(pemData)
	case *jwt.SigningMethodEd25519:
		return jwt.ParseEdPrivateKeyFromPEM(pemData)
	}
	return nil, fmt.Errorf("unsupported algorithm %q", method.Alg())
}

func resolve(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
