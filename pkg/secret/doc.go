// Package secret provides internal API secret utilities.
//
// Secret format:
//
//   - Prefix: rgs_
//   - Body: Base64 RawURL encoded random bytes (32 by default)
//
// Servers may store the secret itself or an Argon2id hash of it in PHC
// string format. Verification reads the cost parameters from the hash, so
// they can be raised later without invalidating existing hashes.
//
// Security:
//
//   - Uses crypto/rand for CSPRNG
//   - Argon2id hashing with a random 16-byte salt
//   - Constant-time comparison
package secret
