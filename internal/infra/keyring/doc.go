// Package keyring manages the keys used to sign and verify relay tokens.
//
//   - keyring.go: key sets, kid-based lookup, HMAC/RSA/ECDSA/Ed25519 keys
//   - watcher.go: key file hot-reload via fsnotify
//
// A key file looks like:
//
//	default: k2
//	keys:
//	  - id: k1
//	    algorithm: HS256
//	    secret_file: k1.secret
//	  - id: k2
//	    algorithm: EdDSA
//	    public_key_file: k2.pub.pem
//	    private_key_file: k2.pem   # only where tokens are minted
//
// Keeping the outgoing key in the file while the new one becomes default
// lets tokens signed before a rotation verify until they expire.
package keyring
