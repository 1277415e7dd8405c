// Package tlsroots loads TLS material for relaygate.
//
// Pool builds the trust store a relay client uses to reach an internal API
// served over HTTPS with a private CA. Watcher keeps the server's key pair
// current, reloading it when the certificate or key file is replaced on disk.
package tlsroots
