// Package connection turns a CLI connection profile into a relayclient.Client.
//
// It resolves the internal secret (inline or from a file) and the
// optional CA bundle used to verify an https server.
package connection
