// Package command provides the relaygate-cli command tree.
//
// Commands talk to a relaygate server over its internal API, except
// "token mint", which signs tokens locally with the server's keyring and
// writes confirmation records straight to the shared store, and
// "secret", which works offline.
package command
