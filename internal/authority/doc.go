// Package authority is a stand-in identity authority for development and
// tests.
//
// It mints read and write tokens with the same claims and confirmation
// records the production authority produces, so a relay deployment can be
// exercised end to end without it. Relay request paths never mint tokens.
package authority
