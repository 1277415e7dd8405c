// Package handler implements the internal HTTP API relay nodes call:
// token verification and the room registry, plus health and readiness checks.
//
// Every response uses the Response envelope. Token rejections are collapsed
// to a single unauthorized code before they leave the process.
package handler
