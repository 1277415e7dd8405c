// Package relayclient is the Go client relay nodes use to reach the
// relaygate internal API.
//
// Client wraps the token verification and room registry endpoints and
// decodes the response envelope. Every request carries the shared internal
// secret. Failures come back as *APIError, so callers can branch on the
// HTTP status or the RG- error code:
//
//	c, err := relayclient.New("https://relaygate.internal:5080", secret)
//	id, err := c.VerifyToken(ctx, raw, relayclient.Consume)
//	if relayclient.IsUnauthorized(err) {
//		// reject the peer
//	}
//
// TokenSource caches tokens a node fetches from the identity authority and
// collapses concurrent refreshes into one request per purpose.
package relayclient
