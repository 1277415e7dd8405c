package domain

import (
	"strconv"
	"time"
)

// Confirmation record hash fields, as written by the identity authority.
const (
	ConfirmFieldSubject     = "sub"
	ConfirmFieldIssuer      = "iss"
	ConfirmFieldTokenID     = "jti"
	ConfirmFieldIssuedAt    = "iat"
	ConfirmFieldExpiresAt   = "exp"
	ConfirmFieldDisplayName = "display_name"

	// ConfirmFieldLegacyName is the display name field written by the
	// romm authority. Read only when display_name is absent.
	ConfirmFieldLegacyName = "netplay_username"
)

// ConfirmationRecord is the server-side marker proving a write token was
// issued and not yet consumed. Every field is optional: presence of the
// record is what counts.
type ConfirmationRecord struct {
	Subject     string
	Issuer      string
	TokenID     string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	DisplayName string
}

// Fields encodes the record as a string hash.
func (r *ConfirmationRecord) Fields() map[string]string {
	f := map[string]string{
		ConfirmFieldSubject: r.Subject,
		ConfirmFieldIssuer:  r.Issuer,
		ConfirmFieldTokenID: r.TokenID,
	}
	if !r.IssuedAt.IsZero() {
		f[ConfirmFieldIssuedAt] = strconv.FormatInt(r.IssuedAt.Unix(), 10)
	}
	if !r.ExpiresAt.IsZero() {
		f[ConfirmFieldExpiresAt] = strconv.FormatInt(r.ExpiresAt.Unix(), 10)
	}
	if r.DisplayName != "" {
		f[ConfirmFieldDisplayName] = r.DisplayName
	}
	return f
}

// ConfirmationFromFields decodes a stored hash. Unknown fields are ignored
// and unparsable timestamps are left zero.
func ConfirmationFromFields(f map[string]string) *ConfirmationRecord {
	r := &ConfirmationRecord{
		Subject:     f[ConfirmFieldSubject],
		Issuer:      f[ConfirmFieldIssuer],
		TokenID:     f[ConfirmFieldTokenID],
		DisplayName: f[ConfirmFieldDisplayName],
	}
	if r.DisplayName == "" {
		r.DisplayName = f[ConfirmFieldLegacyName]
	}
	if v, err := strconv.ParseInt(f[ConfirmFieldIssuedAt], 10, 64); err == nil {
		r.IssuedAt = time.Unix(v, 0)
	}
	if v, err := strconv.ParseInt(f[ConfirmFieldExpiresAt], 10, 64); err == nil {
		r.ExpiresAt = time.Unix(v, 0)
	}
	return r
}

// Matches reports whether the record may confirm a token with the given
// subject and id. Empty record fields match anything.
func (r *ConfirmationRecord) Matches(subject, tokenID string) bool {
	if r.Subject != "" && r.Subject != subject {
		return false
	}
	if r.TokenID != "" && r.TokenID != tokenID {
		return false
	}
	return true
}
