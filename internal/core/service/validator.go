package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/yndnr/relaygate/internal/core/domain"
	"github.com/yndnr/relaygate/internal/storage"
)

// KeySource supplies token verification keys. *keyring.Keyring implements it.
type KeySource interface {
	Keyfunc() jwt.Keyfunc
}

// Validation results, used as metric labels.
const (
	resultOK               = "ok"
	resultBadSignature     = "bad_signature"
	resultExpired          = "expired"
	resultWrongIssuer      = "wrong_issuer"
	resultWrongAudience    = "wrong_audience"
	resultClaimsInvalid    = "claims_invalid"
	resultNotFound         = "not_found"
	resultAlreadyConsumed  = "already_consumed"
	resultStoreUnavailable = "store_unavailable"
	resultError            = "error"
)

// DefaultAlgorithms is the default list of accepted signing algorithms.
var DefaultAlgorithms = []string{
	"HS256", "HS384", "HS512",
	"RS256", "RS384", "RS512",
	"PS256", "PS384", "PS512",
	"ES256", "ES384", "ES512",
	"EdDSA",
}

// ValidatorConfig holds configuration for TokenValidator.
type ValidatorConfig struct {
	// Issuer is the required iss claim. Empty disables the check.
	Issuer string

	// Audience is the required aud entry. Empty disables the check.
	Audience string

	// Leeway is the clock skew tolerance applied to exp and iat.
	Leeway time.Duration

	// Policy bounds token lifetimes per class.
	Policy domain.TokenPolicy

	// ConsumeWrite makes every write token single use.
	ConsumeWrite bool

	// Algorithms restricts accepted signing algorithms (default: DefaultAlgorithms).
	Algorithms []string

	// ConsumedCacheSize bounds the set of recently consumed token ids kept to
	// report ErrTokenAlreadyConsumed (default: 10,000).
	ConsumedCacheSize int

	// ConsumedCacheTTL is how long a consumed id is remembered (default: 2m).
	ConsumedCacheTTL time.Duration
}

// DefaultValidatorConfig returns default configuration.
func DefaultValidatorConfig() *ValidatorConfig {
	return &ValidatorConfig{
		Policy:            domain.DefaultTokenPolicy(),
		ConsumeWrite:      true,
		Algorithms:        DefaultAlgorithms,
		ConsumedCacheSize: 10000,
		ConsumedCacheTTL:  2 * time.Minute,
	}
}

// TokenValidator checks relay access tokens.
//
// Read tokens are accepted on signature and claims alone and never touch the
// store. Write tokens also need a confirmation record, which is consumed
// atomically when one-time consumption is on.
type TokenValidator struct {
	keys     KeySource
	store    storage.Store
	cfg      ValidatorConfig
	parser   *jwt.Parser
	consumed *expirable.LRU[string, struct{}]
	opts     options
}

// NewTokenValidator creates a new TokenValidator.
func NewTokenValidator(keys KeySource, store storage.Store, cfg *ValidatorConfig, opts ...Option) *TokenValidator {
	if cfg == nil {
		cfg = DefaultValidatorConfig()
	}
	c := *cfg
	if len(c.Algorithms) == 0 {
		c.Algorithms = DefaultAlgorithms
	}
	if c.Policy == (domain.TokenPolicy{}) {
		c.Policy = domain.DefaultTokenPolicy()
	}
	if c.ConsumedCacheSize <= 0 {
		c.ConsumedCacheSize = 10000
	}
	if c.ConsumedCacheTTL <= 0 {
		c.ConsumedCacheTTL = 2 * time.Minute
	}

	o := buildOptions(opts)

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods(slices.Clone(c.Algorithms)),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(c.Leeway),
		jwt.WithTimeFunc(o.now),
	}
	if c.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(c.Issuer))
	}
	if c.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(c.Audience))
	}

	return &TokenValidator{
		keys:     keys,
		store:    store,
		cfg:      c,
		parser:   jwt.NewParser(parserOpts...),
		consumed: expirable.NewLRU[string, struct{}](c.ConsumedCacheSize, nil, c.ConsumedCacheTTL),
		opts:     o,
	}
}

// ConsumeWrite reports whether write tokens are consumed by default.
func (v *TokenValidator) ConsumeWrite() bool {
	return v.cfg.ConsumeWrite
}

// Validate validates raw using the configured consumption mode.
func (v *TokenValidator) Validate(ctx context.Context, raw string) (*Identity, error) {
	return v.ValidateWithConsume(ctx, raw, v.cfg.ConsumeWrite)
}

// ValidateWithConsume validates raw. For write tokens, consume selects
// between the atomic read-and-delete of the confirmation record and a plain
// lookup that leaves it in place. Read tokens ignore consume.
func (v *TokenValidator) ValidateWithConsume(ctx context.Context, raw string, consume bool) (*Identity, error) {
	claims, class, err := v.parse(raw)
	if err != nil {
		v.reject(ctx, class, raw, err)
		return nil, err
	}

	id := &Identity{
		subject:     claims.Subject,
		displayName: claims.DisplayName,
		scopes:      slices.Clone(claims.Scopes),
		class:       class,
		tokenID:     claims.ID,
		issuer:      claims.Issuer,
		room:        claims.Room,
		expiresAt:   claims.ExpiresAt.Time,
	}

	if class == domain.TokenClassWrite {
		rec, err := v.confirm(ctx, claims, consume)
		if err != nil {
			v.reject(ctx, class, raw, err)
			return nil, err
		}
		if rec.DisplayName != "" {
			id.displayName = rec.DisplayName
		}
	}

	v.opts.metrics.RecordTokenValidation(string(class), resultOK)
	v.opts.logger.DebugContext(ctx, "token accepted",
		"class", class,
		"subject", id.subject,
		"jti", id.tokenID,
		"consumed", class == domain.TokenClassWrite && consume,
	)
	return id, nil
}

// parse verifies the signature and the claims, and applies the class policy.
func (v *TokenValidator) parse(raw string) (*domain.Claims, domain.TokenClass, error) {
	if raw == "" {
		return nil, "", domain.ErrTokenBadSignature.WithDetails("empty token")
	}

	claims := &domain.Claims{}
	_, err := v.parser.ParseWithClaims(raw, claims, v.keys.Keyfunc())
	if err != nil {
		class, _ := claims.Class()
		return nil, class, v.mapParseError(claims, err)
	}

	class, err := v.cfg.Policy.Check(claims)
	if err != nil {
		return nil, class, err
	}
	return claims, class, nil
}

func (v *TokenValidator) mapParseError(claims *domain.Claims, err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return domain.ErrTokenBadSignature.WithCause(err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.ErrTokenExpired.WithCause(err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer),
		v.cfg.Issuer != "" && claims.Issuer == "":
		return domain.ErrTokenWrongIssuer.WithCause(err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience),
		v.cfg.Audience != "" && len(claims.Audience) == 0:
		return domain.ErrTokenWrongAudience.WithCause(err)
	default:
		return domain.ErrTokenClaimsInvalid.WithCause(err)
	}
}

// confirm looks up, and optionally consumes, the confirmation record of a
// write token.
func (v *TokenValidator) confirm(ctx context.Context, claims *domain.Claims, consume bool) (*domain.ConfirmationRecord, error) {
	key := storage.AuthKey(claims.ID)

	var (
		fields map[string]string
		err    error
	)
	if consume {
		fields, err = v.store.HConsume(ctx, key)
	} else {
		fields, err = v.store.HGetAll(ctx, key)
	}

	switch {
	case err == nil:
	case errors.Is(err, storage.ErrKeyNotFound):
		if _, seen := v.consumed.Peek(claims.ID); seen {
			v.recordConsumption(consume, resultAlreadyConsumed)
			return nil, domain.ErrTokenAlreadyConsumed
		}
		v.recordConsumption(consume, resultNotFound)
		return nil, domain.ErrTokenNotFound
	case storage.IsUnavailable(err):
		v.recordConsumption(consume, resultStoreUnavailable)
		return nil, domain.ErrStoreUnavailable.WithCause(err)
	default:
		v.recordConsumption(consume, resultError)
		return nil, domain.ErrInternalServer.WithCause(err)
	}

	rec := domain.ConfirmationFromFields(fields)
	if !rec.Matches(claims.Subject, claims.ID) {
		v.opts.logger.WarnContext(ctx, "confirmation record does not match token",
			"jti", claims.ID,
			"subject", claims.Subject,
			"record_subject", rec.Subject,
		)
		v.recordConsumption(consume, resultNotFound)
		return nil, domain.ErrTokenNotFound.WithDetails("confirmation record mismatch")
	}

	if consume {
		v.consumed.Add(claims.ID, struct{}{})
	}
	v.recordConsumption(consume, resultOK)
	return rec, nil
}

func (v *TokenValidator) recordConsumption(consume bool, result string) {
	if consume {
		v.opts.metrics.RecordConsumption(result)
	}
}

func (v *TokenValidator) reject(ctx context.Context, class domain.TokenClass, raw string, err error) {
	result := validationResult(err)
	if class == "" {
		class = "unknown"
	}
	v.opts.metrics.RecordTokenValidation(string(class), result)

	if result == resultStoreUnavailable || result == resultError {
		v.opts.logger.WarnContext(ctx, "token validation failed",
			"class", class,
			"token", domain.MaskToken(raw),
			"error", err,
		)
		return
	}
	v.opts.logger.DebugContext(ctx, "token rejected",
		"class", class,
		"token", domain.MaskToken(raw),
		"reason", result,
	)
}

// validationResult maps a validation error to its metric label.
func validationResult(err error) string {
	switch {
	case err == nil:
		return resultOK
	case errors.Is(err, domain.ErrTokenBadSignature):
		return resultBadSignature
	case errors.Is(err, domain.ErrTokenExpired):
		return resultExpired
	case errors.Is(err, domain.ErrTokenWrongIssuer):
		return resultWrongIssuer
	case errors.Is(err, domain.ErrTokenWrongAudience):
		return resultWrongAudience
	case errors.Is(err, domain.ErrTokenClaimsInvalid):
		return resultClaimsInvalid
	case errors.Is(err, domain.ErrTokenAlreadyConsumed):
		return resultAlreadyConsumed
	case errors.Is(err, domain.ErrTokenNotFound):
		return resultNotFound
	case errors.Is(err, domain.ErrStoreUnavailable):
		return resultStoreUnavailable
	default:
		return resultError
	}
}
