package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/yndnr/relaygate/internal/storage"
	"github.com/yndnr/relaygate/pkg/secret"
)

// MinInternalSecretLength is the shortest plaintext internal secret accepted.
const MinInternalSecretLength = 16

// Verify validates the configuration. Every problem found is reported.
func Verify(cfg *ServerConfig) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	return errors.Join(
		verifyServer(&cfg.Server),
		verifyStore(&cfg.Store),
		verifyTiming(cfg),
		verifyToken(&cfg.Token),
		verifyLog(&cfg.Log),
	)
}

func verifyServer(cfg *ServerSection) error {
	var errs []error

	if cfg.HTTP.Addr == "" {
		errs = append(errs, errors.New("server.http.addr is required"))
	} else if _, _, err := net.SplitHostPort(cfg.HTTP.Addr); err != nil {
		errs = append(errs, fmt.Errorf("server.http.addr: %w", err))
	}
	if (cfg.HTTP.TLSCertFile == "") != (cfg.HTTP.TLSKeyFile == "") {
		errs = append(errs, errors.New("server.http.tls_cert_file and tls_key_file must be set together"))
	}

	switch s := cfg.Internal.Secret; {
	case s == "":
		errs = append(errs, errors.New("server.internal.secret is required"))
	case !secret.IsHash(s) && len(s) < MinInternalSecretLength:
		errs = append(errs, fmt.Errorf("server.internal.secret must be at least %d characters", MinInternalSecretLength))
	}

	if cfg.Internal.RateLimit < 0 {
		errs = append(errs, errors.New("server.internal.rate_limit must not be negative"))
	}
	if cfg.Internal.RateLimit > 0 && cfg.Internal.RateBurst < 1 {
		errs = append(errs, errors.New("server.internal.rate_burst must be at least 1 when rate limiting is on"))
	}
	return errors.Join(errs...)
}

func verifyStore(cfg *StoreSection) error {
	var errs []error

	if _, err := storage.Namespaced(cfg.Namespace, "k"); err != nil {
		errs = append(errs, fmt.Errorf("store.namespace: %w", err))
	}
	if cfg.OpTimeout <= 0 {
		errs = append(errs, errors.New("store.op_timeout must be positive"))
	}

	switch strings.ToLower(cfg.Engine) {
	case EngineRedis:
		if _, err := RedisURL(&cfg.Redis); err != nil {
			errs = append(errs, err)
		}
	case EngineBadger:
		if cfg.Badger.DataDir == "" {
			errs = append(errs, errors.New("store.badger.data_dir is required for the badger engine"))
		}
	case EngineMemory:
		if cfg.Memory.SweepInterval < 0 {
			errs = append(errs, errors.New("store.memory.sweep_interval must not be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.engine %q: want %s, %s or %s", cfg.Engine, EngineRedis, EngineBadger, EngineMemory))
	}
	return errors.Join(errs...)
}

// verifyTiming enforces write TTL < read TTL < room TTL and a refresh
// interval strictly below the room TTL.
func verifyTiming(cfg *ServerConfig) error {
	t, r := cfg.Token, cfg.Room
	var errs []error

	if t.WriteTTL <= 0 {
		errs = append(errs, errors.New("token.write_ttl must be positive"))
	}
	if t.ReadTTL <= t.WriteTTL {
		errs = append(errs, fmt.Errorf("token.read_ttl (%s) must exceed token.write_ttl (%s)", t.ReadTTL, t.WriteTTL))
	}
	if r.TTL <= t.ReadTTL {
		errs = append(errs, fmt.Errorf("room.ttl (%s) must exceed token.read_ttl (%s)", r.TTL, t.ReadTTL))
	}
	if r.RefreshInterval <= 0 {
		errs = append(errs, errors.New("room.refresh_interval must be positive"))
	} else if r.RefreshInterval >= r.TTL {
		errs = append(errs, fmt.Errorf("room.refresh_interval (%s) must be shorter than room.ttl (%s)", r.RefreshInterval, r.TTL))
	}
	if r.MaxTTL < r.TTL {
		errs = append(errs, fmt.Errorf("room.max_ttl (%s) must not be shorter than room.ttl (%s)", r.MaxTTL, r.TTL))
	}
	if t.Leeway < 0 || (t.WriteTTL > 0 && t.Leeway >= t.WriteTTL) {
		errs = append(errs, errors.New("token.leeway must be non-negative and shorter than token.write_ttl"))
	}
	return errors.Join(errs...)
}

func verifyToken(cfg *TokenSection) error {
	var errs []error
	if cfg.Issuer == "" {
		errs = append(errs, errors.New("token.issuer is required"))
	}
	if cfg.KeysFile == "" {
		errs = append(errs, errors.New("token.keys_file is required"))
	}
	if cfg.ConsumedCacheSize < 0 {
		errs = append(errs, errors.New("token.consumed_cache_size must not be negative"))
	}
	return errors.Join(errs...)
}

func verifyLog(cfg *LogSection) error {
	var errs []error
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q: want debug, info, warn or error", cfg.Level))
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want json or text", cfg.Format))
	}
	return errors.Join(errs...)
}
