package config

import "time"

// ServerConfig is the root configuration for relaygate-server.
type ServerConfig struct {
	Server ServerSection `koanf:"server" yaml:"server"`
	Store  StoreSection  `koanf:"store" yaml:"store"`
	Token  TokenSection  `koanf:"token" yaml:"token"`
	Room   RoomSection   `koanf:"room" yaml:"room"`
	Log    LogSection    `koanf:"log" yaml:"log"`
}

// ServerSection configures the internal HTTP API.
type ServerSection struct {
	HTTP     HTTPConfig     `koanf:"http" yaml:"http"`
	Internal InternalConfig `koanf:"internal" yaml:"internal"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr            string        `koanf:"addr" yaml:"addr"`
	TLSCertFile     string        `koanf:"tls_cert_file" yaml:"tls_cert_file"`
	TLSKeyFile      string        `koanf:"tls_key_file" yaml:"tls_key_file"`
	ReadTimeout     time.Duration `koanf:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// InternalConfig guards the /internal/v1 routes.
type InternalConfig struct {
	// Secret is compared against the X-Relaygate-Secret header. It may be the
	// plaintext value or an argon2id hash produced by `relaygate-cli secret hash`.
	Secret string `koanf:"secret" yaml:"secret"`

	// RateLimit is the sustained requests per second allowed per client IP.
	// Zero disables rate limiting.
	RateLimit float64 `koanf:"rate_limit" yaml:"rate_limit"`

	// RateBurst is the token bucket size per client IP.
	RateBurst int `koanf:"rate_burst" yaml:"rate_burst"`

	// TrustProxy takes the client IP from X-Forwarded-For.
	TrustProxy bool `koanf:"trust_proxy" yaml:"trust_proxy"`
}

// StoreSection selects and configures the shared store.
type StoreSection struct {
	// Engine is one of "redis", "badger" or "memory".
	Engine string `koanf:"engine" yaml:"engine"`

	// Namespace prefixes every key (default "sfu").
	Namespace string `koanf:"namespace" yaml:"namespace"`

	// OpTimeout bounds each Redis round trip. The in-process engines
	// never block on a network and only honour caller cancellation.
	OpTimeout time.Duration `koanf:"op_timeout" yaml:"op_timeout"`

	Redis  RedisSection  `koanf:"redis" yaml:"redis"`
	Badger BadgerSection `koanf:"badger" yaml:"badger"`
	Memory MemorySection `koanf:"memory" yaml:"memory"`
}

// MemorySection configures the in-process engine.
type MemorySection struct {
	// SweepInterval is how often expired keys are reclaimed; 0 disables it.
	SweepInterval time.Duration `koanf:"sweep_interval" yaml:"sweep_interval"`
}

// RedisSection configures the Redis engine. URL wins over the discrete fields.
type RedisSection struct {
	URL      string `koanf:"url" yaml:"url"`
	Host     string `koanf:"host" yaml:"host"`
	Port     int    `koanf:"port" yaml:"port"`
	Username string `koanf:"username" yaml:"username"`
	Password string `koanf:"password" yaml:"password"`
	DB       int    `koanf:"db" yaml:"db"`
	SSL      bool   `koanf:"ssl" yaml:"ssl"`
	PoolSize int    `koanf:"pool_size" yaml:"pool_size"`
}

// BadgerSection configures the embedded engine.
type BadgerSection struct {
	DataDir    string        `koanf:"data_dir" yaml:"data_dir"`
	SyncWrites bool          `koanf:"sync_writes" yaml:"sync_writes"`
	GCInterval time.Duration `koanf:"gc_interval" yaml:"gc_interval"`
}

// TokenSection configures relay token validation.
type TokenSection struct {
	Issuer   string `koanf:"issuer" yaml:"issuer"`
	Audience string `koanf:"audience" yaml:"audience"`

	// KeysFile is the YAML keyring (see internal/infra/keyring).
	KeysFile string `koanf:"keys_file" yaml:"keys_file"`

	// WatchKeys reloads KeysFile when it changes.
	WatchKeys bool `koanf:"watch_keys" yaml:"watch_keys"`

	// ConsumeWrite deletes the confirmation record on first use.
	ConsumeWrite bool `koanf:"consume_write" yaml:"consume_write"`

	WriteTTL time.Duration `koanf:"write_ttl" yaml:"write_ttl"`
	ReadTTL  time.Duration `koanf:"read_ttl" yaml:"read_ttl"`
	Leeway   time.Duration `koanf:"leeway" yaml:"leeway"`

	ConsumedCacheSize int           `koanf:"consumed_cache_size" yaml:"consumed_cache_size"`
	ConsumedCacheTTL  time.Duration `koanf:"consumed_cache_ttl" yaml:"consumed_cache_ttl"`
}

// RoomSection configures the room registry.
type RoomSection struct {
	TTL             time.Duration `koanf:"ttl" yaml:"ttl"`
	RefreshInterval time.Duration `koanf:"refresh_interval" yaml:"refresh_interval"`

	// MaxTTL caps the ttl_seconds a relay node may request.
	MaxTTL time.Duration `koanf:"max_ttl" yaml:"max_ttl"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}
