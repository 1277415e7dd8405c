package config

import (
	"time"

	"github.com/yndnr/relaygate/internal/core/domain"
	"github.com/yndnr/relaygate/internal/storage"
	"github.com/yndnr/relaygate/internal/storage/memory"
	"github.com/yndnr/relaygate/internal/storage/redisstore"
)

// Store engines.
const (
	EngineRedis  = "redis"
	EngineBadger = "badger"
	EngineMemory = "memory"
)

// Default configuration values.
const (
	DefaultHTTPAddr        = "127.0.0.1:5080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultShutdownTimeout = 15 * time.Second

	DefaultRateLimit = 200
	DefaultRateBurst = 400

	DefaultEngine    = EngineRedis
	DefaultRedisHost = "127.0.0.1"
	DefaultRedisPort = 6379
	DefaultDataDir   = "/var/lib/relaygate/data"

	DefaultIssuer   = "romm:sfu"
	DefaultKeysFile = "/etc/relaygate/keys.yaml"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:            DefaultHTTPAddr,
				ReadTimeout:     DefaultReadTimeout,
				WriteTimeout:    DefaultWriteTimeout,
				ShutdownTimeout: DefaultShutdownTimeout,
			},
			Internal: InternalConfig{
				RateLimit: DefaultRateLimit,
				RateBurst: DefaultRateBurst,
			},
		},
		Store: StoreSection{
			Engine:    DefaultEngine,
			Namespace: storage.DefaultNamespace,
			OpTimeout: redisstore.DefaultOpTimeout,
			Redis: RedisSection{
				Host: DefaultRedisHost,
				Port: DefaultRedisPort,
			},
			Badger: BadgerSection{
				DataDir: DefaultDataDir,
			},
			Memory: MemorySection{
				SweepInterval: memory.DefaultSweepInterval,
			},
		},
		Token: TokenSection{
			Issuer:            DefaultIssuer,
			KeysFile:          DefaultKeysFile,
			WatchKeys:         true,
			ConsumeWrite:      true,
			WriteTTL:          domain.DefaultWriteTokenTTL,
			ReadTTL:           domain.DefaultReadTokenTTL,
			ConsumedCacheSize: 10000,
			ConsumedCacheTTL:  2 * time.Minute,
		},
		Room: RoomSection{
			TTL:             domain.DefaultRoomTTL,
			RefreshInterval: domain.DefaultRoomRefreshInterval,
			MaxTTL:          domain.DefaultMaxRoomTTL,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// TokenPolicy returns the lifetime policy described by the token section.
func (c *ServerConfig) TokenPolicy() domain.TokenPolicy {
	return domain.TokenPolicy{
		WriteMaxTTL: c.Token.WriteTTL,
		ReadMaxTTL:  c.Token.ReadTTL,
	}
}
