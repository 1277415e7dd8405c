// Package engine opens the configured storage backend.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/yndnr/relaygate/internal/server/config"
	"github.com/yndnr/relaygate/internal/storage"
	"github.com/yndnr/relaygate/internal/storage/badgerstore"
	"github.com/yndnr/relaygate/internal/storage/memory"
	"github.com/yndnr/relaygate/internal/storage/redisstore"
	"github.com/yndnr/relaygate/internal/telemetry/metric"
)

// Open builds the backend named by cfg.Engine, instruments it with metrics
// (which may be nil) and scopes every key to cfg.Namespace.
func Open(cfg *config.StoreSection, metrics *metric.Registry, log *slog.Logger) (storage.Store, error) {
	if log == nil {
		log = slog.Default()
	}

	var backend storage.Store
	switch cfg.Engine {
	case config.EngineRedis:
		url, err := config.RedisURL(&cfg.Redis)
		if err != nil {
			return nil, err
		}
		rs, err := redisstore.New(redisstore.Config{
			URL:       url,
			OpTimeout: cfg.OpTimeout,
			PoolSize:  cfg.Redis.PoolSize,
		}, log)
		if err != nil {
			return nil, err
		}
		backend = rs

	case config.EngineBadger:
		bs, err := badgerstore.Open(badgerstore.Config{
			Dir:        cfg.Badger.DataDir,
			SyncWrites: cfg.Badger.SyncWrites,
			GCInterval: cfg.Badger.GCInterval,
		}, log)
		if err != nil {
			return nil, err
		}
		if err := metrics.Register(bs.Collectors()...); err != nil {
			_ = bs.Close()
			return nil, fmt.Errorf("register badger metrics: %w", err)
		}
		backend = bs

	case config.EngineMemory:
		log.Warn("using the in-memory store: state is lost on restart and not shared between instances")
		backend = memory.New(memory.WithSweepInterval(cfg.Memory.SweepInterval))

	default:
		return nil, fmt.Errorf("unknown store engine %q", cfg.Engine)
	}

	log.Info("store opened", "engine", cfg.Engine, "namespace", cfg.Namespace)

	if metrics != nil {
		backend = storage.Instrument(backend, metrics.ObserveStoreOp)
	}
	return storage.WithNamespace(backend, cfg.Namespace), nil
}
