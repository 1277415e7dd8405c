package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/yndnr/relaygate/internal/core/service"
	"github.com/yndnr/relaygate/internal/infra/buildinfo"
	"github.com/yndnr/relaygate/internal/infra/confloader"
	"github.com/yndnr/relaygate/internal/infra/keyring"
	"github.com/yndnr/relaygate/internal/infra/shutdown"
	"github.com/yndnr/relaygate/internal/server/config"
	"github.com/yndnr/relaygate/internal/server/httpserver"
	"github.com/yndnr/relaygate/internal/storage"
	"github.com/yndnr/relaygate/internal/storage/engine"
	"github.com/yndnr/relaygate/internal/telemetry/logger"
	"github.com/yndnr/relaygate/internal/telemetry/metric"
)

func serve(ctx context.Context, cfg *config.ServerConfig, loader *confloader.Loader) error {
	slogger, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(slogger)

	info := buildinfo.Get()
	slogger.Info("starting relaygate-server",
		"version", info.Version,
		"commit", info.Commit,
		"config_file", loader.FilePath(),
	)
	slogger.Debug("effective configuration", "config", config.Sanitize(cfg))

	metrics := metric.NewRegistry()
	stop := shutdown.NewHandler(cfg.Server.HTTP.ShutdownTimeout, slogger)

	store, err := engine.Open(&cfg.Store, metrics, slogger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	stop.OnShutdown("store", func(context.Context) error { return store.Close() })

	kr, err := openKeyring(cfg, stop, slogger)
	if err != nil {
		_ = stop.Shutdown()
		return err
	}

	gw := buildGateway(cfg, kr, store, metrics, slogger)

	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Gateway:    gw,
		Ready:      store,
		Secret:     cfg.Server.Internal.Secret,
		RateLimit:  cfg.Server.Internal.RateLimit,
		RateBurst:  cfg.Server.Internal.RateBurst,
		TrustProxy: cfg.Server.Internal.TrustProxy,
		Metrics:    metrics,
		Logger:     slogger,
	})
	srv, err := httpserver.New(httpserver.Config{
		Addr:         cfg.Server.HTTP.Addr,
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		TLSCertFile:  cfg.Server.HTTP.TLSCertFile,
		TLSKeyFile:   cfg.Server.HTTP.TLSKeyFile,
	}, router, slogger)
	if err != nil {
		_ = stop.Shutdown()
		return err
	}
	ln, err := srv.Listen()
	if err != nil {
		_ = stop.Shutdown()
		return fmt.Errorf("listen on %s: %w", cfg.Server.HTTP.Addr, err)
	}
	stop.OnShutdown("http", srv.Shutdown)

	if err := watchConfig(loader, stop, slogger); err != nil {
		slogger.Warn("config file watch disabled", "error", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil {
			slogger.Error("http server failed", "error", err)
			serveErr <- err
			cancel()
		}
	}()

	err = stop.Wait(ctx)
	select {
	case sErr := <-serveErr:
		err = errors.Join(sErr, err)
	default:
	}
	slogger.Info("relaygate-server stopped")
	return err
}

func openKeyring(cfg *config.ServerConfig, stop *shutdown.Handler, log *slog.Logger) (*keyring.Keyring, error) {
	set, err := keyring.LoadFile(cfg.Token.KeysFile)
	if err != nil {
		return nil, fmt.Errorf("load signing keys: %w", err)
	}
	kr := keyring.New(set)
	log.Info("signing keys loaded", "file", cfg.Token.KeysFile, "keys", set.IDs(), "default", set.DefaultID())

	if cfg.Token.WatchKeys {
		w := keyring.NewWatcher(cfg.Token.KeysFile, kr,
			keyring.WithLogger(log),
			keyring.OnReload(func(s *keyring.Set) {
				log.Info("signing keys reloaded", "keys", s.IDs(), "default", s.DefaultID())
			}),
		)
		w.StartAsync()
		stop.OnShutdown("keyring-watcher", func(context.Context) error {
			w.Stop()
			return nil
		})
	}
	return kr, nil
}

func buildGateway(cfg *config.ServerConfig, kr *keyring.Keyring, store storage.Store, metrics *metric.Registry, log *slog.Logger) *service.Gateway {
	opts := []service.Option{service.WithLogger(log), service.WithMetrics(metrics)}

	vcfg := service.DefaultValidatorConfig()
	vcfg.Issuer = cfg.Token.Issuer
	vcfg.Audience = cfg.Token.Audience
	vcfg.Leeway = cfg.Token.Leeway
	vcfg.Policy = cfg.TokenPolicy()
	vcfg.ConsumeWrite = cfg.Token.ConsumeWrite
	vcfg.ConsumedCacheSize = cfg.Token.ConsumedCacheSize
	vcfg.ConsumedCacheTTL = cfg.Token.ConsumedCacheTTL

	rooms := service.NewRoomRegistry(store, cfg.Room.TTL,
		service.WithLogger(log),
		service.WithMetrics(metrics),
		service.WithMaxRoomTTL(cfg.Room.MaxTTL),
	)
	return service.NewGateway(
		service.NewTokenValidator(kr, store, vcfg, opts...),
		service.NewBinder(opts...),
		rooms,
	)
}

// watchConfig re-reads the config file on change. Only the log level is
// applied live; other changes are reported and need a restart.
func watchConfig(loader *confloader.Loader, stop *shutdown.Handler, log *slog.Logger) error {
	path := loader.FilePath()
	if path == "" {
		return nil
	}
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return err
	}
	if err := w.Watch(path); err != nil {
		_ = w.Stop()
		return err
	}
	w.OnChange(func(string) {
		next, err := reloadConfig(loader)
		if err != nil {
			log.Error("config reload rejected", "error", err)
			return
		}
		if next.Log.Level != logger.Level() {
			if err := logger.SetLevel(next.Log.Level); err != nil {
				log.Error("log level not changed", "error", err)
			} else {
				log.Info("log level changed", "level", logger.Level())
			}
		}
		log.Info("config file reloaded; settings other than log.level apply after restart")
	})
	w.StartAsync()
	stop.OnShutdown("config-watcher", func(context.Context) error { return w.Stop() })
	return nil
}
