package main

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/yndnr/relaygate/internal/infra/confloader"
	"github.com/yndnr/relaygate/internal/server/config"
)

// loadConfig layers defaults, the optional file and RELAYGATE_ variables,
// then verifies the result.
func loadConfig(path string) (*config.ServerConfig, *confloader.Loader, error) {
	var opts []confloader.Option
	if path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	loader := confloader.NewLoader(opts...)

	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Verify(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, loader, nil
}

// reloadConfig re-reads every layer into a fresh config.
func reloadConfig(loader *confloader.Loader) (*config.ServerConfig, error) {
	cfg := config.Default()
	if err := loader.Reload(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printConfig(w io.Writer, cfg *config.ServerConfig) error {
	out, err := yaml.Marshal(config.Sanitize(cfg))
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	_, err = w.Write(out)
	return err
}
