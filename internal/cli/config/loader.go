package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/yndnr/relaygate/internal/infra/confloader"
)

// EnvPrefix is the environment variable prefix for CLI settings.
const EnvPrefix = "RELAYGATE_CLI_"

// DefaultConfigPath returns the default CLI config file path.
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".relaygate", "cli.yaml")
}

// Load reads the CLI configuration from path. A missing file is not an
// error; the defaults plus environment overrides are returned.
func Load(path string) (*CLIConfig, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	cfg := Default()
	opts := []confloader.Option{confloader.WithEnvPrefix(EnvPrefix)}
	if _, err := os.Stat(path); err == nil {
		// A saved file owns the full profile list.
		cfg.Connections = map[string]ConnectionConfig{}
		opts = append(opts, confloader.WithConfigFile(path))
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}
	if err := Verify(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path with owner-only permissions.
func Save(cfg *CLIConfig, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if err := Verify(cfg); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Verify checks the configuration for values the CLI cannot use.
func Verify(cfg *CLIConfig) error {
	var errs []error
	switch cfg.Output {
	case "table", "json", "yaml":
	default:
		errs = append(errs, fmt.Errorf("output must be table, json or yaml, got %q", cfg.Output))
	}
	for name, conn := range cfg.Connections {
		if conn.Server == "" {
			errs = append(errs, fmt.Errorf("connections.%s.server is required", name))
		}
		if conn.Secret != "" && conn.SecretFile != "" {
			errs = append(errs, fmt.Errorf("connections.%s: secret and secret_file are mutually exclusive", name))
		}
		if conn.Timeout < 0 {
			errs = append(errs, fmt.Errorf("connections.%s.timeout must not be negative", name))
		}
	}
	return errors.Join(errs...)
}
