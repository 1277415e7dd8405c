package config

import "time"

// CLIConfig is the configuration for relaygate-cli.
type CLIConfig struct {
	// Output is the default output format: table, json or yaml.
	Output string `koanf:"output" yaml:"output" json:"output"`

	// Current names the profile used when --profile is not given.
	Current string `koanf:"current" yaml:"current" json:"current"`

	Connections map[string]ConnectionConfig `koanf:"connections" yaml:"connections" json:"connections"`

	// ServerConfig is the relaygate-server config file used by
	// "token mint" to reach the signing keys and the shared store.
	ServerConfig string `koanf:"server_config" yaml:"server_config,omitempty" json:"server_config,omitempty"`
}

// ConnectionConfig is one saved server profile.
type ConnectionConfig struct {
	Server     string        `koanf:"server" yaml:"server" json:"server"`
	Secret     string        `koanf:"secret" yaml:"secret,omitempty" json:"secret,omitempty"`
	SecretFile string        `koanf:"secret_file" yaml:"secret_file,omitempty" json:"secret_file,omitempty"`
	CAFile     string        `koanf:"ca_file" yaml:"ca_file,omitempty" json:"ca_file,omitempty"`
	Timeout    time.Duration `koanf:"timeout" yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Profile returns the named connection, falling back to Current when
// name is empty.
func (c *CLIConfig) Profile(name string) (ConnectionConfig, bool) {
	if name == "" {
		name = c.Current
	}
	conn, ok := c.Connections[name]
	return conn, ok
}
