package config

import "time"

// Defaults.
const (
	DefaultProfile = "default"
	DefaultServer  = "http://127.0.0.1:5080"
	DefaultOutput  = "table"
	DefaultTimeout = 10 * time.Second
)

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		Output:  DefaultOutput,
		Current: DefaultProfile,
		Connections: map[string]ConnectionConfig{
			DefaultProfile: {Server: DefaultServer, Timeout: DefaultTimeout},
		},
	}
}
