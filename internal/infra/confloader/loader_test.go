package confloader

import (
	"os"
	"path/filepath"
	"testing"
)

type testConfig struct {
	Port   int `koanf:"port"`
	Server struct {
		Port int `koanf:"port"`
		HTTP struct {
			Address string `koanf:"address"`
			Enabled bool   `koanf:"enabled"`
		} `koanf:"http"`
	} `koanf:"server"`
	Token struct {
		WriteTTL     string `koanf:"write_ttl"`
		ConsumeWrite bool   `koanf:"consume_write"`
	} `koanf:"token"`
}

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relaygate.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func unmarshal(t *testing.T, l *Loader) testConfig {
	t.Helper()
	var cfg testConfig
	if err := l.Unmarshal(&cfg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	return cfg
}

func TestNewLoader(t *testing.T) {
	l := NewLoader()
	if l.envPrefix != DefaultEnvPrefix {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, DefaultEnvPrefix)
	}

	l = NewLoader(WithEnvPrefix("TEST_"), WithConfigFile("/etc/relaygate.yaml"))
	if l.envPrefix != "TEST_" {
		t.Errorf("envPrefix = %q, want TEST_", l.envPrefix)
	}
	if l.FilePath() != "/etc/relaygate.yaml" {
		t.Errorf("FilePath() = %q", l.FilePath())
	}
}

func TestLoader_LoadFile(t *testing.T) {
	path := writeYAML(t, `
server:
  http:
    address: "0.0.0.0:5080"
    enabled: true
token:
  write_ttl: "30s"
`)

	l := NewLoader()
	if err := l.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	cfg := unmarshal(t, l)
	if cfg.Server.HTTP.Address != "0.0.0.0:5080" {
		t.Errorf("server.http.address = %q", cfg.Server.HTTP.Address)
	}
	if !cfg.Server.HTTP.Enabled {
		t.Error("server.http.enabled should be true")
	}
	if cfg.Token.WriteTTL != "30s" {
		t.Errorf("token.write_ttl = %q", cfg.Token.WriteTTL)
	}

	if err := l.LoadFile("/nonexistent/relaygate.yaml"); err == nil {
		t.Error("LoadFile() should fail for a missing file")
	}
	if err := l.LoadFile(""); err != nil {
		t.Errorf("LoadFile(\"\") error = %v", err)
	}
}

func TestLoader_EnvKeyMapping(t *testing.T) {
	l := NewLoader()

	tests := []struct {
		env  string
		want string
	}{
		{"RELAYGATE_SERVER_HTTP_ADDRESS", "server.http.address"},
		{"RELAYGATE_TOKEN__WRITE_TTL", "token.write_ttl"},
		{"RELAYGATE_STORE__REDIS__OP_TIMEOUT", "store.redis.op_timeout"},
		{"RELAYGATE_DEBUG", "debug"},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			if got := l.envKey(tt.env); got != tt.want {
				t.Errorf("envKey(%q) = %q, want %q", tt.env, got, tt.want)
			}
		})
	}
}

func TestLoader_LoadEnv(t *testing.T) {
	t.Setenv("RELAYGATE_SERVER_HTTP_ADDRESS", "127.0.0.1:8080")
	t.Setenv("RELAYGATE_TOKEN__CONSUME_WRITE", "false")
	t.Setenv("MYAPP_SERVER_PORT", "9090")

	l := NewLoader()
	if err := l.LoadEnv(); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	cfg := testConfig{}
	cfg.Token.ConsumeWrite = true
	if err := l.Unmarshal(&cfg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if cfg.Server.HTTP.Address != "127.0.0.1:8080" {
		t.Errorf("server.http.address = %q", cfg.Server.HTTP.Address)
	}
	if cfg.Token.ConsumeWrite {
		t.Error("token.consume_write = true, want false from the environment")
	}
	if cfg.Server.Port != 0 {
		t.Error("variables with another prefix must be ignored")
	}

	custom := NewLoader(WithEnvPrefix("MYAPP_"))
	if err := custom.LoadEnv(); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if port := unmarshal(t, custom).Server.Port; port != 9090 {
		t.Errorf("server.port = %d, want 9090", port)
	}
}

func TestLoader_Load_Priority(t *testing.T) {
	path := writeYAML(t, `
server:
  http:
    address: "from-file:5080"
token:
  write_ttl: "20s"
`)
	t.Setenv("RELAYGATE_SERVER_HTTP_ADDRESS", "from-env:8080")

	l := NewLoader(
		WithConfigFile(path),
		WithOverrides(map[string]any{"token.write_ttl": "10s"}),
	)

	var cfg testConfig
	cfg.Token.ConsumeWrite = true
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTP.Address != "from-env:8080" {
		t.Errorf("Address = %q, env should override file", cfg.Server.HTTP.Address)
	}
	if cfg.Token.WriteTTL != "10s" {
		t.Errorf("WriteTTL = %q, overrides should win", cfg.Token.WriteTTL)
	}
	if !cfg.Token.ConsumeWrite {
		t.Error("defaults in the target must survive when no source sets them")
	}
}

func TestLoader_Reload(t *testing.T) {
	path := writeYAML(t, "server:\n  http:\n    address: first:1\n")

	l := NewLoader(WithConfigFile(path))
	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := os.WriteFile(path, []byte("token:\n  write_ttl: 5s\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	var fresh testConfig
	if err := l.Reload(&fresh); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if fresh.Server.HTTP.Address != "" {
		t.Errorf("Reload kept a value removed from the file: %q", fresh.Server.HTTP.Address)
	}
	if fresh.Token.WriteTTL != "5s" {
		t.Errorf("WriteTTL = %q, want 5s", fresh.Token.WriteTTL)
	}
}

func TestLoader_LoadMap(t *testing.T) {
	l := NewLoader()
	if err := l.LoadMap(map[string]any{
		"server.http.address": "localhost:3000",
		"port":                8080,
	}); err != nil {
		t.Fatalf("LoadMap() error = %v", err)
	}

	cfg := unmarshal(t, l)
	if cfg.Server.HTTP.Address != "localhost:3000" {
		t.Errorf("server.http.address = %q", cfg.Server.HTTP.Address)
	}
	if cfg.Port != 8080 {
		t.Errorf("port = %d", cfg.Port)
	}
}
