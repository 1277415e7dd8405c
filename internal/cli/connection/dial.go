package connection

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/yndnr/relaygate/internal/cli/config"
	"github.com/yndnr/relaygate/internal/infra/buildinfo"
	"github.com/yndnr/relaygate/internal/infra/tlsroots"
	"github.com/yndnr/relaygate/pkg/relayclient"
)

// ErrNoSecret is returned when a profile carries neither a secret nor a
// secret file.
var ErrNoSecret = errors.New("no internal secret configured (use --secret, --secret-file or a profile)")

// UserAgent identifies CLI requests in server logs.
func UserAgent() string {
	return "relaygate-cli/" + buildinfo.Version
}

// Dial builds a client for the given profile.
func Dial(conn config.ConnectionConfig) (*relayclient.Client, error) {
	secret, err := ResolveSecret(conn)
	if err != nil {
		return nil, err
	}

	opts := []relayclient.Option{relayclient.WithUserAgent(UserAgent())}
	if conn.Timeout > 0 {
		opts = append(opts, relayclient.WithTimeout(conn.Timeout))
	}
	if conn.CAFile != "" {
		pool, err := tlsroots.LoadPool(conn.CAFile)
		if err != nil {
			return nil, fmt.Errorf("load ca file: %w", err)
		}
		opts = append(opts, relayclient.WithTLSConfig(pool.ClientConfig("")))
	}

	return relayclient.New(conn.Server, secret, opts...)
}

// ResolveSecret returns the inline secret, or the trimmed contents of the
// secret file.
func ResolveSecret(conn config.ConnectionConfig) (string, error) {
	if conn.Secret != "" {
		return conn.Secret, nil
	}
	if conn.SecretFile == "" {
		return "", ErrNoSecret
	}
	data, err := os.ReadFile(conn.SecretFile)
	if err != nil {
		return "", fmt.Errorf("read secret file: %w", err)
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", conn.SecretFile)
	}
	return secret, nil
}
