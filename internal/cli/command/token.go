package command

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/relaygate/internal/authority"
	"github.com/yndnr/relaygate/internal/core/domain"
	"github.com/yndnr/relaygate/internal/infra/confloader"
	"github.com/yndnr/relaygate/internal/infra/keyring"
	serverconfig "github.com/yndnr/relaygate/internal/server/config"
	"github.com/yndnr/relaygate/internal/storage"
	"github.com/yndnr/relaygate/internal/storage/engine"
	"github.com/yndnr/relaygate/internal/telemetry/logger"
	"github.com/yndnr/relaygate/pkg/relayclient"
)

// TokenCommand returns the token subcommand group.
func TokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Verify and mint relay tokens",
		Subcommands: []*cli.Command{
			{
				Name:      "verify",
				Usage:     "Verify a token against the server (\"-\" reads it from stdin)",
				ArgsUsage: "TOKEN",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "consume", Usage: "spend a write token on success"},
					&cli.BoolFlag{Name: "peek", Usage: "verify without spending a write token"},
				},
				Action: tokenVerify,
			},
			{
				Name:  "mint",
				Usage: "Sign a token with the server's keys (development tooling)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "server-config",
						Usage:   "relaygate-server config file (keys, issuer, store)",
						EnvVars: []string{"RELAYGATE_CONFIG"},
					},
					&cli.StringFlag{Name: "class", Value: string(domain.TokenClassRead), Usage: "token class: read or write"},
					&cli.StringFlag{Name: "sub", Required: true, Usage: "subject"},
					&cli.StringFlag{Name: "name", Usage: "display name"},
					&cli.StringSliceFlag{Name: "scope", Usage: "scope (repeatable)"},
					&cli.StringFlag{Name: "room", Usage: "room the token is restricted to"},
					&cli.DurationFlag{Name: "ttl", Usage: "shorter lifetime than the class default"},
					&cli.StringFlag{Name: "key-id", Usage: "signing key (default key when empty)"},
					&cli.BoolFlag{Name: "raw", Usage: "print only the token"},
				},
				Action: tokenMint,
			},
		},
	}
}

func tokenVerify(c *cli.Context) error {
	raw, err := tokenArg(c)
	if err != nil {
		return err
	}

	mode := relayclient.ServerDefault
	switch {
	case c.Bool("consume") && c.Bool("peek"):
		return errors.New("--consume and --peek are mutually exclusive")
	case c.Bool("consume"):
		mode = relayclient.Consume
	case c.Bool("peek"):
		mode = relayclient.Peek
	}

	client, err := newClient(c)
	if err != nil {
		return err
	}
	id, err := client.VerifyToken(c.Context, raw, mode)
	if err != nil {
		return err
	}
	return render(c, id)
}

func tokenArg(c *cli.Context) (string, error) {
	arg := c.Args().First()
	if arg == "" {
		return "", errors.New("token argument required")
	}
	if arg != "-" {
		return arg, nil
	}
	line, err := bufio.NewReader(c.App.Reader).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read token: %w", err)
	}
	if line = strings.TrimSpace(line); line == "" {
		return "", errors.New("no token on stdin")
	}
	return line, nil
}

func tokenMint(c *cli.Context) error {
	class, ok := domain.ParseTokenClass(c.String("class"))
	if !ok {
		return fmt.Errorf("unknown token class %q", c.String("class"))
	}

	path := c.String("server-config")
	if path == "" {
		path = cliConfig(c).ServerConfig
	}
	scfg, err := loadServerConfig(path)
	if err != nil {
		return err
	}

	set, err := keyring.LoadFile(scfg.Token.KeysFile)
	if err != nil {
		return fmt.Errorf("load signing keys: %w", err)
	}

	var store storage.Store
	if class == domain.TokenClassWrite {
		store, err = openStore(c, scfg)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	m := authority.New(keyring.New(set), store, &authority.Config{
		Issuer:      scfg.Token.Issuer,
		Audience:    scfg.Token.Audience,
		ClassPrefix: authority.DefaultConfig().ClassPrefix,
		KeyID:       c.String("key-id"),
		Policy:      scfg.TokenPolicy(),
		RecordSlack: authority.DefaultRecordSlack,
	})
	tok, err := m.Mint(c.Context, class, authority.Request{
		Subject:     c.String("sub"),
		DisplayName: c.String("name"),
		Scopes:      c.StringSlice("scope"),
		Room:        c.String("room"),
		TTL:         c.Duration("ttl"),
	})
	if err != nil {
		return err
	}

	if c.Bool("raw") {
		_, err := fmt.Fprintln(c.App.Writer, tok.Raw)
		return err
	}
	return render(c, tok)
}

// loadServerConfig reads the token and store sections of a server config.
// The internal secret and listener settings are not needed here, so the
// file is not run through the full server verification.
func loadServerConfig(path string) (*serverconfig.ServerConfig, error) {
	if path == "" {
		return nil, errors.New("server config required (use --server-config or server_config in the CLI config)")
	}
	cfg := serverconfig.Default()
	if err := confloader.NewLoader(confloader.WithConfigFile(path)).Load(cfg); err != nil {
		return nil, fmt.Errorf("load server config: %w", err)
	}
	if cfg.Token.KeysFile == "" {
		return nil, fmt.Errorf("%s: token.keys_file is not set", path)
	}
	return cfg, nil
}

func openStore(c *cli.Context, cfg *serverconfig.ServerConfig) (storage.Store, error) {
	log, err := logger.New(logger.Config{Level: "warn", Format: "text", Output: c.App.ErrWriter})
	if err != nil {
		return nil, err
	}
	if cfg.Store.Engine == serverconfig.EngineMemory {
		log.Warn("store engine is memory; the confirmation record lives only in this process")
	}
	store, err := engine.Open(&cfg.Store, nil, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}
