package command

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/relaygate/internal/cli/config"
	"github.com/yndnr/relaygate/internal/cli/connection"
	"github.com/yndnr/relaygate/internal/cli/output"
	"github.com/yndnr/relaygate/internal/infra/buildinfo"
	"github.com/yndnr/relaygate/pkg/relayclient"
)

const (
	metaConfig     = "cliConfig"
	metaConfigPath = "cliConfigPath"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:     "relaygate-cli",
		Usage:    "relaygate command-line tool",
		Version:  buildinfo.String(),
		Flags:    globalFlags(),
		Metadata: map[string]any{},
		Commands: []*cli.Command{
			TokenCommand(),
			RoomCommand(),
			SecretCommand(),
			ConfigCommand(),
			statusCommand(),
		},
		Before: loadCLIConfig,
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "CLI config file",
			EnvVars: []string{"RELAYGATE_CLI_CONFIG"},
			Value:   config.DefaultConfigPath(),
		},
		&cli.StringFlag{
			Name:    "profile",
			Aliases: []string{"p"},
			Usage:   "connection profile from the CLI config",
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "relaygate server address (e.g. 127.0.0.1:5080)",
			EnvVars: []string{"RELAYGATE_CLI_SERVER"},
		},
		&cli.StringFlag{
			Name:    "secret",
			Usage:   "internal API secret",
			EnvVars: []string{"RELAYGATE_CLI_SECRET"},
		},
		&cli.StringFlag{
			Name:  "secret-file",
			Usage: "file holding the internal API secret",
		},
		&cli.StringFlag{
			Name:  "ca-file",
			Usage: "PEM bundle trusted for https servers",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "request timeout",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: table, json, yaml",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "show more columns",
		},
		&cli.BoolFlag{
			Name:  "no-headers",
			Usage: "omit table headers",
		},
	}
}

func loadCLIConfig(c *cli.Context) error {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load cli config: %w", err)
	}
	c.App.Metadata[metaConfig] = cfg
	c.App.Metadata[metaConfigPath] = path
	return nil
}

func cliConfig(c *cli.Context) *config.CLIConfig {
	if cfg, ok := c.App.Metadata[metaConfig].(*config.CLIConfig); ok {
		return cfg
	}
	return config.Default()
}

func cliConfigPath(c *cli.Context) string {
	if path, ok := c.App.Metadata[metaConfigPath].(string); ok {
		return path
	}
	return config.DefaultConfigPath()
}

// connectionFrom resolves the active profile and applies flag overrides.
func connectionFrom(c *cli.Context) (config.ConnectionConfig, error) {
	cfg := cliConfig(c)
	name := c.String("profile")
	conn, ok := cfg.Profile(name)
	if !ok && name != "" {
		return conn, fmt.Errorf("unknown profile %q", name)
	}

	if c.IsSet("server") {
		conn.Server = c.String("server")
	}
	if c.IsSet("secret") {
		conn.Secret, conn.SecretFile = c.String("secret"), ""
	}
	if c.IsSet("secret-file") {
		conn.Secret, conn.SecretFile = "", c.String("secret-file")
	}
	if c.IsSet("ca-file") {
		conn.CAFile = c.String("ca-file")
	}
	if c.IsSet("timeout") {
		conn.Timeout = c.Duration("timeout")
	}
	if conn.Server == "" {
		conn.Server = config.DefaultServer
	}
	if conn.Timeout == 0 {
		conn.Timeout = config.DefaultTimeout
	}
	return conn, nil
}

func newClient(c *cli.Context) (*relayclient.Client, error) {
	conn, err := connectionFrom(c)
	if err != nil {
		return nil, err
	}
	return connection.Dial(conn)
}

func newPrinter(c *cli.Context) (*output.Printer, error) {
	format, err := output.ParseFormat(outputName(c))
	if err != nil {
		return nil, err
	}
	p := output.NewPrinter(c.App.Writer, format, c.Bool("wide"))
	if c.Bool("no-headers") {
		p.HideHeaders()
	}
	return p, nil
}

func outputName(c *cli.Context) string {
	if c.IsSet("output") {
		return c.String("output")
	}
	return cliConfig(c).Output
}

func render(c *cli.Context, data any) error {
	p, err := newPrinter(c)
	if err != nil {
		return err
	}
	return p.Print(data)
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Check that the server is up and its store reachable",
		Action: func(c *cli.Context) error {
			client, err := newClient(c)
			if err != nil {
				return err
			}
			start := time.Now()
			if err := client.Ready(c.Context); err != nil {
				return fmt.Errorf("server not ready: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "%s ready (%s)\n", client.BaseURL(), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}
