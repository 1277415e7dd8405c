package command

import (
	"errors"
	"fmt"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/relaygate/internal/cli/config"
	"github.com/yndnr/relaygate/internal/cli/output"
	"github.com/yndnr/relaygate/pkg/secret"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage the CLI config file and connection profiles",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show profiles (secrets masked)",
				Action: configShow,
			},
			{
				Name:   "path",
				Usage:  "Print the config file path",
				Action: func(c *cli.Context) error { _, err := fmt.Fprintln(c.App.Writer, cliConfigPath(c)); return err },
			},
			{
				Name:      "use",
				Usage:     "Select the default profile",
				ArgsUsage: "PROFILE",
				Action:    configUse,
			},
			{
				Name:      "set-profile",
				Usage:     "Create or update a profile",
				ArgsUsage: "PROFILE",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "server", Usage: "server address"},
					&cli.StringFlag{Name: "secret", Usage: "internal API secret (stored in the config file)"},
					&cli.StringFlag{Name: "secret-file", Usage: "file holding the internal API secret"},
					&cli.StringFlag{Name: "ca-file", Usage: "PEM bundle trusted for https servers"},
					&cli.DurationFlag{Name: "timeout", Usage: "request timeout"},
				},
				Action: configSetProfile,
			},
			{
				Name:      "delete-profile",
				Usage:     "Remove a profile",
				ArgsUsage: "PROFILE",
				Action:    configDeleteProfile,
			},
		},
	}
}

// profileTable lists profiles with the current one marked.
type profileTable struct {
	current string
	names   []string
	conns   map[string]config.ConnectionConfig
}

func (p profileTable) Table(wide bool) *output.Table {
	t := &output.Table{Headers: []string{"CURRENT", "PROFILE", "SERVER", "AUTH"}}
	if wide {
		t.Headers = append(t.Headers, "CA FILE", "TIMEOUT")
	}
	for _, name := range p.names {
		conn := p.conns[name]
		mark := ""
		if name == p.current {
			mark = "*"
		}
		row := []string{mark, name, conn.Server, authSummary(conn)}
		if wide {
			timeout := "-"
			if conn.Timeout > 0 {
				timeout = conn.Timeout.String()
			}
			row = append(row, dash(conn.CAFile), timeout)
		}
		t.AddRow(row...)
	}
	return t
}

func authSummary(conn config.ConnectionConfig) string {
	switch {
	case conn.Secret != "":
		return "secret " + secret.Mask(conn.Secret)
	case conn.SecretFile != "":
		return "file " + conn.SecretFile
	default:
		return "-"
	}
}

func configShow(c *cli.Context) error {
	cfg := cliConfig(c)
	masked := *cfg
	masked.Connections = make(map[string]config.ConnectionConfig, len(cfg.Connections))
	names := make([]string, 0, len(cfg.Connections))
	for name, conn := range cfg.Connections {
		if conn.Secret != "" {
			conn.Secret = secret.Mask(conn.Secret)
		}
		masked.Connections[name] = conn
		names = append(names, name)
	}
	sort.Strings(names)

	p, err := newPrinter(c)
	if err != nil {
		return err
	}
	if format, _ := output.ParseFormat(outputName(c)); format != output.FormatTable {
		return p.Print(masked)
	}
	return p.Print(profileTable{current: cfg.Current, names: names, conns: masked.Connections})
}

func profileArg(c *cli.Context) (string, error) {
	name := c.Args().First()
	if name == "" {
		return "", errors.New("profile name required")
	}
	return name, nil
}

func configUse(c *cli.Context) error {
	name, err := profileArg(c)
	if err != nil {
		return err
	}
	cfg := cliConfig(c)
	if _, ok := cfg.Connections[name]; !ok {
		return fmt.Errorf("unknown profile %q", name)
	}
	cfg.Current = name
	if err := config.Save(cfg, cliConfigPath(c)); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "using profile %s\n", name)
	return nil
}

func configSetProfile(c *cli.Context) error {
	name, err := profileArg(c)
	if err != nil {
		return err
	}
	cfg := cliConfig(c)
	if cfg.Connections == nil {
		cfg.Connections = map[string]config.ConnectionConfig{}
	}

	conn, exists := cfg.Connections[name]
	if !exists {
		conn = config.ConnectionConfig{Server: config.DefaultServer}
	}
	if v := c.String("server"); v != "" {
		conn.Server = v
	}
	if v := c.String("secret"); v != "" {
		conn.Secret, conn.SecretFile = v, ""
	}
	if v := c.String("secret-file"); v != "" {
		conn.Secret, conn.SecretFile = "", v
	}
	if v := c.String("ca-file"); v != "" {
		conn.CAFile = v
	}
	if v := c.Duration("timeout"); v != 0 {
		conn.Timeout = v
	}
	cfg.Connections[name] = conn
	if len(cfg.Connections) == 1 || cfg.Current == "" {
		cfg.Current = name
	}

	if err := config.Save(cfg, cliConfigPath(c)); err != nil {
		return err
	}
	verb := "updated"
	if !exists {
		verb = "created"
	}
	fmt.Fprintf(c.App.Writer, "profile %s %s\n", name, verb)
	return nil
}

func configDeleteProfile(c *cli.Context) error {
	name, err := profileArg(c)
	if err != nil {
		return err
	}
	cfg := cliConfig(c)
	if _, ok := cfg.Connections[name]; !ok {
		return fmt.Errorf("unknown profile %q", name)
	}
	if name == cfg.Current {
		return fmt.Errorf("profile %q is in use; switch with \"config use\" first", name)
	}
	delete(cfg.Connections, name)
	if err := config.Save(cfg, cliConfigPath(c)); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "profile %s deleted\n", name)
	return nil
}
