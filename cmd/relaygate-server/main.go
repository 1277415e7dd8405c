package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/relaygate/internal/infra/buildinfo"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "relaygate-server",
		Usage:   "relay token validation and room registry service",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{"RELAYGATE_CONFIG"},
			},
		},
		Action: serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the server (default)",
				Action: serveAction,
			},
			{
				Name:   "check-config",
				Usage:  "load and verify the configuration, then print it with secrets masked",
				Action: checkConfigAction,
			},
		},
	}
}

func serveAction(c *cli.Context) error {
	cfg, loader, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}
	return serve(c.Context, cfg, loader)
}

func checkConfigAction(c *cli.Context) error {
	cfg, _, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}
	return printConfig(c.App.Writer, cfg)
}
