package command

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/relaygate/pkg/secret"
)

// SecretCommand returns the secret subcommand group. It works offline.
func SecretCommand() *cli.Command {
	return &cli.Command{
		Name:  "secret",
		Usage: "Generate and hash internal API secrets",
		Subcommands: []*cli.Command{
			{
				Name:  "generate",
				Usage: "Generate a new internal secret",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "length", Value: secret.DefaultLength, Usage: "random bytes in the secret"},
					&cli.BoolFlag{Name: "hash", Usage: "also print an argon2id hash for server.internal.secret"},
				},
				Action: secretGenerate,
			},
			{
				Name:      "hash",
				Usage:     "Hash a secret for server.internal.secret (\"-\" or no argument reads stdin)",
				ArgsUsage: "[SECRET]",
				Action:    secretHash,
			},
			{
				Name:      "verify",
				Usage:     "Check a secret against an argon2id hash",
				ArgsUsage: "SECRET HASH",
				Action:    secretVerify,
			},
		},
	}
}

type generatedSecret struct {
	Secret string `json:"secret"`
	Hash   string `json:"hash,omitempty"`
}

func secretGenerate(c *cli.Context) error {
	if n := c.Int("length"); n < 16 {
		return fmt.Errorf("--length must be at least 16, got %d", n)
	}
	s, err := secret.GenerateWithLength(c.Int("length"))
	if err != nil {
		return err
	}
	out := generatedSecret{Secret: s}
	if c.Bool("hash") {
		if out.Hash, err = secret.Hash(s); err != nil {
			return err
		}
	}
	if !c.IsSet("output") {
		fmt.Fprintln(c.App.Writer, out.Secret)
		if out.Hash != "" {
			fmt.Fprintln(c.App.Writer, out.Hash)
		}
		return nil
	}
	return render(c, out)
}

func secretHash(c *cli.Context) error {
	s := c.Args().First()
	if s == "" || s == "-" {
		line, err := bufio.NewReader(c.App.Reader).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read secret: %w", err)
		}
		s = strings.TrimSpace(line)
	}
	if s == "" {
		return errors.New("secret required")
	}
	hash, err := secret.Hash(s)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, hash)
	return err
}

func secretVerify(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("usage: secret verify SECRET HASH")
	}
	if !secret.Verify(c.Args().Get(0), c.Args().Get(1)) {
		return cli.Exit("secret does not match", 1)
	}
	fmt.Fprintln(c.App.Writer, "ok")
	return nil
}
