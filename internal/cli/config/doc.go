// Package config defines the relaygate-cli configuration file.
//
// The file lives at ~/.relaygate/cli.yaml by default and holds named
// connection profiles. Environment variables prefixed RELAYGATE_CLI_
// override file values; command-line flags override both.
package config
