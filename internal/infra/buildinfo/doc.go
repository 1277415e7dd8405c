// Package buildinfo reports the version of the running relaygate binary.
//
// Release builds stamp the values with ldflags:
//
//	go build -ldflags "-X github.com/yndnr/relaygate/internal/infra/buildinfo.Version=v1.2.0 \
//	  -X github.com/yndnr/relaygate/internal/infra/buildinfo.Commit=$(git rev-parse --short HEAD)"
//
// Unstamped builds fall back to the VCS data the Go toolchain embeds.
package buildinfo
