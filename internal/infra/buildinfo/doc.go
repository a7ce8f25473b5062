// Package buildinfo exposes version information for filebay binaries.
//
//	go build -ldflags "-X github.com/twinisland/filebay/internal/infra/buildinfo.Version=v1.0.0"
package buildinfo
