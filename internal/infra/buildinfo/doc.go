// Package buildinfo exposes the version, commit and build time of the
// memgate binaries.
//
// Values are injected at build time via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/memgate-go/internal/infra/buildinfo.Version=v1.0.0"
package buildinfo
