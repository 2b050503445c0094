// Package buildinfo exposes version information for the AuthMesh
// binaries.
//
// Release builds inject values via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/authmesh-go/internal/infra/buildinfo.Version=v1.0.0"
//
// Fields left unset are filled from the module's embedded build info
// (VCS revision and time, Go version) when available.
package buildinfo
