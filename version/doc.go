// Package version reports the build of the rowflow binary.
//
// Version, commit and build time are set at compile time via -ldflags;
// missing values fall back to the VCS stamp of the Go toolchain:
//
//	go build -ldflags "-X github.com/kbukum/rowflow/version.Version=1.0.0" ./cmd/rowflow
package version
