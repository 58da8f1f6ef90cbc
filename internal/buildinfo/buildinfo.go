// Package buildinfo provides build version information for the
// foldiff binary, injected at build time via -ldflags.
package buildinfo

import "fmt"

// These variables are set via -ldflags at build time, e.g.:
//
//	go build -ldflags "-X github.com/foldiff/foldiff/internal/buildinfo.GitCommit=$(git rev-parse --short HEAD)"
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// Info returns a formatted version string suitable for --version output.
func Info() string {
	dirty := ""
	if GitDirty == "true" {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, GitCommit, dirty, BuildTime)
}
