// Package version carries build metadata set by the linker, for example
// -ldflags "-X github.com/banshee-data/mitosis.report/internal/version.Version=v0.3.0".
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata for --version output.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, GitSHA, BuildTime)
}
