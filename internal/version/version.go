// Package version carries build metadata stamped in with -ldflags.
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

// String formats the metadata for logs and -version output.
func String() string {
	return fmt.Sprintf("anchorpoint %s (%s, built %s)", Version, GitSHA, BuildTime)
}
