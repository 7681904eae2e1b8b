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

// String returns a single-line identity suitable for startup logs.
func String() string {
	return fmt.Sprintf("sentry %s (%s, built %s)", Version, GitSHA, BuildTime)
}
