package version

import "fmt"

// Set at build time with -ldflags "-X github.com/sameehj/gatekeeper/pkg/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// String returns the program name with its build metadata.
func String() string {
	return fmt.Sprintf("gatekeeper %s (commit %s, built %s)", Version, GitCommit, BuildDate)
}
