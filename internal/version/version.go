// Package version holds build-time version metadata for driftwatch.
// The variables are overridden at release time via -ldflags.
package version

import "fmt"

var (
	// Version is the semantic version of this build.
	Version = "0.1.0"

	// Commit is the git commit hash the binary was built from.
	Commit = "dev"

	// Date is the build timestamp (RFC 3339).
	Date = "unknown"
)

// Short returns the bare version string, e.g. "0.1.0".
func Short() string {
	return Version
}

// Info returns a one-line human-readable version description.
func Info() string {
	return fmt.Sprintf("driftwatch %s (commit %s, built %s)", Version, Commit, Date)
}

// Map returns the version fields as a map, for JSON health payloads.
func Map() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"date":    Date,
	}
}
