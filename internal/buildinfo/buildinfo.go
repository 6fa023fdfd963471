// Package buildinfo exposes build-time version metadata.
// Values are injected via -ldflags at release build time.
package buildinfo

var (
	// Version is the semantic version of this build.
	Version = "dev"
	// GitCommit is the short commit hash of this build.
	GitCommit = "unknown"
	// BuildTime is the RFC3339 timestamp of this build.
	BuildTime = "unknown"
)
