package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the semantic version of the build. It can be overridden via ldflags.
	Version = "0.1.0"
	// Commit is the short git SHA embedded at build time (or "none").
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

// Short returns only the semantic version string.
func Short() string {
	return Version
}

// Full returns a human-readable version string with commit, build time and toolchain.
func Full() string {
	return fmt.Sprintf("version: %s, commit: %s, built at: %s, go: %s", Version, Commit, BuildTime, runtime.Version())
}

// UserAgent identifies app in outbound requests, e.g. "cave-commander/0.1.0".
func UserAgent(app string) string {
	return app + "/" + Version
}
