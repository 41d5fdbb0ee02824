// Package version exposes build metadata of the cave binaries.
//
// Version, Commit and BuildTime are injected at build time via Go ldflags
// and default to values suitable for local builds. The strings are used in
// the version subcommand and as the user agent of outbound requests.
package version
