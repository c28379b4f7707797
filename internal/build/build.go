// Package build holds the application identity and version metadata
// injected at build time.
package build

var (
	// Version is the semantic version, set via -ldflags at release build.
	Version = "0.0.0-dev"
)

const (
	// AppName is the display name of the application.
	AppName = "s1compose"

	// Slug is the lowercase identifier used for config paths and the
	// environment variable prefix.
	Slug = "s1compose"
)
