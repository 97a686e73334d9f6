// Package version provides common version information structures for rtk tools.
package version

import (
	"fmt"
	"runtime"
)

// Info holds version information for an rtk tool.
// These values are typically set at build time via ldflags.
type Info struct {
	// Version is the full version string: "Chrono (2026.02) - v0.3.0-ab12cd3"
	Version string

	// ReleaseName is the codename for this release (e.g., "Chrono")
	ReleaseName string

	// ReleaseVersion is the semantic version (e.g., "0.3.0")
	ReleaseVersion string

	// BuildDate is the ISO 8601 build timestamp
	BuildDate string

	// GitCommit is the short git commit hash
	GitCommit string
}

// Default values for unset version info
var (
	DefaultVersion        = "dev"
	DefaultReleaseName    = "Chrono"
	DefaultReleaseVersion = "0.0.0"
	DefaultBuildDate      = "unknown"
	DefaultGitCommit      = "unknown"
)

// New creates a new Info with default values
func New() *Info {
	return &Info{
		Version:        DefaultVersion,
		ReleaseName:    DefaultReleaseName,
		ReleaseVersion: DefaultReleaseVersion,
		BuildDate:      DefaultBuildDate,
		GitCommit:      DefaultGitCommit,
	}
}

// GoVersion returns the Go runtime version
func GoVersion() string {
	return runtime.Version()
}

// String returns the full version string
func (i *Info) String() string {
	return i.Version
}

// Short returns a short version string (release version + commit)
func (i *Info) Short() string {
	return fmt.Sprintf("v%s-%s", i.ReleaseVersion, i.GitCommit)
}

// Full returns a formatted multi-line version report
func (i *Info) Full() string {
	return fmt.Sprintf("%s (%s)\n  version: %s\n  built:   %s\n  commit:  %s\n  go:      %s",
		i.ReleaseName, i.ReleaseVersion, i.Version, i.BuildDate, i.GitCommit, GoVersion())
}
