// Package build provides the staged pipeline that turns a kernel version
// string into a set of installable RT kernel RPMs: tool preparation,
// source acquisition, configuration mutation, compilation and packaging.
package build

import (
	"context"
	"io"
	"time"

	"github.com/bitswalk/rtk/src/common/logs"
)

var log = logs.NewDefault()

// StageName identifies a pipeline stage.
type StageName string

const (
	// StageTools prepares the build environment
	StageTools StageName = "tools"
	// StageFetch downloads and extracts the kernel source
	StageFetch StageName = "fetch"
	// StageConfigure mutates the kernel configuration
	StageConfigure StageName = "configure"
	// StageCompile compiles the kernel
	StageCompile StageName = "compile"
	// StagePackage builds the binary RPM set
	StagePackage StageName = "package"
)

// Stage defines the interface for a single pipeline stage
type Stage interface {
	// Name returns the stage name
	Name() StageName

	// Validate checks whether this stage can run given the current context
	Validate(sc *StageContext) error

	// Execute runs the stage, updating progress via the callback
	Execute(ctx context.Context, sc *StageContext, progress ProgressFunc) error
}

// ProgressFunc reports stage progress (0-100) with an optional message
type ProgressFunc func(percent int, message string)

// StageContext holds shared state passed through the pipeline
type StageContext struct {
	RunID         string // Unique ID for this pipeline run
	KernelVersion string // Upstream kernel version, e.g. "6.6.52"
	WorkspacePath string // Root workspace directory for this run
	SourcesDir    string // Where downloaded archives land
	LogsDir       string // Build logs
	RPMTopDir     string // rpmbuild _topdir for the package stage

	SourceDir string // Extracted kernel tree, populated by the fetch stage

	Parallelism int  // Parallel make jobs
	Debug       bool // Verbose build output (make V=1)
	Menuconfig  bool // Drop into interactive configuration before building

	// BaseConfigPath overrides the base configuration snapshot. Empty means
	// the running system's /boot/config-$(uname -r).
	BaseConfigPath string

	Executor  Executor
	LogWriter io.Writer

	// Packages is the Package Set produced by the package stage
	Packages *PackageSet
}

// PackageSet is the output of one build: the kernel RPMs produced by the
// package stage. Produced once, consumed once by deploy, then immutable.
type PackageSet struct {
	KernelVersion string
	RunID         string
	CreatedAt     time.Time
	RPMs          []string // absolute paths, all matching kernel-*.rpm
}

// Empty reports whether the set contains no packages.
func (p *PackageSet) Empty() bool {
	return p == nil || len(p.RPMs) == 0
}
