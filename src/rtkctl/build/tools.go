package build

import (
	"context"
	"fmt"

	rtkerr "github.com/bitswalk/rtk/src/common/errors"
)

// ToolSpec maps a required command to the dnf package providing it.
type ToolSpec struct {
	Command string
	Package string
}

// DefaultTools lists everything the kernel build and packaging steps need.
func DefaultTools() []ToolSpec {
	return []ToolSpec{
		{Command: "make", Package: "make"},
		{Command: "gcc", Package: "gcc"},
		{Command: "flex", Package: "flex"},
		{Command: "bison", Package: "bison"},
		{Command: "bc", Package: "bc"},
		{Command: "openssl", Package: "openssl-devel"},
		{Command: "pahole", Package: "dwarves"},
		{Command: "rpmbuild", Package: "rpm-build"},
		{Command: "xz", Package: "xz"},
	}
}

// ToolsStage ensures every required external tool is present, attempting
// exactly one package-manager install per missing tool.
type ToolsStage struct {
	tools []ToolSpec
}

// NewToolsStage creates a tools stage. A nil tool list means DefaultTools.
func NewToolsStage(tools []ToolSpec) *ToolsStage {
	if tools == nil {
		tools = DefaultTools()
	}
	return &ToolsStage{tools: tools}
}

// Name returns the stage name
func (s *ToolsStage) Name() StageName {
	return StageTools
}

// Validate checks whether this stage can run
func (s *ToolsStage) Validate(sc *StageContext) error {
	if sc.Executor == nil {
		return fmt.Errorf("no executor configured")
	}
	return nil
}

// Execute checks each tool and installs missing ones. A tool still absent
// after its single install attempt is fatal.
func (s *ToolsStage) Execute(ctx context.Context, sc *StageContext, progress ProgressFunc) error {
	progress(0, "Checking required tools")

	total := len(s.tools)
	for i, tool := range s.tools {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pct := (90 * (i + 1)) / total
		progress(pct, fmt.Sprintf("Checking tool: %s", tool.Command))

		if _, err := sc.Executor.LookPath(tool.Command); err == nil {
			continue
		}

		log.Info("Installing missing tool", "command", tool.Command, "package", tool.Package)
		installErr := sc.Executor.Run(ctx, RunOpts{
			Command: []string{"dnf", "install", "-y", tool.Package},
			Stdout:  sc.LogWriter,
			Stderr:  sc.LogWriter,
		})
		if installErr != nil {
			log.Warn("Install attempt failed", "package", tool.Package, "error", installErr)
		}

		if _, err := sc.Executor.LookPath(tool.Command); err != nil {
			return rtkerr.ErrToolMissing.
				WithMessagef("required tool %q not found after installing %q", tool.Command, tool.Package).
				WithRemedy(fmt.Sprintf("Install it manually: dnf install -y %s", tool.Package)).
				WithCause(err)
		}
	}

	progress(100, fmt.Sprintf("All %d tools available", total))
	return nil
}
