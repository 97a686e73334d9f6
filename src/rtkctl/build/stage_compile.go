package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	rtkerr "github.com/bitswalk/rtk/src/common/errors"
)

// CompileStage runs the kernel build proper. Compiler output streams to a
// per-run log file so a failed build leaves a full record behind.
type CompileStage struct{}

// NewCompileStage creates a compile stage
func NewCompileStage() *CompileStage {
	return &CompileStage{}
}

// Name returns the stage name
func (s *CompileStage) Name() StageName {
	return StageCompile
}

// Validate checks whether this stage can run
func (s *CompileStage) Validate(sc *StageContext) error {
	if sc.SourceDir == "" {
		return fmt.Errorf("source directory not set, run the fetch stage first")
	}
	if _, err := os.Stat(filepath.Join(sc.SourceDir, ".config")); err != nil {
		return rtkerr.New(rtkerr.DomainBuild, "not_configured",
			"the source tree has no .config").
			WithRemedy("run 'rtkctl configure' first")
	}
	return nil
}

// Execute compiles the kernel with make -jN.
func (s *CompileStage) Execute(ctx context.Context, sc *StageContext, progress ProgressFunc) error {
	jobs := sc.Parallelism
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	if err := os.MkdirAll(sc.LogsDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", sc.LogsDir, err)
	}
	logPath := filepath.Join(sc.LogsDir, fmt.Sprintf("compile-%s.log", sc.RunID))
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("failed to create build log %s: %w", logPath, err)
	}
	defer logFile.Close()

	var out io.Writer = logFile
	if sc.LogWriter != nil {
		out = io.MultiWriter(logFile, sc.LogWriter)
	}

	command := []string{"make", fmt.Sprintf("-j%d", jobs)}
	if sc.Debug {
		command = append(command, "V=1")
	}

	progress(0, fmt.Sprintf("Compiling with %d jobs", jobs))
	log.Info("Starting kernel compilation", "jobs", jobs, "log", logPath)

	err = sc.Executor.Run(ctx, RunOpts{
		WorkDir: sc.SourceDir,
		Command: command,
		Stdout:  out,
		Stderr:  out,
	})
	if err != nil {
		return rtkerr.ErrCompileFailed.
			WithMessagef("kernel compilation failed, full output in %s", logPath).
			WithCause(err)
	}

	progress(100, "Compilation complete")
	return nil
}
