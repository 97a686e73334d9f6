package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	rtkerr "github.com/bitswalk/rtk/src/common/errors"
)

// PackageStage produces binary RPMs with the kernel's binrpm-pkg target
// and collects the resulting artifacts. A packaging run that exits zero
// but produces no kernel RPMs is treated as a failure: downstream deploy
// must never operate on an empty package set.
type PackageStage struct{}

// NewPackageStage creates a package stage
func NewPackageStage() *PackageStage {
	return &PackageStage{}
}

// Name returns the stage name
func (s *PackageStage) Name() StageName {
	return StagePackage
}

// Validate checks whether this stage can run
func (s *PackageStage) Validate(sc *StageContext) error {
	if sc.SourceDir == "" {
		return fmt.Errorf("source directory not set, run the fetch stage first")
	}
	if sc.RPMTopDir == "" {
		return fmt.Errorf("RPM top directory not set")
	}
	return nil
}

// Execute builds the binary RPM packages and records them in the context.
func (s *PackageStage) Execute(ctx context.Context, sc *StageContext, progress ProgressFunc) error {
	jobs := sc.Parallelism
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	for _, dir := range []string{sc.RPMTopDir, sc.LogsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	logPath := filepath.Join(sc.LogsDir, fmt.Sprintf("package-%s.log", sc.RunID))
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("failed to create packaging log %s: %w", logPath, err)
	}
	defer logFile.Close()

	var out io.Writer = logFile
	if sc.LogWriter != nil {
		out = io.MultiWriter(logFile, sc.LogWriter)
	}

	progress(0, "Building binary RPM packages")
	log.Info("Starting RPM packaging", "topdir", sc.RPMTopDir, "log", logPath)

	// Redirect rpmbuild output under the workspace instead of ~/rpmbuild
	err = sc.Executor.Run(ctx, RunOpts{
		WorkDir: sc.SourceDir,
		Env:     map[string]string{"RPMOPTS": fmt.Sprintf("--define \"_topdir %s\"", sc.RPMTopDir)},
		Command: []string{"make", fmt.Sprintf("-j%d", jobs), "binrpm-pkg"},
		Stdout:  out,
		Stderr:  out,
	})
	if err != nil {
		return rtkerr.ErrPackageFailed.
			WithMessagef("RPM packaging failed, full output in %s", logPath).
			WithCause(err)
	}

	progress(90, "Collecting packages")
	rpms, err := CollectKernelRPMs(sc.RPMTopDir)
	if err != nil {
		return fmt.Errorf("failed to scan for packages: %w", err)
	}
	if len(rpms) == 0 {
		return rtkerr.ErrNoArtifacts.
			WithMessagef("packaging exited successfully but no kernel RPMs were found under %s", sc.RPMTopDir).
			WithRemedy(fmt.Sprintf("inspect the packaging log at %s", logPath))
	}

	sc.Packages = &PackageSet{
		KernelVersion: sc.KernelVersion,
		RunID:         sc.RunID,
		CreatedAt:     time.Now().UTC(),
		RPMs:          rpms,
	}

	for _, rpm := range rpms {
		log.Info("Built package", "rpm", filepath.Base(rpm))
	}
	progress(100, fmt.Sprintf("%d packages ready", len(rpms)))
	return nil
}

// CollectKernelRPMs returns all kernel RPMs below topDir, sorted by path.
func CollectKernelRPMs(topDir string) ([]string, error) {
	var rpms []string
	err := filepath.WalkDir(topDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if matched, _ := filepath.Match("kernel-*.rpm", name); matched {
			rpms = append(rpms, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(rpms)
	return rpms, nil
}
