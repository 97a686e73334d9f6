package core

import (
	"path/filepath"

	"github.com/bitswalk/rtk/src/rtkctl/build"
	"github.com/bitswalk/rtk/src/rtkctl/config"
	"github.com/bitswalk/rtk/src/rtkctl/db"
	"github.com/google/uuid"
)

// newStageContext assembles the shared pipeline state for one run.
func newStageContext(cfg *config.Config) *build.StageContext {
	ws := cfg.Workspace
	return &build.StageContext{
		RunID:          uuid.New().String(),
		KernelVersion:  cfg.KernelVersion,
		WorkspacePath:  ws,
		SourcesDir:     filepath.Join(ws, "sources"),
		LogsDir:        filepath.Join(ws, "logs"),
		RPMTopDir:      filepath.Join(ws, "rpmbuild"),
		SourceDir:      filepath.Join(ws, "linux-"+cfg.KernelVersion),
		Parallelism:    cfg.Parallelism,
		BaseConfigPath: cfg.BaseConfigPath,
		Executor:       build.NewHostExecutor(nil),
	}
}

// recordRun opens the history database and registers a run. History is
// best-effort: a broken database degrades to a warning, never a failure.
// The returned function finishes the record and must be called once.
func recordRun(kind db.RunKind, kernelVersion string) func(status string, artifacts int, runErr error) {
	database, err := db.New(db.DefaultConfig())
	if err != nil {
		log.Warn("Run history unavailable", "error", err)
		return func(string, int, error) {}
	}

	repo := db.NewRunRepository(database)
	run, err := repo.Create(kind, kernelVersion)
	if err != nil {
		log.Warn("Cannot record run", "error", err)
		database.Close()
		return func(string, int, error) {}
	}

	return func(status string, artifacts int, runErr error) {
		if err := repo.Finish(run.ID, status, artifacts, runErr); err != nil {
			log.Warn("Cannot finish run record", "run", run.ID, "error", err)
		}
		database.Close()
	}
}

// collectPackages rebuilds the package set from the workspace RPM tree, so
// deploy and archive can run in a separate invocation from build.
func collectPackages(cfg *config.Config) (*build.PackageSet, error) {
	rpms, err := build.CollectKernelRPMs(filepath.Join(cfg.Workspace, "rpmbuild"))
	if err != nil {
		return nil, err
	}
	return &build.PackageSet{
		KernelVersion: cfg.KernelVersion,
		RPMs:          rpms,
	}, nil
}
