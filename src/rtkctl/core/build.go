package core

import (
	"github.com/bitswalk/rtk/src/common/paths"
	"github.com/bitswalk/rtk/src/rtkctl/build"
	"github.com/bitswalk/rtk/src/rtkctl/config"
	"github.com/bitswalk/rtk/src/rtkctl/db"
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Run the full kernel build pipeline",
	Long: `Runs every pipeline stage in order: prepare build tools, fetch and
extract the kernel source, apply the real-time configuration, compile,
and package the result as binary RPMs.`,
	RunE: runBuild,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download and extract the kernel source",
	Long: `Downloads the configured kernel version from the upstream mirror and
extracts it into the workspace. Already downloaded or extracted sources
are reused.`,
	RunE: runFetch,
}

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Apply the real-time kernel configuration",
	Long: `Seeds the source tree with a baseline configuration, applies the
real-time option set (PREEMPT_RT, 1000 Hz tick, tickless operation,
RCU offloading) and normalizes the result with olddefconfig.`,
	RunE: runConfigure,
}

func init() {
	for _, cmd := range []*cobra.Command{buildCmd, configureCmd} {
		cmd.Flags().String("base-config", "", "Baseline kernel config (default: /boot/config-$(uname -r))")
		cmd.Flags().Bool("menuconfig", false, "Open menuconfig after applying the real-time options")
	}
	buildCmd.Flags().IntP("jobs", "j", 0, "Parallel make jobs (default: CPU count)")
	buildCmd.Flags().Bool("debug", false, "Verbose compiler output (make V=1)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyBuildFlags(cmd, cfg)

	sc := newStageContext(cfg)
	if jobs, _ := cmd.Flags().GetInt("jobs"); jobs > 0 {
		sc.Parallelism = jobs
	}
	sc.Debug, _ = cmd.Flags().GetBool("debug")
	sc.Menuconfig, _ = cmd.Flags().GetBool("menuconfig")

	finish := recordRun(db.RunBuild, cfg.KernelVersion)

	pipeline := build.NewPipeline(build.DefaultStages()...)
	if err := pipeline.Run(cmd.Context(), sc); err != nil {
		finish(db.StatusFailed, 0, err)
		return err
	}

	artifacts := 0
	if sc.Packages != nil {
		artifacts = len(sc.Packages.RPMs)
	}
	finish(db.StatusSuccess, artifacts, nil)

	log.Info("Build complete", "kernel", cfg.KernelVersion, "packages", artifacts)
	return nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sc := newStageContext(cfg)
	pipeline := build.NewPipeline(build.NewFetchStage(nil, ""))
	return pipeline.Run(cmd.Context(), sc)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyBuildFlags(cmd, cfg)

	sc := newStageContext(cfg)
	sc.Menuconfig, _ = cmd.Flags().GetBool("menuconfig")

	pipeline := build.NewPipeline(build.NewConfigureStage())
	return pipeline.Run(cmd.Context(), sc)
}

// applyBuildFlags folds command flags into the loaded configuration.
func applyBuildFlags(cmd *cobra.Command, cfg *config.Config) {
	if base, _ := cmd.Flags().GetString("base-config"); base != "" {
		cfg.BaseConfigPath = paths.Expand(base)
	}
}
