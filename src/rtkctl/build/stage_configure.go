package build

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	rtkerr "github.com/bitswalk/rtk/src/common/errors"
	"github.com/bitswalk/rtk/src/rtkctl/kconfig"
)

// RTDirectives returns the configuration changes applied on top of the
// host baseline to produce a fully preemptible real-time kernel.
func RTDirectives() []kconfig.Directive {
	return []kconfig.Directive{
		kconfig.Enable("CONFIG_PREEMPT_RT"),
		kconfig.Disable("CONFIG_PREEMPT_NONE"),
		kconfig.Disable("CONFIG_PREEMPT_VOLUNTARY"),
		kconfig.Disable("CONFIG_PREEMPT"),
		kconfig.Enable("CONFIG_HZ_1000"),
		kconfig.Enable("CONFIG_NO_HZ_FULL"),
		kconfig.Enable("CONFIG_RCU_NOCB_CPU"),
		kconfig.Enable("CONFIG_HIGH_RES_TIMERS"),
		kconfig.EnableModule("CONFIG_ENA_ETHERNET"),
		kconfig.Disable("CONFIG_DEBUG_INFO_BTF"),
		kconfig.Disable("CONFIG_SYSTEM_TRUSTED_KEYS"),
		kconfig.Disable("CONFIG_SYSTEM_REVOCATION_KEYS"),
		kconfig.SetString("CONFIG_LOCALVERSION", "-rtk"),
	}
}

// interactiveExecutor is satisfied by executors that can attach the
// controlling terminal, which menuconfig needs.
type interactiveExecutor interface {
	RunInteractive(ctx context.Context, opts RunOpts) error
}

// ConfigureStage seeds the source tree with a baseline .config, applies
// the real-time directive set and normalizes the result with olddefconfig.
type ConfigureStage struct{}

// NewConfigureStage creates a configure stage
func NewConfigureStage() *ConfigureStage {
	return &ConfigureStage{}
}

// Name returns the stage name
func (s *ConfigureStage) Name() StageName {
	return StageConfigure
}

// Validate checks whether this stage can run
func (s *ConfigureStage) Validate(sc *StageContext) error {
	if sc.SourceDir == "" {
		return fmt.Errorf("source directory not set, run the fetch stage first")
	}
	if _, err := os.Stat(filepath.Join(sc.SourceDir, "Makefile")); err != nil {
		return rtkerr.ErrSourceMissing.WithMessagef("no kernel source tree at %s", sc.SourceDir)
	}
	return nil
}

// Execute applies the real-time configuration to the source tree.
func (s *ConfigureStage) Execute(ctx context.Context, sc *StageContext, progress ProgressFunc) error {
	configPath := filepath.Join(sc.SourceDir, ".config")

	progress(0, "Seeding baseline configuration")
	basePath, err := s.resolveBaseConfig(sc)
	if err != nil {
		return err
	}
	if basePath != "" {
		base, err := os.ReadFile(basePath)
		if err != nil {
			return rtkerr.Wrap(err, rtkerr.DomainKconfig, "base_config_unreadable",
				fmt.Sprintf("cannot read base configuration %s", basePath))
		}
		if err := os.WriteFile(configPath, base, 0644); err != nil {
			return fmt.Errorf("failed to seed .config: %w", err)
		}
		log.Info("Seeded baseline configuration", "from", basePath)
	} else {
		// No host snapshot available: start from the kernel defaults
		log.Info("No baseline configuration found, starting from defconfig")
		var stderr bytes.Buffer
		err := sc.Executor.Run(ctx, RunOpts{
			WorkDir: sc.SourceDir,
			Command: []string{"make", "defconfig"},
			Stderr:  &stderr,
		})
		if err != nil {
			return rtkerr.Wrap(err, rtkerr.DomainKconfig, "defconfig_failed",
				fmt.Sprintf("make defconfig failed: %s", stderr.String()))
		}
	}

	progress(20, "Applying real-time configuration")
	file, err := kconfig.Load(configPath)
	if err != nil {
		return rtkerr.Wrap(err, rtkerr.DomainKconfig, "config_parse_failed",
			fmt.Sprintf("cannot parse %s", configPath))
	}
	if err := kconfig.ApplyDirectives(file, RTDirectives(), kconfig.StandardGroups); err != nil {
		return rtkerr.Wrap(err, rtkerr.DomainKconfig, "apply_failed",
			"real-time configuration could not be applied")
	}
	if err := file.Save(configPath); err != nil {
		return fmt.Errorf("failed to write .config: %w", err)
	}

	progress(50, "Normalizing configuration with olddefconfig")
	var stderr bytes.Buffer
	err = sc.Executor.Run(ctx, RunOpts{
		WorkDir: sc.SourceDir,
		Command: []string{"make", "olddefconfig"},
		Stderr:  &stderr,
	})
	if err != nil {
		return rtkerr.Wrap(err, rtkerr.DomainKconfig, "olddefconfig_failed",
			fmt.Sprintf("make olddefconfig failed: %s", stderr.String()))
	}

	if sc.Menuconfig {
		progress(70, "Opening menuconfig")
		opts := RunOpts{WorkDir: sc.SourceDir, Command: []string{"make", "menuconfig"}}
		var merr error
		if ie, ok := sc.Executor.(interactiveExecutor); ok {
			merr = ie.RunInteractive(ctx, opts)
		} else {
			merr = sc.Executor.Run(ctx, opts)
		}
		if merr != nil {
			return rtkerr.Wrap(merr, rtkerr.DomainKconfig, "menuconfig_failed",
				"interactive configuration session failed")
		}
	}

	progress(85, "Verifying applied configuration")
	final, err := kconfig.Load(configPath)
	if err != nil {
		return rtkerr.Wrap(err, rtkerr.DomainKconfig, "config_parse_failed",
			fmt.Sprintf("cannot re-read %s", configPath))
	}
	mismatches := kconfig.VerifyDirectives(final, RTDirectives())
	for _, m := range mismatches {
		// The resolver may legitimately override requests whose dependencies
		// are not met, so mismatches warn rather than fail.
		log.Warn("Configuration request not honored", "detail", m.String())
	}

	progress(100, "Configuration ready")
	return nil
}

// resolveBaseConfig picks the baseline .config: an explicit path when
// given, otherwise the running host kernel's config under /boot. An empty
// path with nil error means no snapshot exists and defconfig should seed
// the tree instead.
func (s *ConfigureStage) resolveBaseConfig(sc *StageContext) (string, error) {
	if sc.BaseConfigPath != "" {
		if _, err := os.Stat(sc.BaseConfigPath); err != nil {
			return "", rtkerr.New(rtkerr.DomainKconfig, "base_config_missing",
				fmt.Sprintf("base configuration %s does not exist", sc.BaseConfigPath))
		}
		return sc.BaseConfigPath, nil
	}

	release, err := hostKernelRelease()
	if err != nil {
		log.Warn("Cannot determine the running kernel release", "error", err)
		return "", nil
	}
	path := fmt.Sprintf("/boot/config-%s", release)
	if _, err := os.Stat(path); err != nil {
		return "", nil
	}
	return path, nil
}
