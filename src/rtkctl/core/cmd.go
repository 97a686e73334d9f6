// Package core provides the rtkctl command tree: building a PREEMPT_RT
// kernel, deploying it to a target host and verifying the result.
package core

import (
	"fmt"
	"os"

	"github.com/bitswalk/rtk/src/common/cli"
	rtkerr "github.com/bitswalk/rtk/src/common/errors"
	"github.com/bitswalk/rtk/src/common/logs"
	"github.com/bitswalk/rtk/src/common/version"
	"github.com/bitswalk/rtk/src/rtkctl/config"
	"github.com/spf13/cobra"
)

var (
	// VersionInfo holds version information - set at build time via ldflags
	VersionInfo = version.New()

	// Global logger instance
	log *logs.Logger

	// Configuration file path
	cfgFile string
)

// Linker variables - these are set via ldflags at build time
// They must be initialized as empty strings or literals for ldflags to work
var (
	Version        = "dev"
	ReleaseName    = "Chrono"
	ReleaseVersion = "0.0.0"
	BuildDate      = "unknown"
	GitCommit      = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rtkctl",
	Short: "Real-time kernel build and deployment tool",
	Long: `rtkctl builds a PREEMPT_RT Linux kernel from upstream sources,
packages it as RPMs, deploys the packages to a remote host over SSH
and verifies the target after it reboots into the new kernel.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute runs the root command
func Execute() {
	// Populate VersionInfo from linker variables
	VersionInfo.Version = Version
	VersionInfo.ReleaseName = ReleaseName
	VersionInfo.ReleaseVersion = ReleaseVersion
	VersionInfo.BuildDate = BuildDate
	VersionInfo.GitCommit = GitCommit

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if remedy := rtkerr.GetRemedy(err); remedy != "" {
			fmt.Fprintf(os.Stderr, "remedy: %s\n", remedy)
		}
		os.Exit(rtkerr.GetExitCode(err))
	}
}

func init() {
	cli.RegisterConfigFlag(rootCmd, &cfgFile, "/etc/rtk/rtk.yaml")

	// Kernel flags
	rootCmd.PersistentFlags().StringP("kernel-version", "k", "", "Upstream kernel version to build (e.g. 6.6.52)")
	rootCmd.PersistentFlags().StringP("workspace", "w", "", "Workspace directory for sources, logs and packages")

	// Logging flags (using common helper)
	cli.RegisterLogFlags(rootCmd)

	// Bind flags to viper
	_ = cli.BindPersistentFlag(rootCmd, "kernel-version", "kernel.version")
	_ = cli.BindPersistentFlag(rootCmd, "workspace", "workspace")

	// Set defaults
	config.Defaults()

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables if set
func initConfig() error {
	opts := cli.ConfigOptions{
		ConfigName: "rtk",
		ConfigType: "yaml",
		EnvPrefix:  "RTK",
		SearchPaths: []string{
			"/etc/rtk",
			"$HOME/.config/rtk",
			".",
		},
	}
	opts.ConfigFile = cfgFile

	if err := cli.InitConfig(opts); err != nil {
		return err
	}

	// Initialize logger using common helper
	log = cli.InitLogger("rtkctl")

	return nil
}

// loadConfig builds and validates the typed configuration.
func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// confirmPolicy resolves the --yes/--no flag pair of a command.
func confirmPolicy(cmd *cobra.Command) (cli.ConfirmPolicy, error) {
	yes, _ := cmd.Flags().GetBool("yes")
	no, _ := cmd.Flags().GetBool("no")
	return cli.ParseConfirmPolicy(yes, no)
}

// registerConfirmFlags adds the confirmation policy flag pair.
func registerConfirmFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("yes", "y", false, "Answer every confirmation gate with yes")
	cmd.Flags().Bool("no", false, "Answer every confirmation gate with no")
}
