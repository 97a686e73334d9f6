package core

import (
	"os"

	"github.com/bitswalk/rtk/src/common/cli"
	rtkerr "github.com/bitswalk/rtk/src/common/errors"
	"github.com/bitswalk/rtk/src/common/paths"
	"github.com/bitswalk/rtk/src/rtkctl/db"
	"github.com/bitswalk/rtk/src/rtkctl/remote"
	"github.com/spf13/cobra"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Install the built kernel packages on the target host",
	Long: `Uploads the RPMs produced by the build pipeline to the target host
over SSH, installs them, regenerates the grub configuration and selects
the new kernel as the default boot entry. Install and reboot are each
guarded by a confirmation gate; declining a gate stops cleanly and
prints how to finish manually.`,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().String("host", "", "Target host name or address")
	deployCmd.Flags().Int("port", 0, "Target SSH port")
	deployCmd.Flags().String("user", "", "Target SSH user")
	deployCmd.Flags().String("key", "", "SSH private key file")
	deployCmd.Flags().String("known-hosts", "", "known_hosts file for host verification")
	deployCmd.Flags().Bool("insecure-host-key", false, "Skip SSH host key verification")
	deployCmd.Flags().Bool("reboot", false, "Reboot the target after a successful install")
	registerConfirmFlags(deployCmd)

	_ = cli.BindFlag(deployCmd, "host", "remote.host")
	_ = cli.BindFlag(deployCmd, "user", "remote.user")
	_ = cli.BindFlag(deployCmd, "key", "remote.key_path")
	_ = cli.BindFlag(deployCmd, "known-hosts", "remote.known_hosts")
	_ = cli.BindFlag(deployCmd, "insecure-host-key", "remote.insecure_host_key")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Remote.Port = port
	}
	if err := cfg.ValidateRemote(); err != nil {
		return err
	}

	policy, err := confirmPolicy(cmd)
	if err != nil {
		return err
	}
	reboot, _ := cmd.Flags().GetBool("reboot")

	pkgs, err := collectPackages(cfg)
	if err != nil {
		return err
	}
	if pkgs.Empty() {
		return rtkerr.ErrEmptyPackageSet.
			WithRemedy("run 'rtkctl build' first")
	}

	finish := recordRun(db.RunDeploy, cfg.KernelVersion)

	client, err := remote.Dial(cmd.Context(), remote.ClientConfig{
		Host:    cfg.Remote.Host,
		Port:    cfg.Remote.Port,
		User:    cfg.Remote.User,
		KeyPath: paths.Expand(cfg.Remote.KeyPath),
		Passphrase: func() ([]byte, error) {
			secret, err := cli.ReadSecret("Key passphrase: ")
			return []byte(secret), err
		},
		KnownHostsPath:  cfg.Remote.KnownHostsPath,
		InsecureHostKey: cfg.Remote.InsecureHostKey,
	})
	if err != nil {
		finish(db.StatusFailed, 0, err)
		return err
	}
	defer client.Close()

	deployer := &remote.Deployer{
		Confirmer: cli.NewConfirmer(policy),
		Reboot:    reboot,
		Out:       os.Stdout,
	}

	outcome, err := deployer.Deploy(cmd.Context(), client, pkgs)
	if err != nil {
		finish(db.StatusFailed, len(pkgs.RPMs), err)
		return err
	}

	status := db.StatusSuccess
	if outcome == remote.OutcomeDeclined {
		status = db.StatusDeclined
	}
	finish(status, len(pkgs.RPMs), nil)

	log.Info("Deploy finished", "host", cfg.Remote.Host, "outcome", string(outcome))
	return nil
}
