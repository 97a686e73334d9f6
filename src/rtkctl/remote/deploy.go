package remote

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/bitswalk/rtk/src/common/cli"
	rtkerr "github.com/bitswalk/rtk/src/common/errors"
	"github.com/bitswalk/rtk/src/rtkctl/build"
)

// Target is the remote-host surface the deploy sequence needs. Client
// satisfies it; tests substitute a fake.
type Target interface {
	Run(ctx context.Context, command string) (*CommandResult, error)
	Upload(ctx context.Context, localPath, remoteName string) (string, error)
	Host() string
}

// Outcome reports how a deploy ended.
type Outcome string

const (
	// OutcomeInstalled means packages were installed and the bootloader updated
	OutcomeInstalled Outcome = "installed"
	// OutcomeRebooting means the target was additionally told to reboot
	OutcomeRebooting Outcome = "rebooting"
	// OutcomeDeclined means a confirmation gate was declined; nothing failed
	OutcomeDeclined Outcome = "declined"
)

// Deployer pushes a package set to a target and installs it. Install and
// reboot are each guarded by a confirmation gate; declining a gate stops
// the sequence without error.
type Deployer struct {
	Confirmer *cli.Confirmer
	// Reboot requests a target reboot after a successful install.
	Reboot bool
	// Out receives user-facing guidance (declined-gate instructions).
	Out io.Writer
}

// Deploy uploads every RPM in the set and runs the install sequence. The
// package set is validated before any connection-dependent work.
func (d *Deployer) Deploy(ctx context.Context, target Target, pkgs *build.PackageSet) (Outcome, error) {
	if pkgs.Empty() {
		return "", rtkerr.ErrEmptyPackageSet
	}

	log.Info("Uploading packages", "host", target.Host(), "count", len(pkgs.RPMs))
	remotePaths := make([]string, 0, len(pkgs.RPMs))
	for _, rpm := range pkgs.RPMs {
		remotePath, err := target.Upload(ctx, rpm, filepath.Base(rpm))
		if err != nil {
			return "", err
		}
		log.Info("Uploaded package", "rpm", filepath.Base(rpm))
		remotePaths = append(remotePaths, remotePath)
	}

	ok, err := d.Confirmer.Confirm(fmt.Sprintf(
		"Install %d kernel packages on %s and update the bootloader?",
		len(remotePaths), target.Host()))
	if err != nil {
		return "", err
	}
	if !ok {
		d.printf("Install skipped. The packages were uploaded to the login user's home directory on %s.\n",
			target.Host())
		d.printf("To finish manually:\n")
		d.printf("  sudo dnf install -y %s\n", strings.Join(remotePaths, " "))
		d.printf("  sudo grub2-mkconfig -o /boot/grub2/grub.cfg\n")
		d.printf("  sudo grubby --set-default /boot/vmlinuz-<new-kernel>\n")
		return OutcomeDeclined, nil
	}

	steps := []struct {
		name    string
		command string
	}{
		{"install packages", fmt.Sprintf("sudo dnf install -y %s", strings.Join(remotePaths, " "))},
		{"regenerate grub configuration", "sudo grub2-mkconfig -o /boot/grub2/grub.cfg"},
		{"select new default kernel", d.setDefaultCommand(pkgs.KernelVersion)},
	}
	for _, step := range steps {
		log.Info("Running deploy step", "host", target.Host(), "step", step.name)
		if _, err := target.Run(ctx, step.command); err != nil {
			return "", rtkerr.ErrRemoteCommandFailed.
				WithMessagef("deploy step %q failed on %s", step.name, target.Host()).
				WithCause(err)
		}
	}

	if !d.Reboot {
		d.printf("Kernel installed on %s. Reboot it when ready to activate the new kernel.\n", target.Host())
		return OutcomeInstalled, nil
	}

	ok, err = d.Confirmer.Confirm(fmt.Sprintf("Reboot %s now?", target.Host()))
	if err != nil {
		return "", err
	}
	if !ok {
		d.printf("Reboot skipped. Run 'sudo systemctl reboot' on %s to activate the new kernel.\n", target.Host())
		return OutcomeInstalled, nil
	}

	// The reboot drops the connection, so a transport-level error here is
	// expected and not a failure.
	if _, err := target.Run(ctx, "sudo systemctl reboot"); err != nil {
		log.Debug("Reboot command closed the connection", "error", err)
	}
	log.Info("Target rebooting", "host", target.Host())
	return OutcomeRebooting, nil
}

// setDefaultCommand marks the freshly installed kernel as the default boot
// entry. The installed image carries the upstream version plus the local
// version suffix.
func (d *Deployer) setDefaultCommand(kernelVersion string) string {
	return fmt.Sprintf(
		"sudo grubby --set-default \"$(ls -1 /boot/vmlinuz-%s* | head -n 1)\"",
		kernelVersion)
}

func (d *Deployer) printf(format string, args ...interface{}) {
	if d.Out != nil {
		fmt.Fprintf(d.Out, format, args...)
	}
}
