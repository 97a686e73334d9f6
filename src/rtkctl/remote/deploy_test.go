package remote

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/bitswalk/rtk/src/common/cli"
	rtkerr "github.com/bitswalk/rtk/src/common/errors"
	"github.com/bitswalk/rtk/src/rtkctl/build"
)

type fakeTarget struct {
	uploads  []string
	commands []string
	failOn   string
}

func (f *fakeTarget) Run(ctx context.Context, command string) (*CommandResult, error) {
	f.commands = append(f.commands, command)
	if f.failOn != "" && strings.Contains(command, f.failOn) {
		return &CommandResult{Stderr: "boom"}, fmt.Errorf("exit status 1")
	}
	return &CommandResult{}, nil
}

func (f *fakeTarget) Upload(ctx context.Context, localPath, remoteName string) (string, error) {
	f.uploads = append(f.uploads, remoteName)
	return remoteName, nil
}

func (f *fakeTarget) Host() string { return "target.example" }

func testPackageSet() *build.PackageSet {
	return &build.PackageSet{
		KernelVersion: "6.6.52",
		RunID:         "run-1",
		RPMs: []string{
			"/tmp/out/kernel-6.6.52_rtk-1.x86_64.rpm",
			"/tmp/out/kernel-headers-6.6.52_rtk-1.x86_64.rpm",
		},
	}
}

func TestDeploy_EmptyPackageSet(t *testing.T) {
	target := &fakeTarget{}
	d := &Deployer{Confirmer: cli.NewConfirmer(cli.ConfirmYes)}

	_, err := d.Deploy(context.Background(), target, &build.PackageSet{})
	if err == nil {
		t.Fatal("Deploy() expected error for empty package set")
	}
	if !rtkerr.Is(err, rtkerr.ErrEmptyPackageSet) {
		t.Errorf("expected ErrEmptyPackageSet, got %v", err)
	}
	if len(target.uploads) != 0 || len(target.commands) != 0 {
		t.Error("no remote activity expected for an empty package set")
	}
}

func TestDeploy_FullSequence(t *testing.T) {
	target := &fakeTarget{}
	d := &Deployer{Confirmer: cli.NewConfirmer(cli.ConfirmYes), Reboot: true}

	outcome, err := d.Deploy(context.Background(), target, testPackageSet())
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if outcome != OutcomeRebooting {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeRebooting)
	}

	if len(target.uploads) != 2 {
		t.Fatalf("expected 2 uploads, got %d", len(target.uploads))
	}

	wantOrder := []string{"dnf install", "grub2-mkconfig", "grubby --set-default", "systemctl reboot"}
	if len(target.commands) != len(wantOrder) {
		t.Fatalf("expected %d commands, got %d: %v", len(wantOrder), len(target.commands), target.commands)
	}
	for i, fragment := range wantOrder {
		if !strings.Contains(target.commands[i], fragment) {
			t.Errorf("command[%d] = %q, want it to contain %q", i, target.commands[i], fragment)
		}
	}
}

func TestDeploy_DeclinedInstallGate(t *testing.T) {
	target := &fakeTarget{}
	var out bytes.Buffer
	d := &Deployer{Confirmer: cli.NewConfirmer(cli.ConfirmNo), Out: &out}

	outcome, err := d.Deploy(context.Background(), target, testPackageSet())
	if err != nil {
		t.Fatalf("Deploy() error = %v, a declined gate is not a failure", err)
	}
	if outcome != OutcomeDeclined {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeDeclined)
	}
	if len(target.uploads) != 2 {
		t.Errorf("packages should still be uploaded before the gate, got %d uploads", len(target.uploads))
	}
	if len(target.commands) != 0 {
		t.Errorf("no remote commands expected after a declined install, got %v", target.commands)
	}
	if !strings.Contains(out.String(), "dnf install") {
		t.Error("declined gate should print manual completion guidance")
	}
}

func TestDeploy_DeclinedRebootGate(t *testing.T) {
	target := &fakeTarget{}
	var out bytes.Buffer
	// Interactive confirmer reading "y" then "n" from a script
	d := &Deployer{
		Confirmer: &cli.Confirmer{
			Policy: cli.ConfirmInteractive,
			In:     strings.NewReader("y\nn\n"),
			Out:    &out,
		},
		Reboot: true,
		Out:    &out,
	}

	outcome, err := d.Deploy(context.Background(), target, testPackageSet())
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if outcome != OutcomeInstalled {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeInstalled)
	}
	for _, cmd := range target.commands {
		if strings.Contains(cmd, "reboot") {
			t.Errorf("reboot must not run after a declined gate, got %q", cmd)
		}
	}
	if !strings.Contains(out.String(), "systemctl reboot") {
		t.Error("declined reboot should print the manual reboot command")
	}
}

func TestDeploy_RemoteStepFailureIsFatal(t *testing.T) {
	target := &fakeTarget{failOn: "grub2-mkconfig"}
	d := &Deployer{Confirmer: cli.NewConfirmer(cli.ConfirmYes)}

	_, err := d.Deploy(context.Background(), target, testPackageSet())
	if err == nil {
		t.Fatal("Deploy() expected error when a remote step fails")
	}
	if !rtkerr.Is(err, rtkerr.ErrRemoteCommandFailed) {
		t.Errorf("expected ErrRemoteCommandFailed, got %v", err)
	}
	for _, cmd := range target.commands {
		if strings.Contains(cmd, "grubby") {
			t.Error("later steps must not run after a failed step")
		}
	}
}
