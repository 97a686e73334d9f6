package core

import (
	"testing"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	expected := []string{
		"fetch", "configure", "build", "deploy",
		"verify", "archive", "history", "version",
	}

	commands := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		commands[cmd.Name()] = true
	}

	for _, name := range expected {
		if !commands[name] {
			t.Errorf("expected subcommand %q not found on root", name)
		}
	}
}

func TestArchiveCommand_HasSubcommands(t *testing.T) {
	expected := []string{"push", "list"}

	commands := make(map[string]bool)
	for _, cmd := range archiveCmd.Commands() {
		commands[cmd.Name()] = true
	}

	for _, name := range expected {
		if !commands[name] {
			t.Errorf("expected archive subcommand %q not found", name)
		}
	}
}

func TestDeployCommand_ConfirmFlags(t *testing.T) {
	for _, flag := range []string{"yes", "no", "reboot", "host", "key"} {
		if deployCmd.Flags().Lookup(flag) == nil {
			t.Errorf("expected deploy flag --%s", flag)
		}
	}
}
