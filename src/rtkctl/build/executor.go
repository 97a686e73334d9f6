package build

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// RunOpts holds options for running an external command.
type RunOpts struct {
	WorkDir string
	Env     map[string]string
	Command []string
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
}

// Executor runs external commands for the pipeline. The indirection exists
// so stages can be tested without invoking make, dnf or rpmbuild.
type Executor interface {
	// Run executes a command with the given options
	Run(ctx context.Context, opts RunOpts) error

	// LookPath reports the resolved path of a command, or an error if the
	// command is not installed
	LookPath(name string) (string, error)
}

// HostExecutor runs commands directly on the build host.
type HostExecutor struct {
	logger io.Writer
}

// NewHostExecutor creates a host executor. logger receives command output
// when the caller does not supply its own writers.
func NewHostExecutor(logger io.Writer) *HostExecutor {
	return &HostExecutor{logger: logger}
}

// Run executes a command on the host, inheriting the host environment with
// opts.Env overlaid. The command is bound to ctx: cancelling the run kills
// the process.
func (e *HostExecutor) Run(ctx context.Context, opts RunOpts) error {
	if len(opts.Command) == 0 {
		return fmt.Errorf("no command specified")
	}

	cmd := exec.CommandContext(ctx, opts.Command[0], opts.Command[1:]...)

	if opts.WorkDir != "" {
		cmd.Dir = opts.WorkDir
	}

	cmd.Env = os.Environ()
	for k, v := range opts.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	if opts.Stdin != nil {
		cmd.Stdin = opts.Stdin
	}

	var stderr bytes.Buffer

	if opts.Stdout != nil {
		cmd.Stdout = opts.Stdout
	} else if e.logger != nil {
		cmd.Stdout = e.logger
	}

	if opts.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, opts.Stderr)
	} else if e.logger != nil {
		cmd.Stderr = io.MultiWriter(&stderr, e.logger)
	} else {
		cmd.Stderr = &stderr
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w\nstderr: %s", opts.Command[0], err, strings.TrimSpace(stderr.String()))
	}

	return nil
}

// LookPath resolves a command name via the host PATH.
func (e *HostExecutor) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// RunInteractive executes a command with the controlling terminal attached.
// Used for menuconfig, which needs direct stdin/stdout.
func (e *HostExecutor) RunInteractive(ctx context.Context, opts RunOpts) error {
	opts.Stdin = os.Stdin
	opts.Stdout = os.Stdout
	opts.Stderr = os.Stderr
	return e.Run(ctx, opts)
}
