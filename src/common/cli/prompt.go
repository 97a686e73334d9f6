package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ConfirmPolicy controls how confirmation gates are answered.
type ConfirmPolicy string

const (
	// ConfirmInteractive asks the operator on the terminal
	ConfirmInteractive ConfirmPolicy = "interactive"
	// ConfirmYes answers every gate with yes (for non-interactive callers)
	ConfirmYes ConfirmPolicy = "yes"
	// ConfirmNo answers every gate with no
	ConfirmNo ConfirmPolicy = "no"
)

// ParseConfirmPolicy resolves the --yes/--no flag pair into a policy.
func ParseConfirmPolicy(yes, no bool) (ConfirmPolicy, error) {
	switch {
	case yes && no:
		return "", fmt.Errorf("--yes and --no are mutually exclusive")
	case yes:
		return ConfirmYes, nil
	case no:
		return ConfirmNo, nil
	default:
		return ConfirmInteractive, nil
	}
}

// Confirmer answers yes/no confirmation gates according to a policy.
type Confirmer struct {
	Policy ConfirmPolicy
	In     io.Reader
	Out    io.Writer

	reader *bufio.Reader
}

// NewConfirmer creates a Confirmer reading from stdin and writing to stdout.
func NewConfirmer(policy ConfirmPolicy) *Confirmer {
	return &Confirmer{
		Policy: policy,
		In:     os.Stdin,
		Out:    os.Stdout,
	}
}

// Confirm asks a yes/no question. Under ConfirmYes or ConfirmNo the answer
// is returned without prompting. Anything other than "y"/"yes" counts as no.
func (c *Confirmer) Confirm(question string) (bool, error) {
	switch c.Policy {
	case ConfirmYes:
		return true, nil
	case ConfirmNo:
		return false, nil
	}

	fmt.Fprintf(c.Out, "%s [y/N]: ", question)

	// One reader for the Confirmer's lifetime so consecutive gates do not
	// lose buffered input.
	if c.reader == nil {
		c.reader = bufio.NewReader(c.In)
	}
	answer, err := c.reader.ReadString('\n')
	if err != nil && answer == "" {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}

	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

// ReadSecret prompts for a secret without echoing it to the terminal.
// Falls back to a plain line read when stdin is not a terminal.
func ReadSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		if err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return string(secret), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
