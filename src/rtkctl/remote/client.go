// Package remote transfers kernel packages to a target host over SSH and
// drives the install, bootloader update and reboot steps there.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	rtkerr "github.com/bitswalk/rtk/src/common/errors"
	"github.com/bitswalk/rtk/src/common/logs"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

var log = logs.NewDefault()

// ClientConfig describes how to reach and authenticate with the target.
type ClientConfig struct {
	Host string
	Port int
	User string

	// KeyPath is the private key file used for authentication.
	KeyPath string
	// Passphrase supplies the key passphrase when the key is encrypted.
	// Only called when needed.
	Passphrase func() ([]byte, error)

	// KnownHostsPath verifies the host key against an OpenSSH known_hosts
	// file. Ignored when InsecureHostKey is set.
	KnownHostsPath string
	// InsecureHostKey skips host key verification entirely.
	InsecureHostKey bool

	// ConnectTimeout bounds the TCP dial. Zero means 15 seconds.
	ConnectTimeout time.Duration
}

// Client is an established SSH connection to the target host. Each remote
// command runs in its own session.
type Client struct {
	conn *ssh.Client
	host string
}

// Dial connects and authenticates. The context bounds the TCP connect and
// SSH handshake.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Host == "" {
		return nil, rtkerr.ErrRemoteTargetMissing
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	signer, err := loadSigner(cfg)
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := hostKeyPolicy(cfg)
	if err != nil {
		return nil, err
	}

	sshConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	log.Debug("Connecting to target", "addr", addr, "user", cfg.User)

	dialer := net.Dialer{Timeout: timeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, rtkerr.ErrConnectFailed.
			WithMessagef("cannot reach %s", addr).
			WithCause(err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshConfig)
	if err != nil {
		tcpConn.Close()
		return nil, rtkerr.ErrConnectFailed.
			WithMessagef("SSH handshake with %s failed", addr).
			WithCause(err)
	}

	return &Client{conn: ssh.NewClient(sshConn, chans, reqs), host: cfg.Host}, nil
}

// loadSigner reads and parses the private key, prompting for a passphrase
// only when the key turns out to be encrypted.
func loadSigner(cfg ClientConfig) (ssh.Signer, error) {
	if cfg.KeyPath == "" {
		return nil, rtkerr.New(rtkerr.DomainDeploy, "key_missing",
			"no SSH private key configured").
			WithRemedy("set remote.key_path in the configuration or pass --key")
	}
	keyData, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return nil, rtkerr.Wrap(err, rtkerr.DomainDeploy, "key_unreadable",
			fmt.Sprintf("cannot read SSH private key %s", cfg.KeyPath))
	}

	signer, err := ssh.ParsePrivateKey(keyData)
	if err == nil {
		return signer, nil
	}

	var passErr *ssh.PassphraseMissingError
	if rtkerr.As(err, &passErr) && cfg.Passphrase != nil {
		passphrase, perr := cfg.Passphrase()
		if perr != nil {
			return nil, rtkerr.Wrap(perr, rtkerr.DomainDeploy, "passphrase_failed",
				"could not read the key passphrase")
		}
		signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, passphrase)
		if err == nil {
			return signer, nil
		}
	}
	return nil, rtkerr.Wrap(err, rtkerr.DomainDeploy, "key_invalid",
		fmt.Sprintf("cannot parse SSH private key %s", cfg.KeyPath))
}

// hostKeyPolicy builds the host key callback from the configuration.
func hostKeyPolicy(cfg ClientConfig) (ssh.HostKeyCallback, error) {
	if cfg.InsecureHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := cfg.KnownHostsPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot locate home directory: %w", err)
		}
		path = home + "/.ssh/known_hosts"
	}
	callback, err := knownhosts.New(path)
	if err != nil {
		return nil, rtkerr.Wrap(err, rtkerr.DomainDeploy, "known_hosts_unreadable",
			fmt.Sprintf("cannot load known hosts file %s", path)).
			WithRemedy("pass --insecure-host-key to skip host verification")
	}
	return callback, nil
}

// CommandResult holds the output of one remote command.
type CommandResult struct {
	Stdout string
	Stderr string
}

// Run executes command in a fresh session and waits for it. A non-zero
// remote exit status is returned as an error carrying the captured stderr.
func (c *Client) Run(ctx context.Context, command string) (*CommandResult, error) {
	session, err := c.conn.NewSession()
	if err != nil {
		return nil, rtkerr.ErrRemoteCommandFailed.
			WithMessagef("cannot open session on %s", c.host).
			WithCause(err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	log.Debug("Running remote command", "host", c.host, "command", command)

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return nil, ctx.Err()
	case err = <-done:
	}

	result := &CommandResult{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}
	if err != nil {
		return result, rtkerr.ErrRemoteCommandFailed.
			WithMessagef("remote command %q failed on %s: %s", command, c.host, result.Stderr).
			WithCause(err)
	}
	return result, nil
}

// Host returns the target host name.
func (c *Client) Host() string {
	return c.host
}

// Close tears down the SSH connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
