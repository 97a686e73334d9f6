package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	rtkerr "github.com/bitswalk/rtk/src/common/errors"
	"github.com/pkg/sftp"
)

// Upload copies a local file to remoteName in the target user's home
// directory over SFTP and returns the remote path.
func (c *Client) Upload(ctx context.Context, localPath, remoteName string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	sftpClient, err := sftp.NewClient(c.conn)
	if err != nil {
		return "", rtkerr.ErrTransferFailed.
			WithMessagef("cannot open SFTP channel to %s", c.host).
			WithCause(err)
	}
	defer sftpClient.Close()

	src, err := os.Open(localPath)
	if err != nil {
		return "", rtkerr.ErrTransferFailed.
			WithMessagef("cannot open local file %s", localPath).
			WithCause(err)
	}
	defer src.Close()

	stat, err := src.Stat()
	if err != nil {
		return "", fmt.Errorf("cannot stat %s: %w", localPath, err)
	}

	// sftp paths are relative to the login user's home directory
	dst, err := sftpClient.Create(remoteName)
	if err != nil {
		return "", rtkerr.ErrTransferFailed.
			WithMessagef("cannot create %s on %s", remoteName, c.host).
			WithCause(err)
	}
	defer dst.Close()

	written, err := io.Copy(dst, src)
	if err != nil {
		return "", rtkerr.ErrTransferFailed.
			WithMessagef("upload of %s to %s failed", filepath.Base(localPath), c.host).
			WithCause(err)
	}
	if written != stat.Size() {
		return "", rtkerr.ErrTransferFailed.
			WithMessagef("short upload of %s: %d of %d bytes", remoteName, written, stat.Size())
	}

	log.Debug("Uploaded file", "host", c.host, "file", remoteName, "bytes", written)
	return remoteName, nil
}
