package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	rtkerr "github.com/bitswalk/rtk/src/common/errors"
	"github.com/bitswalk/rtk/src/common/paths"
)

// LocalConfig holds the local filesystem archive configuration
type LocalConfig struct {
	// BasePath is the root directory of the archive
	BasePath string
}

// LocalBackend archives package sets on the local filesystem under
// <base>/<kernel-version>/<run-id>/.
type LocalBackend struct {
	basePath string
}

// NewLocal creates a local filesystem archive backend
func NewLocal(cfg LocalConfig) (*LocalBackend, error) {
	basePath := paths.Expand(cfg.BasePath)

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory %s: %w", basePath, err)
	}

	return &LocalBackend{basePath: basePath}, nil
}

// fullPath returns the filesystem path for a key, confined to basePath.
func (b *LocalBackend) fullPath(key string) string {
	cleanKey := filepath.Clean(key)
	for strings.HasPrefix(cleanKey, "/") || strings.HasPrefix(cleanKey, "../") {
		cleanKey = strings.TrimPrefix(cleanKey, "/")
		cleanKey = strings.TrimPrefix(cleanKey, "../")
	}

	fullPath := filepath.Join(b.basePath, cleanKey)

	absBase, _ := filepath.Abs(b.basePath)
	absFull, _ := filepath.Abs(fullPath)
	if !strings.HasPrefix(absFull, absBase) {
		return filepath.Join(b.basePath, filepath.Base(cleanKey))
	}
	return fullPath
}

// Upload stores data under key
func (b *LocalBackend) Upload(ctx context.Context, key string, reader io.Reader, size int64) error {
	fullPath := b.fullPath(key)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", fullPath, err)
	}
	defer file.Close()

	written, err := io.Copy(file, reader)
	if err != nil {
		os.Remove(fullPath)
		return fmt.Errorf("failed to write file %s: %w", fullPath, err)
	}
	if size > 0 && written != size {
		os.Remove(fullPath)
		return fmt.Errorf("size mismatch: expected %d bytes, wrote %d bytes", size, written)
	}
	return nil
}

// Download retrieves an archived object
func (b *LocalBackend) Download(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error) {
	fullPath := b.fullPath(key)

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, rtkerr.ErrObjectNotFound.WithMessagef("object not found: %s", key)
		}
		return nil, nil, fmt.Errorf("failed to open file %s: %w", fullPath, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to stat file %s: %w", fullPath, err)
	}

	return file, &ObjectInfo{
		Key:          key,
		Size:         stat.Size(),
		LastModified: stat.ModTime(),
	}, nil
}

// Exists checks if an archived object exists
func (b *LocalBackend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(b.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return true, nil
}

// List lists archived objects with the given prefix
func (b *LocalBackend) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	err := filepath.Walk(b.basePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(b.basePath, path)
		if err != nil {
			return nil
		}
		if prefix != "" && !strings.HasPrefix(relPath, strings.TrimPrefix(prefix, "/")) {
			return nil
		}

		objects = append(objects, ObjectInfo{
			Key:          relPath,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}
	return objects, nil
}

// Ping checks if the archive directory is accessible
func (b *LocalBackend) Ping(ctx context.Context) error {
	if _, err := os.Stat(b.basePath); err != nil {
		return rtkerr.ErrStorageUnavailable.
			WithMessagef("archive directory %s not accessible", b.basePath).
			WithCause(err)
	}
	return nil
}

// Type returns the backend type
func (b *LocalBackend) Type() string {
	return "local"
}

// Location returns the base path
func (b *LocalBackend) Location() string {
	return b.basePath
}
