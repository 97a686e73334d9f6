// Package storage archives built kernel package sets, either on the local
// filesystem or in an S3-compatible object store.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/bitswalk/rtk/src/common/logs"
	"github.com/bitswalk/rtk/src/rtkctl/build"
)

var log = logs.NewDefault()

// Backend defines the operations the artifact archive needs.
type Backend interface {
	// Upload stores data under key
	Upload(ctx context.Context, key string, reader io.Reader, size int64) error

	// Download retrieves an object by key
	Download(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error)

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)

	// List lists objects with the given prefix
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Ping checks if the archive is accessible
	Ping(ctx context.Context) error

	// Type returns the backend type
	Type() string

	// Location returns a human-readable location description
	Location() string
}

// ObjectInfo holds metadata about an archived object
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Config holds the archive configuration
type Config struct {
	// Type is the backend type: "s3" or "local"
	Type string

	Local LocalConfig
	S3    S3Config
}

// DefaultConfig returns the default archive configuration (local filesystem)
func DefaultConfig() Config {
	return Config{
		Type: "local",
		Local: LocalConfig{
			BasePath: "~/.rtk/archive",
		},
	}
}

// New creates an archive backend from the configuration
func New(cfg Config) (Backend, error) {
	switch cfg.Type {
	case "s3":
		return NewS3(cfg.S3)
	case "local", "":
		return NewLocal(cfg.Local)
	default:
		return nil, fmt.Errorf("unknown archive backend type %q", cfg.Type)
	}
}

// SetKey returns the archive key for one RPM of a package set. Objects are
// grouped by kernel version, then run.
func SetKey(pkgs *build.PackageSet, rpmPath string) string {
	return path.Join(pkgs.KernelVersion, pkgs.RunID, filepath.Base(rpmPath))
}

// Push archives every RPM of a package set. Already archived objects are
// skipped, so a re-push after a partial failure only uploads the rest.
func Push(ctx context.Context, backend Backend, pkgs *build.PackageSet) error {
	if pkgs.Empty() {
		return fmt.Errorf("nothing to archive: the package set is empty")
	}
	for _, rpm := range pkgs.RPMs {
		key := SetKey(pkgs, rpm)

		exists, err := backend.Exists(ctx, key)
		if err != nil {
			return fmt.Errorf("cannot check archive for %s: %w", key, err)
		}
		if exists {
			log.Debug("Already archived, skipping", "key", key)
			continue
		}

		file, err := os.Open(rpm)
		if err != nil {
			return fmt.Errorf("cannot open %s: %w", rpm, err)
		}
		stat, err := file.Stat()
		if err != nil {
			file.Close()
			return fmt.Errorf("cannot stat %s: %w", rpm, err)
		}
		err = backend.Upload(ctx, key, file, stat.Size())
		file.Close()
		if err != nil {
			return fmt.Errorf("cannot archive %s: %w", key, err)
		}
		log.Info("Archived package", "key", key, "backend", backend.Type())
	}
	return nil
}
