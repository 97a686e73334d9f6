// Package config holds the typed run configuration, loaded from the viper
// layer (file, environment, flags) and validated before any work starts.
package config

import (
	"fmt"
	"regexp"
	"strings"

	rtkerr "github.com/bitswalk/rtk/src/common/errors"
	"github.com/bitswalk/rtk/src/common/paths"
	"github.com/bitswalk/rtk/src/rtkctl/storage"
	"github.com/spf13/viper"
)

// kernelVersionRe accepts upstream stable versions like 6.6 or 6.6.52.
var kernelVersionRe = regexp.MustCompile(`^\d+\.\d+(\.\d+)?$`)

// Remote describes the deploy target host.
type Remote struct {
	Host string
	Port int
	User string

	// KeyPath is the SSH private key used for authentication.
	KeyPath string
	// KnownHostsPath overrides ~/.ssh/known_hosts for host verification.
	KnownHostsPath string
	// InsecureHostKey skips host key verification.
	InsecureHostKey bool
}

// Config is the full run configuration.
type Config struct {
	// KernelVersion is the upstream kernel to build, e.g. "6.6.52".
	KernelVersion string

	// Workspace is the root directory for sources, logs and RPM output.
	Workspace string

	// BaseConfigPath overrides the baseline kernel configuration file.
	BaseConfigPath string

	// Parallelism is the make job count. Zero means the CPU count.
	Parallelism int

	Remote  Remote
	Archive storage.Config
}

// Defaults registers the configuration defaults with viper.
func Defaults() {
	viper.SetDefault("kernel.version", "6.6.52")
	viper.SetDefault("workspace", "~/.rtk/workspace")
	viper.SetDefault("remote.port", 22)
	viper.SetDefault("remote.user", "ec2-user")
	viper.SetDefault("archive.type", "local")
	viper.SetDefault("archive.local.base_path", "~/.rtk/archive")
	viper.SetDefault("archive.s3.region", "us-east-1")
}

// Load builds the typed configuration from the current viper state.
func Load() *Config {
	return &Config{
		KernelVersion:  viper.GetString("kernel.version"),
		Workspace:      paths.Expand(viper.GetString("workspace")),
		BaseConfigPath: paths.Expand(viper.GetString("kernel.base_config")),
		Parallelism:    viper.GetInt("build.jobs"),
		Remote: Remote{
			Host:            viper.GetString("remote.host"),
			Port:            viper.GetInt("remote.port"),
			User:            viper.GetString("remote.user"),
			KeyPath:         paths.Expand(viper.GetString("remote.key_path")),
			KnownHostsPath:  paths.Expand(viper.GetString("remote.known_hosts")),
			InsecureHostKey: viper.GetBool("remote.insecure_host_key"),
		},
		Archive: storage.Config{
			Type: viper.GetString("archive.type"),
			Local: storage.LocalConfig{
				BasePath: viper.GetString("archive.local.base_path"),
			},
			S3: storage.S3Config{
				Endpoint:        viper.GetString("archive.s3.endpoint"),
				Region:          viper.GetString("archive.s3.region"),
				Bucket:          viper.GetString("archive.s3.bucket"),
				AccessKeyID:     viper.GetString("archive.s3.access_key_id"),
				SecretAccessKey: viper.GetString("archive.s3.secret_access_key"),
				UsePathStyle:    viper.GetBool("archive.s3.use_path_style"),
			},
		},
	}
}

// Validate checks the parts of the configuration every command needs.
func (c *Config) Validate() error {
	if c.KernelVersion == "" {
		return rtkerr.ErrConfigInvalid.WithMessage("kernel.version is not set")
	}
	if !kernelVersionRe.MatchString(c.KernelVersion) {
		return rtkerr.ErrConfigInvalid.
			WithMessagef("kernel.version %q is not a valid upstream version", c.KernelVersion).
			WithRemedy("use a version like 6.6.52")
	}
	if c.Workspace == "" {
		return rtkerr.ErrConfigInvalid.WithMessage("workspace is not set")
	}
	if c.Parallelism < 0 {
		return rtkerr.ErrConfigInvalid.WithMessagef("build.jobs must not be negative, got %d", c.Parallelism)
	}
	return nil
}

// ValidateRemote additionally checks the deploy target settings. Only the
// deploy command needs these.
func (c *Config) ValidateRemote() error {
	var missing []string
	if c.Remote.Host == "" {
		missing = append(missing, "remote.host")
	}
	if c.Remote.User == "" {
		missing = append(missing, "remote.user")
	}
	if c.Remote.KeyPath == "" {
		missing = append(missing, "remote.key_path")
	}
	if len(missing) > 0 {
		return rtkerr.ErrRemoteTargetMissing.
			WithMessagef("missing deploy settings: %s", strings.Join(missing, ", ")).
			WithRemedy("set them in the config file or via RTK_* environment variables")
	}
	if c.Remote.Port <= 0 || c.Remote.Port > 65535 {
		return rtkerr.ErrConfigInvalid.WithMessagef("remote.port %d is out of range", c.Remote.Port)
	}
	return nil
}

// ValidateArchive checks the artifact archive settings.
func (c *Config) ValidateArchive() error {
	switch c.Archive.Type {
	case "local", "":
		if c.Archive.Local.BasePath == "" {
			return rtkerr.ErrConfigInvalid.WithMessage("archive.local.base_path is not set")
		}
	case "s3":
		if c.Archive.S3.Bucket == "" {
			return rtkerr.ErrConfigInvalid.WithMessage("archive.s3.bucket is not set")
		}
		if c.Archive.S3.Endpoint == "" {
			return rtkerr.ErrConfigInvalid.WithMessage("archive.s3.endpoint is not set")
		}
	default:
		return rtkerr.ErrConfigInvalid.
			WithMessagef("archive.type %q is not supported", c.Archive.Type).
			WithRemedy(fmt.Sprintf("use %q or %q", "local", "s3"))
	}
	return nil
}
