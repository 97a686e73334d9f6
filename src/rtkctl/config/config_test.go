package config

import (
	"strings"
	"testing"

	rtkerr "github.com/bitswalk/rtk/src/common/errors"
	"github.com/bitswalk/rtk/src/rtkctl/storage"
)

func validConfig() *Config {
	return &Config{
		KernelVersion: "6.6.52",
		Workspace:     "/tmp/rtk",
		Remote: Remote{
			Host:    "target.example",
			Port:    22,
			User:    "ec2-user",
			KeyPath: "/home/user/.ssh/id_ed25519",
		},
		Archive: storage.Config{
			Type:  "local",
			Local: storage.LocalConfig{BasePath: "/tmp/archive"},
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"two component version", func(c *Config) { c.KernelVersion = "6.6" }, false},
		{"empty version", func(c *Config) { c.KernelVersion = "" }, true},
		{"garbage version", func(c *Config) { c.KernelVersion = "latest" }, true},
		{"version with suffix", func(c *Config) { c.KernelVersion = "6.6.52-rc1" }, true},
		{"empty workspace", func(c *Config) { c.Workspace = "" }, true},
		{"negative jobs", func(c *Config) { c.Parallelism = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !rtkerr.Is(err, rtkerr.ErrConfigInvalid) {
				t.Errorf("expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestValidateRemote(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		if err := validConfig().ValidateRemote(); err != nil {
			t.Errorf("ValidateRemote() error = %v", err)
		}
	})

	t.Run("missing settings are all named", func(t *testing.T) {
		cfg := validConfig()
		cfg.Remote.Host = ""
		cfg.Remote.KeyPath = ""
		err := cfg.ValidateRemote()
		if err == nil {
			t.Fatal("ValidateRemote() expected error")
		}
		if !rtkerr.Is(err, rtkerr.ErrRemoteTargetMissing) {
			t.Fatalf("expected ErrRemoteTargetMissing, got %v", err)
		}
		msg := err.Error()
		for _, key := range []string{"remote.host", "remote.key_path"} {
			if !strings.Contains(msg, key) {
				t.Errorf("error should name %s, got %q", key, msg)
			}
		}
	})

	t.Run("port out of range", func(t *testing.T) {
		cfg := validConfig()
		cfg.Remote.Port = 70000
		if err := cfg.ValidateRemote(); err == nil {
			t.Error("ValidateRemote() expected error for invalid port")
		}
	})
}

func TestValidateArchive(t *testing.T) {
	t.Run("s3 requires bucket and endpoint", func(t *testing.T) {
		cfg := validConfig()
		cfg.Archive.Type = "s3"
		if err := cfg.ValidateArchive(); err == nil {
			t.Fatal("ValidateArchive() expected error for incomplete S3 settings")
		}

		cfg.Archive.S3.Bucket = "rtk-artifacts"
		cfg.Archive.S3.Endpoint = "https://s3.example"
		if err := cfg.ValidateArchive(); err != nil {
			t.Errorf("ValidateArchive() error = %v", err)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		cfg := validConfig()
		cfg.Archive.Type = "ftp"
		if err := cfg.ValidateArchive(); err == nil {
			t.Error("ValidateArchive() expected error for unknown backend type")
		}
	})
}
