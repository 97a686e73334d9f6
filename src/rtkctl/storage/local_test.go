package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bitswalk/rtk/src/rtkctl/build"
)

func newTestBackend(t *testing.T) *LocalBackend {
	t.Helper()
	backend, err := NewLocal(LocalConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	return backend
}

func TestLocalBackend_UploadDownload(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	content := "rpm payload"
	key := "6.6.52/run-1/kernel-6.6.52_rtk-1.x86_64.rpm"

	if err := backend.Upload(ctx, key, strings.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	exists, err := backend.Exists(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Fatal("Exists() = false after upload")
	}

	reader, info, err := backend.Download(ctx, key)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != content {
		t.Errorf("downloaded %q, want %q", data, content)
	}
	if info.Size != int64(len(content)) {
		t.Errorf("info.Size = %d, want %d", info.Size, len(content))
	}
}

func TestLocalBackend_UploadSizeMismatch(t *testing.T) {
	backend := newTestBackend(t)

	err := backend.Upload(context.Background(), "k", strings.NewReader("short"), 100)
	if err == nil {
		t.Fatal("Upload() expected size mismatch error")
	}
	if exists, _ := backend.Exists(context.Background(), "k"); exists {
		t.Error("failed upload must not leave a file behind")
	}
}

func TestLocalBackend_KeyConfinement(t *testing.T) {
	backend := newTestBackend(t)

	if err := backend.Upload(context.Background(), "../../escape", strings.NewReader("x"), 1); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	outside := filepath.Join(filepath.Dir(backend.Location()), "escape")
	if _, err := os.Stat(outside); err == nil {
		t.Error("traversal key escaped the archive base path")
	}
}

func TestLocalBackend_ListByPrefix(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	for _, key := range []string{
		"6.6.52/run-1/kernel-a.rpm",
		"6.6.52/run-2/kernel-b.rpm",
		"6.7.0/run-3/kernel-c.rpm",
	} {
		if err := backend.Upload(ctx, key, strings.NewReader("x"), 1); err != nil {
			t.Fatal(err)
		}
	}

	objects, err := backend.List(ctx, "6.6.52/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("List(6.6.52/) returned %d objects, want 2", len(objects))
	}
	for _, obj := range objects {
		if !strings.HasPrefix(obj.Key, "6.6.52/") {
			t.Errorf("unexpected key %s for prefix 6.6.52/", obj.Key)
		}
	}
}

func TestPush_SkipsExistingObjects(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	dir := t.TempDir()
	rpm := filepath.Join(dir, "kernel-6.6.52_rtk-1.x86_64.rpm")
	if err := os.WriteFile(rpm, []byte("rpm"), 0644); err != nil {
		t.Fatal(err)
	}

	pkgs := &build.PackageSet{
		KernelVersion: "6.6.52",
		RunID:         "run-1",
		RPMs:          []string{rpm},
	}

	if err := Push(ctx, backend, pkgs); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	// Second push is a no-op, not an error
	if err := Push(ctx, backend, pkgs); err != nil {
		t.Fatalf("re-Push() error = %v", err)
	}

	objects, err := backend.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(objects) != 1 {
		t.Errorf("expected 1 archived object, got %d", len(objects))
	}
}

func TestPush_EmptySetFails(t *testing.T) {
	backend := newTestBackend(t)
	if err := Push(context.Background(), backend, &build.PackageSet{}); err == nil {
		t.Fatal("Push() expected error for an empty package set")
	}
}
