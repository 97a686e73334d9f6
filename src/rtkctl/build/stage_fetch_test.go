package build

import (
	"archive/tar"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/ulikunitz/xz"
)

// kernelTarball builds a minimal linux-<version>.tar.xz in memory.
func kernelTarball(t *testing.T, version string) []byte {
	t.Helper()
	var buf bytes.Buffer
	xzw, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	tw := tar.NewWriter(xzw)

	files := map[string]string{
		"linux-" + version + "/Makefile": "VERSION = 6\n",
		"linux-" + version + "/Kconfig":  "source \"init/Kconfig\"\n",
	}
	if err := tw.WriteHeader(&tar.Header{
		Name:     "linux-" + version + "/",
		Typeflag: tar.TypeDir,
		Mode:     0755,
	}); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		if err := tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0644,
			Size:     int64(len(content)),
		}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := xzw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func fetchStageContext(t *testing.T, version string) *StageContext {
	t.Helper()
	workspace := t.TempDir()
	return &StageContext{
		RunID:         "test-run",
		KernelVersion: version,
		WorkspacePath: workspace,
		SourcesDir:    filepath.Join(workspace, "sources"),
		LogsDir:       filepath.Join(workspace, "logs"),
	}
}

func TestFetchStage_DownloadAndExtract(t *testing.T) {
	const version = "6.6.52"
	archive := kernelTarball(t, version)

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write(archive)
	}))
	defer srv.Close()

	sc := fetchStageContext(t, version)
	stage := NewFetchStage(srv.Client(), srv.URL)

	if err := stage.Execute(context.Background(), sc, noProgress); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if sc.SourceDir == "" {
		t.Fatal("source directory not recorded")
	}
	if _, err := os.Stat(filepath.Join(sc.SourceDir, "Makefile")); err != nil {
		t.Errorf("expected extracted Makefile: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("expected 1 download, got %d", got)
	}
	if _, err := os.Stat(filepath.Join(sc.SourcesDir, "linux-"+version+".tar.xz.partial")); err == nil {
		t.Error("partial download file left behind")
	}
}

func TestFetchStage_RerunSkipsDownload(t *testing.T) {
	const version = "6.6.52"
	archive := kernelTarball(t, version)

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write(archive)
	}))
	defer srv.Close()

	sc := fetchStageContext(t, version)
	stage := NewFetchStage(srv.Client(), srv.URL)

	for i := 0; i < 3; i++ {
		if err := stage.Execute(context.Background(), sc, noProgress); err != nil {
			t.Fatalf("Execute() run %d error = %v", i, err)
		}
	}

	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("expected exactly 1 download across reruns, got %d", got)
	}
}

func TestFetchStage_HTTPErrorCleansPartial(t *testing.T) {
	const version = "6.6.52"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	sc := fetchStageContext(t, version)
	stage := NewFetchStage(srv.Client(), srv.URL)

	if err := stage.Execute(context.Background(), sc, noProgress); err == nil {
		t.Fatal("Execute() expected error on HTTP 404")
	}

	entries, err := os.ReadDir(sc.SourcesDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".partial" {
			t.Errorf("partial file left behind: %s", e.Name())
		}
	}
}

func TestFetchStage_SourceURL(t *testing.T) {
	stage := NewFetchStage(nil, "")
	tests := []struct {
		version string
		want    string
	}{
		{"6.6.52", "https://cdn.kernel.org/pub/linux/kernel/v6.x/linux-6.6.52.tar.xz"},
		{"5.15.170", "https://cdn.kernel.org/pub/linux/kernel/v5.x/linux-5.15.170.tar.xz"},
	}
	for _, tt := range tests {
		if got := stage.SourceURL(tt.version); got != tt.want {
			t.Errorf("SourceURL(%s) = %s, want %s", tt.version, got, tt.want)
		}
	}
}

func TestFetchStage_RejectsTraversalArchive(t *testing.T) {
	var buf bytes.Buffer
	xzw, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	tw := tar.NewWriter(xzw)
	content := "pwned"
	if err := tw.WriteHeader(&tar.Header{
		Name:     "../escape",
		Typeflag: tar.TypeReg,
		Mode:     0644,
		Size:     int64(len(content)),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	tw.Close()
	xzw.Close()

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "evil.tar.xz")
	if err := os.WriteFile(archivePath, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	stage := NewFetchStage(nil, "")
	dest := filepath.Join(dir, "out")
	if err := os.MkdirAll(dest, 0755); err != nil {
		t.Fatal(err)
	}
	if err := stage.extract(context.Background(), archivePath, dest); err == nil {
		t.Fatal("extract() expected error for traversal path")
	}
}
