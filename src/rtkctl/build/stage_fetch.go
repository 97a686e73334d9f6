package build

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	rtkerr "github.com/bitswalk/rtk/src/common/errors"
	"github.com/ulikunitz/xz"
)

// DefaultMirror is the upstream kernel source mirror.
const DefaultMirror = "https://cdn.kernel.org/pub/linux/kernel"

// FetchStage downloads and extracts the kernel source archive. Re-running
// with the same version and workspace is a no-op beyond existence checks:
// an already-downloaded tarball is never fetched again and an already
// extracted tree is never re-extracted.
type FetchStage struct {
	client *http.Client
	mirror string
}

// NewFetchStage creates a fetch stage. A nil client uses a default with no
// timeout (large downloads are bounded by the run context instead).
func NewFetchStage(client *http.Client, mirror string) *FetchStage {
	if client == nil {
		client = &http.Client{}
	}
	if mirror == "" {
		mirror = DefaultMirror
	}
	return &FetchStage{client: client, mirror: mirror}
}

// Name returns the stage name
func (s *FetchStage) Name() StageName {
	return StageFetch
}

// Validate checks whether this stage can run
func (s *FetchStage) Validate(sc *StageContext) error {
	if sc.KernelVersion == "" {
		return fmt.Errorf("kernel version not set")
	}
	if sc.WorkspacePath == "" {
		return fmt.Errorf("workspace path not set")
	}
	return nil
}

// SourceURL returns the mirror URL for the configured kernel version.
func (s *FetchStage) SourceURL(version string) string {
	series := "v6.x"
	if idx := strings.Index(version, "."); idx > 0 {
		series = fmt.Sprintf("v%s.x", version[:idx])
	}
	return fmt.Sprintf("%s/%s/linux-%s.tar.xz", s.mirror, series, version)
}

// Execute downloads the source archive if absent and extracts it if the
// tree is absent.
func (s *FetchStage) Execute(ctx context.Context, sc *StageContext, progress ProgressFunc) error {
	for _, dir := range []string{sc.SourcesDir, sc.LogsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	archivePath := filepath.Join(sc.SourcesDir, fmt.Sprintf("linux-%s.tar.xz", sc.KernelVersion))
	treePath := filepath.Join(sc.WorkspacePath, fmt.Sprintf("linux-%s", sc.KernelVersion))

	progress(0, "Checking for existing source archive")

	if stat, err := os.Stat(archivePath); err == nil && stat.Size() > 0 {
		log.Info("Source archive already present, skipping download", "path", archivePath)
	} else {
		url := s.SourceURL(sc.KernelVersion)
		progress(5, fmt.Sprintf("Downloading %s", url))
		if err := s.download(ctx, url, archivePath, progress); err != nil {
			return rtkerr.ErrDownloadFailed.WithMessagef("download of %s failed", url).WithCause(err)
		}
	}

	progress(60, "Checking for existing source tree")

	if _, err := os.Stat(filepath.Join(treePath, "Makefile")); err == nil {
		log.Info("Source tree already extracted, skipping extraction", "path", treePath)
	} else {
		progress(65, fmt.Sprintf("Extracting %s", filepath.Base(archivePath)))
		if err := s.extract(ctx, archivePath, sc.WorkspacePath); err != nil {
			return rtkerr.ErrExtractFailed.WithMessagef("extraction of %s failed", archivePath).WithCause(err)
		}
		if _, err := os.Stat(filepath.Join(treePath, "Makefile")); err != nil {
			return rtkerr.ErrSourceMissing.
				WithMessagef("archive did not contain the expected tree linux-%s", sc.KernelVersion)
		}
	}

	sc.SourceDir = treePath
	progress(100, fmt.Sprintf("Source ready at %s", treePath))
	return nil
}

// download fetches url into dest. The transfer goes to a .partial file
// renamed into place on success, so an interrupted download never leaves a
// truncated archive that a later run would mistake for a complete one.
func (s *FetchStage) download(ctx context.Context, url, dest string, progress ProgressFunc) (retErr error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "rtkctl/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	partial := dest + ".partial"
	out, err := os.Create(partial)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		out.Close()
		if retErr != nil {
			os.Remove(partial)
		}
	}()

	totalBytes := resp.ContentLength
	var received int64
	buf := make([]byte, 32*1024)
	lastPct := -1

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("failed to write archive: %w", writeErr)
			}
			received += int64(n)
			if totalBytes > 0 {
				// Scale transfer progress into the 5-60 band of the stage
				pct := 5 + int(received*55/totalBytes)
				if pct > lastPct {
					lastPct = pct
					progress(pct, fmt.Sprintf("Downloading... %d/%d MiB", received>>20, totalBytes>>20))
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("failed to read response body: %w", readErr)
		}
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := os.Rename(partial, dest); err != nil {
		return fmt.Errorf("failed to move archive into place: %w", err)
	}
	return nil
}

// extract unpacks a .tar.xz archive into destDir.
func (s *FetchStage) extract(ctx context.Context, archivePath, destDir string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	xzReader, err := xz.NewReader(file)
	if err != nil {
		return fmt.Errorf("failed to create xz reader: %w", err)
	}

	tarReader := tar.NewReader(xzReader)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar header: %w", err)
		}

		target := filepath.Join(destDir, header.Name)

		// Prevent path traversal
		if !strings.HasPrefix(filepath.Clean(target), filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("invalid tar path: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(header.Mode)); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}

		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("failed to create parent directory: %w", err)
			}
			outFile, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return fmt.Errorf("failed to create file: %w", err)
			}
			if _, err := io.Copy(outFile, tarReader); err != nil {
				outFile.Close()
				return fmt.Errorf("failed to write file: %w", err)
			}
			outFile.Close()

		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("failed to create parent directory: %w", err)
			}
			if err := os.Symlink(header.Linkname, target); err != nil && !os.IsExist(err) {
				return fmt.Errorf("failed to create symlink: %w", err)
			}

		case tar.TypeLink:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("failed to create parent directory: %w", err)
			}
			linkTarget := filepath.Join(destDir, header.Linkname)
			if err := os.Link(linkTarget, target); err != nil && !os.IsExist(err) {
				return fmt.Errorf("failed to create hard link: %w", err)
			}
		}
	}

	return nil
}
