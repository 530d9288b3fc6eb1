// Package checkpoints makes sure the voice model's checkpoint files are present locally
// before the first job runs, downloading and unpacking the checkpoint archive on a cold
// start and reusing a shared volume when one is attached.
package checkpoints

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-worker/internal/core"
	"github.com/klauspost/compress/zip"
	"github.com/schollz/progressbar/v3"
)

const (
	dirPermissions     = 0o750
	progressBarWidth   = 30
	progressBarMessage = "Downloading checkpoints"
	defaultArchiveName = "checkpoints.zip"
)

// Static errors.
var (
	ErrArchiveURLEmpty  = errors.New("checkpoint archive url cannot be empty")
	ErrTargetDirEmpty   = errors.New("checkpoint target directory cannot be empty")
	ErrUnsafeEntry      = errors.New("archive entry escapes target directory")
	ErrMissingAfterSync = errors.New("required checkpoint directory missing after extraction")
)

// Provisioner downloads and unpacks checkpoint archives.
type Provisioner struct {
	httpClient *http.Client
	log        *logger.Logger
	progress   io.Writer
}

// NewProvisioner creates a Provisioner. progress receives the download progress bar;
// pass io.Discard to silence it.
func NewProvisioner(httpClient *http.Client, log *logger.Logger, progress io.Writer) *Provisioner {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if progress == nil {
		progress = io.Discard
	}

	return &Provisioner{
		httpClient: httpClient,
		log:        log,
		progress:   progress,
	}
}

// Ensure makes every required subdirectory exist under targetDir. When they already
// exist nothing is downloaded. Otherwise the archive at archiveURL is downloaded next to
// the target, fully extracted into targetDir and removed.
func (p *Provisioner) Ensure(ctx context.Context, archiveURL, targetDir string, requiredDirs []string) error {
	if targetDir == "" {
		return fmt.Errorf("%w: %w", core.ErrCheckpoint, ErrTargetDirEmpty)
	}

	cached, err := CheckDirectories(targetDir, requiredDirs)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrCheckpoint, err)
	}

	if cached {
		p.log.Info("Cached models present in %s", targetDir)

		return nil
	}

	if archiveURL == "" {
		return fmt.Errorf("%w: %w", core.ErrCheckpoint, ErrArchiveURLEmpty)
	}

	p.log.Info("Loading models into cache from %s", archiveURL)

	mkdirErr := os.MkdirAll(targetDir, dirPermissions)
	if mkdirErr != nil {
		return fmt.Errorf("%w: failed to create %s: %w", core.ErrCheckpoint, targetDir, mkdirErr)
	}

	archivePath := filepath.Join(targetDir, archiveName(archiveURL))

	syncErr := p.downloadAndExtract(ctx, archiveURL, archivePath, targetDir)
	if syncErr != nil {
		return fmt.Errorf("%w: %w", core.ErrCheckpoint, syncErr)
	}

	cached, err = CheckDirectories(targetDir, requiredDirs)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrCheckpoint, err)
	}

	if !cached {
		return fmt.Errorf("%w: %w in %s", core.ErrCheckpoint, ErrMissingAfterSync, targetDir)
	}

	p.log.Info("Checkpoints extracted into %s", targetDir)

	return nil
}

// CheckDirectories reports whether every dir exists under baseDir.
func CheckDirectories(baseDir string, dirs []string) (bool, error) {
	for _, dir := range dirs {
		_, err := os.Stat(filepath.Join(baseDir, dir))
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		if err != nil {
			return false, fmt.Errorf("failed to check %s: %w", dir, err)
		}
	}

	return true, nil
}

func (p *Provisioner) downloadAndExtract(ctx context.Context, archiveURL, archivePath, targetDir string) error {
	downloadErr := p.download(ctx, archiveURL, archivePath)
	if downloadErr != nil {
		p.removeArchive(archivePath)

		return downloadErr
	}

	extractErr := ExtractArchive(archivePath, targetDir)
	p.removeArchive(archivePath)

	if extractErr != nil {
		return extractErr
	}

	return nil
}

func (p *Provisioner) download(ctx context.Context, archiveURL, archivePath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create archive request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download archive %s: %w", archiveURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("failed to download archive %s: status %s", archiveURL, resp.Status)
	}

	file, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}

	bar := progressbar.NewOptions64(
		resp.ContentLength,
		progressbar.OptionSetDescription(progressBarMessage),
		progressbar.OptionSetWriter(p.progress),
		progressbar.OptionSetWidth(progressBarWidth),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(0),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(p.progress)
		}),
	)

	_, copyErr := io.Copy(io.MultiWriter(file, bar), resp.Body)
	closeErr := file.Close()

	if copyErr != nil {
		return fmt.Errorf("failed to write archive: %w", copyErr)
	}

	if closeErr != nil {
		return fmt.Errorf("failed to close archive: %w", closeErr)
	}

	_ = bar.Finish()

	return nil
}

func (p *Provisioner) removeArchive(archivePath string) {
	removeErr := os.Remove(archivePath)
	if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		p.log.Warn("Failed to remove archive '%s': %v", archivePath, removeErr)
	}
}

// ExtractArchive unpacks every entry of a zip archive into targetDir.
func ExtractArchive(archivePath, targetDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer reader.Close()

	root, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", targetDir, err)
	}

	for _, entry := range reader.File {
		entryErr := extractEntry(entry, root)
		if entryErr != nil {
			return entryErr
		}
	}

	return nil
}

func extractEntry(entry *zip.File, root string) error {
	dest := filepath.Join(root, filepath.FromSlash(entry.Name))
	if dest != root && !strings.HasPrefix(dest, root+string(os.PathSeparator)) {
		return fmt.Errorf("%w: %s", ErrUnsafeEntry, entry.Name)
	}

	if entry.FileInfo().IsDir() {
		mkdirErr := os.MkdirAll(dest, dirPermissions)
		if mkdirErr != nil {
			return fmt.Errorf("failed to create %s: %w", dest, mkdirErr)
		}

		return nil
	}

	mkdirErr := os.MkdirAll(filepath.Dir(dest), dirPermissions)
	if mkdirErr != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dest), mkdirErr)
	}

	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("failed to open entry %s: %w", entry.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, entry.Mode().Perm()|0o600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}

	_, copyErr := io.Copy(dst, src) //nolint:gosec // archive comes from the configured checkpoint host
	closeErr := dst.Close()

	if copyErr != nil {
		return fmt.Errorf("failed to extract %s: %w", entry.Name, copyErr)
	}

	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", dest, closeErr)
	}

	return nil
}

func archiveName(archiveURL string) string {
	trimmed, _, _ := strings.Cut(archiveURL, "?")

	name := path.Base(trimmed)
	if name == "" || name == "." || name == "/" {
		return defaultArchiveName
	}

	return name
}
