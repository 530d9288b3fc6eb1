// Package workspace owns the worker's process-relative directory layout: model
// checkpoints, synthesized outputs and per-job scratch space.
package workspace

import (
	"crypto/md5" //nolint:gosec // used as a short filename tag, not for integrity
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Directory names relative to the workspace root.
const (
	CheckpointsDirName  = "checkpoints_v2"
	BaseSpeakersDirName = "base_speakers"
	SESDirName          = "ses"
	ConverterDirName    = "converter"
	OutputsDirName      = "outputs_v2"
	TmpDirName          = "tmp"
	ProcessedDirName    = "processed"
)

// Converter checkpoint file names.
const (
	ConverterConfigFile     = "config.json"
	ConverterCheckpointFile = "checkpoint.pth"
	speakerEmbeddingExt     = ".pth"
)

const (
	defaultDirPermissions = 0o750
	outputBaseName        = "OpenVoice"
	outputExtension       = ".wav"
	timestampLayout       = "20060102_150405"
	randomSuffixLength    = 6
	hashSuffixLength      = 6
	randomAlphabet        = "abcdefghijklmnopqrstuvwxyz0123456789"
	maxReserveAttempts    = 16
	reservedFilePerm      = 0o600
)

const errFmtFailedToCreateDir = "failed to create directory %s: %w"

// Layout resolves the worker's directories under a root.
type Layout struct {
	Root string
}

// New returns a Layout rooted at root.
func New(root string) Layout {
	return Layout{Root: root}
}

// CheckpointsDir is the model checkpoint root.
func (l Layout) CheckpointsDir() string {
	return filepath.Join(l.Root, CheckpointsDirName)
}

// ConverterDir holds the tone converter config and weights.
func (l Layout) ConverterDir() string {
	return filepath.Join(l.CheckpointsDir(), ConverterDirName)
}

// ConverterConfig is the tone converter configuration file.
func (l Layout) ConverterConfig() string {
	return filepath.Join(l.ConverterDir(), ConverterConfigFile)
}

// ConverterCheckpoint is the tone converter weights file.
func (l Layout) ConverterCheckpoint() string {
	return filepath.Join(l.ConverterDir(), ConverterCheckpointFile)
}

// SpeakerEmbeddingsDir holds the precomputed base speaker embeddings.
func (l Layout) SpeakerEmbeddingsDir() string {
	return filepath.Join(l.CheckpointsDir(), BaseSpeakersDirName, SESDirName)
}

// SpeakerEmbedding is the embedding file of a normalised base speaker key.
func (l Layout) SpeakerEmbedding(speakerKey string) string {
	return filepath.Join(l.SpeakerEmbeddingsDir(), speakerKey+speakerEmbeddingExt)
}

// OutputsDir receives synthesized files.
func (l Layout) OutputsDir() string {
	return filepath.Join(l.Root, OutputsDirName)
}

// TmpDir is per-job download scratch.
func (l Layout) TmpDir() string {
	return filepath.Join(l.Root, TmpDirName)
}

// ProcessedDir is scratch used by the voice model while extracting embeddings.
func (l Layout) ProcessedDir() string {
	return filepath.Join(l.Root, ProcessedDirName)
}

// RequiredCheckpointDirs lists the checkpoint subpaths, relative to the directory that
// contains CheckpointsDirName, whose presence means the checkpoints are cached.
func RequiredCheckpointDirs() []string {
	return []string{
		CheckpointsDirName,
		filepath.Join(CheckpointsDirName, BaseSpeakersDirName),
		filepath.Join(CheckpointsDirName, BaseSpeakersDirName, SESDirName),
		filepath.Join(CheckpointsDirName, ConverterDirName),
	}
}

// ScratchDirs are the directories that grow per job and are subject to retention.
func (l Layout) ScratchDirs() []string {
	return []string{l.TmpDir(), l.ProcessedDir(), l.OutputsDir()}
}

// Ensure creates every directory of the layout.
func (l Layout) Ensure() error {
	dirs := []string{
		l.SpeakerEmbeddingsDir(),
		l.ConverterDir(),
		l.OutputsDir(),
		l.TmpDir(),
		l.ProcessedDir(),
	}

	for _, dir := range dirs {
		err := EnsureDir(dir)
		if err != nil {
			return err
		}
	}

	return nil
}

// ScratchFile returns a unique path in the tmp directory with the given extension.
func (l Layout) ScratchFile(prefix, ext string) string {
	return filepath.Join(l.TmpDir(), prefix+"_"+uuid.NewString()+ext)
}

// ErrNoUniqueName is returned when every reservation attempt hit an existing file.
var ErrNoUniqueName = errors.New("could not reserve a unique output filename")

// ErrNotDirectory is returned when a workspace path exists but is not a directory.
var ErrNotDirectory = errors.New("path exists but is not a directory")

// ReserveOutputPath creates an empty, previously non-existent output file and returns its
// path. The name is built from a timestamp, a random suffix and a short hash of the base
// title; exclusive creation guarantees no two callers receive the same path.
func (l Layout) ReserveOutputPath(now time.Time) (string, error) {
	for range maxReserveAttempts {
		path := filepath.Join(l.OutputsDir(), UniqueFilename(outputBaseName, outputExtension, now))

		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, reservedFilePerm)
		if errors.Is(err, os.ErrExist) {
			continue
		}

		if err != nil {
			return "", fmt.Errorf("failed to reserve output file %s: %w", path, err)
		}

		closeErr := file.Close()
		if closeErr != nil {
			return "", fmt.Errorf("failed to close reserved output file %s: %w", path, closeErr)
		}

		return path, nil
	}

	return "", ErrNoUniqueName
}

// UniqueFilename builds <base>_<timestamp>_<random>_<hash><ext>.
func UniqueFilename(base, ext string, now time.Time) string {
	random := make([]byte, randomSuffixLength)
	for i := range random {
		random[i] = randomAlphabet[rand.IntN(len(randomAlphabet))] //nolint:gosec // not security sensitive
	}

	sum := md5.Sum([]byte(base)) //nolint:gosec // filename tag only

	hash := hex.EncodeToString(sum[:])[:hashSuffixLength]

	return fmt.Sprintf("%s_%s_%s_%s%s", base, now.Format(timestampLayout), string(random), hash, ext)
}

// EnsureDir ensures a directory exists at the given path, creating it if it doesn't. A path
// that exists but is not a directory is an error.
func EnsureDir(path string) error {
	info, statErr := os.Stat(path)
	if statErr == nil {
		if !info.IsDir() {
			return fmt.Errorf("%w: %s", ErrNotDirectory, path)
		}

		return nil
	}

	if !os.IsNotExist(statErr) {
		return fmt.Errorf("failed to stat directory %s: %w", path, statErr)
	}

	mkdirErr := os.MkdirAll(path, defaultDirPermissions)
	if mkdirErr != nil {
		return fmt.Errorf(errFmtFailedToCreateDir, path, mkdirErr)
	}

	return nil
}

// FileSize returns the size of a regular file.
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	return info.Size(), nil
}
