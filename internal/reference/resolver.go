// Package reference resolves a job's voice specification into a local audio file that
// the voice model can use as a cloning reference.
package reference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-worker/internal/core"
	"github.com/book-expert/voice-clone-worker/internal/objectstore"
	"github.com/book-expert/voice-clone-worker/internal/workspace"
)

// MinReferenceBytes is the smallest file accepted as a reference recording.
const MinReferenceBytes = 1000

// Voice specification schemes.
const (
	schemeHTTP        = "http://"
	schemeHTTPS       = "https://"
	schemeObjectStore = objectstore.Scheme
)

const (
	scratchPrefix    = "voice"
	scratchExtension = ".wav"
)

// Caller-facing messages.
const (
	msgFmtDownloadFailed     = "Failed to download voice file: %v"
	msgFmtObjectStoreFailed  = "Failed to fetch voice file from object store: %v"
	msgFmtObjectStoreMissing = "Object store is not configured for voice reference: %s"
	msgFmtLocalNotFound      = "Local voice file not found: %s"
	msgFileDoesNotExist      = "Voice file does not exist"
	msgFmtFileTooSmall       = "Voice file too small: %d bytes"
)

// ErrBadStatus is returned when the reference URL answers with a non-2xx status.
var ErrBadStatus = errors.New("unexpected http status")

// Resolver resolves voice specifications. store may be nil when no object store is
// configured; objectstore:// references then fail.
type Resolver struct {
	httpClient *http.Client
	layout     workspace.Layout
	store      core.ObjectStore
	log        *logger.Logger
}

// NewResolver creates a Resolver that stages downloads in the layout's tmp directory.
func NewResolver(
	httpClient *http.Client,
	layout workspace.Layout,
	store core.ObjectStore,
	log *logger.Logger,
) *Resolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Resolver{
		httpClient: httpClient,
		layout:     layout,
		store:      store,
		log:        log,
	}
}

// Resolve returns the local path of a validated reference recording. Every error is a
// core.Failure wrapping core.ErrReference.
func (r *Resolver) Resolve(ctx context.Context, voiceSpec string) (string, error) {
	var (
		localPath string
		err       error
	)

	switch {
	case strings.HasPrefix(voiceSpec, schemeHTTP), strings.HasPrefix(voiceSpec, schemeHTTPS):
		localPath, err = r.download(ctx, voiceSpec)
		if err != nil {
			r.log.Error("Failed to download voice file %s: %v", voiceSpec, err)

			return "", core.Fail(core.ErrReference, err, msgFmtDownloadFailed, err)
		}
	case strings.HasPrefix(voiceSpec, schemeObjectStore):
		localPath, err = r.fetchObject(ctx, strings.TrimPrefix(voiceSpec, schemeObjectStore))
		if err != nil {
			return "", err
		}
	default:
		localPath = voiceSpec

		_, statErr := os.Stat(localPath)
		if statErr != nil {
			r.log.Error("Local voice file not found: %s", localPath)

			return "", core.Fail(core.ErrReference, statErr, msgFmtLocalNotFound, localPath)
		}
	}

	return r.validate(localPath)
}

func (r *Resolver) validate(localPath string) (string, error) {
	size, err := workspace.FileSize(localPath)
	if err != nil {
		return "", core.Fail(core.ErrReference, err, msgFileDoesNotExist)
	}

	r.log.Info("Voice file size: %d bytes", size)

	if size < MinReferenceBytes {
		return "", core.Fail(core.ErrReference, nil, msgFmtFileTooSmall, size)
	}

	return localPath, nil
}

func (r *Resolver) download(ctx context.Context, url string) (string, error) {
	err := workspace.EnsureDir(r.layout.TmpDir())
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("%w: %s for url %s", ErrBadStatus, resp.Status, url)
	}

	localPath := r.layout.ScratchFile(scratchPrefix, scratchExtension)

	file, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", localPath, err)
	}

	_, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()

	if copyErr != nil || closeErr != nil {
		r.discard(localPath)

		return "", fmt.Errorf("failed to write %s: %w", localPath, errors.Join(copyErr, closeErr))
	}

	return localPath, nil
}

func (r *Resolver) fetchObject(ctx context.Context, key string) (string, error) {
	if r.store == nil {
		return "", core.Fail(core.ErrReference, nil, msgFmtObjectStoreMissing, key)
	}

	err := workspace.EnsureDir(r.layout.TmpDir())
	if err != nil {
		return "", core.Fail(core.ErrReference, err, msgFmtObjectStoreFailed, err)
	}

	localPath := r.layout.ScratchFile(scratchPrefix, scratchExtension)

	err = r.store.DownloadFile(ctx, key, localPath)
	if err != nil {
		r.discard(localPath)
		r.log.Error("Failed to fetch voice object %s: %v", key, err)

		return "", core.Fail(core.ErrReference, err, msgFmtObjectStoreFailed, err)
	}

	return localPath, nil
}

func (r *Resolver) discard(path string) {
	removeErr := os.Remove(path)
	if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		r.log.Warn("Failed to remove partial download '%s': %v", path, removeErr)
	}
}
