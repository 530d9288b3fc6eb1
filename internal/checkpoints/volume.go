package checkpoints

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Default shared volume mount points, checked in order.
var DefaultVolumeCandidates = []string{"/runpod-volume", "/workspace"}

// DetectVolume returns the first candidate that exists, or "" when no volume is attached.
func DetectVolume(candidates []string) string {
	for _, candidate := range candidates {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate
		}
	}

	return ""
}

// MapSharedVolume points linkPath at <volume>/<volumeSubdir> on the first attached shared
// volume, replacing any directory, file or link already at linkPath. It returns the
// volume used, or "" when none is attached.
func MapSharedVolume(candidates []string, volumeSubdir, linkPath string) (string, error) {
	volume := DetectVolume(candidates)
	if volume == "" {
		return "", nil
	}

	volumeDir := filepath.Join(volume, volumeSubdir)

	mkdirErr := os.MkdirAll(volumeDir, dirPermissions)
	if mkdirErr != nil {
		return "", fmt.Errorf("failed to create %s: %w", volumeDir, mkdirErr)
	}

	clearErr := clearLinkTarget(linkPath)
	if clearErr != nil {
		return "", clearErr
	}

	parentErr := os.MkdirAll(filepath.Dir(linkPath), dirPermissions)
	if parentErr != nil {
		return "", fmt.Errorf("failed to create %s: %w", filepath.Dir(linkPath), parentErr)
	}

	linkErr := os.Symlink(volumeDir, linkPath)
	if linkErr != nil {
		return "", fmt.Errorf("failed to link %s to %s: %w", linkPath, volumeDir, linkErr)
	}

	return volume, nil
}

func clearLinkTarget(linkPath string) error {
	info, err := os.Lstat(linkPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", linkPath, err)
	}

	if info.IsDir() {
		removeErr := os.RemoveAll(linkPath)
		if removeErr != nil {
			return fmt.Errorf("failed to remove directory %s: %w", linkPath, removeErr)
		}

		return nil
	}

	removeErr := os.Remove(linkPath)
	if removeErr != nil {
		return fmt.Errorf("failed to remove %s: %w", linkPath, removeErr)
	}

	return nil
}
