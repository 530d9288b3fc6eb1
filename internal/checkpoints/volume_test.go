package checkpoints_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/voice-clone-worker/internal/checkpoints"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapSharedVolume_NoVolume(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	linkPath := filepath.Join(root, "app", "checkpoints_v2")

	volume, err := checkpoints.MapSharedVolume([]string{filepath.Join(root, "absent")}, "OpenVoice", linkPath)
	require.NoError(t, err)
	assert.Empty(t, volume)
	assert.NoFileExists(t, linkPath)
}

func TestMapSharedVolume_ReplacesExistingDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mount := filepath.Join(root, "workspace")
	require.NoError(t, os.MkdirAll(mount, 0o750))

	linkPath := filepath.Join(root, "app", "checkpoints_v2")
	require.NoError(t, os.MkdirAll(filepath.Join(linkPath, "stale"), 0o750))

	volume, err := checkpoints.MapSharedVolume(
		[]string{filepath.Join(root, "runpod-volume"), mount}, "OpenVoice", linkPath)
	require.NoError(t, err)
	assert.Equal(t, mount, volume)

	target, err := os.Readlink(linkPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(mount, "OpenVoice"), target)
	assert.DirExists(t, filepath.Join(mount, "OpenVoice"))
}

func TestMapSharedVolume_ReplacesExistingLink(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mount := filepath.Join(root, "runpod-volume")
	require.NoError(t, os.MkdirAll(mount, 0o750))

	linkPath := filepath.Join(root, "checkpoints_v2")
	require.NoError(t, os.Symlink(filepath.Join(root, "elsewhere"), linkPath))

	_, err := checkpoints.MapSharedVolume([]string{mount}, "OpenVoice", linkPath)
	require.NoError(t, err)

	// Mapping again is safe.
	_, err = checkpoints.MapSharedVolume([]string{mount}, "OpenVoice", linkPath)
	require.NoError(t, err)

	target, err := os.Readlink(linkPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(mount, "OpenVoice"), target)
}
