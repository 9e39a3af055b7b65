//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestMarkerPath checks app-name sanitization in the marker location.
func TestMarkerPath(t *testing.T) {
	t.Parallel()

	path := MarkerPath("Dental Clinic")
	require.Equal(t, filepath.Join(os.TempDir(), "setupforge-install-dental-clinic.marker"), path)
}

// TestMarkerLifecycle covers fresh, stale and missing markers.
func TestMarkerLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "setup.marker")

	require.False(t, IsSetupRunningNow(ctx, path))

	require.NoError(t, CreateMarker(path))
	require.True(t, IsSetupRunningNow(ctx, path))

	// A marker older than the lifetime is reclaimed.
	old := time.Now().Add(-2 * MarkerLifetime)
	require.NoError(t, os.Chtimes(path, old, old))
	require.False(t, IsSetupRunningNow(ctx, path))

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err), "stale marker was not removed")
}

// TestRunningProcesses verifies self-exclusion and name matching.
func TestRunningProcesses(t *testing.T) {
	t.Parallel()

	self, err := os.Executable()
	require.NoError(t, err)

	// The current process never matches, even under its own name.
	matches, err := RunningProcesses(map[string]struct{}{filepath.Base(self): {}})
	require.NoError(t, err)

	for _, process := range matches {
		require.NotEqual(t, os.Getpid(), process.Pid())
	}

	matches, err = RunningProcesses(map[string]struct{}{"no-such-binary-yjx.exe": {}})
	require.NoError(t, err)
	require.Empty(t, matches)
}

// TestCopyExecutable checks content and permissions of the copy.
func TestCopyExecutable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "setup.bin")
	dst := filepath.Join(dir, "uninstall.bin")

	require.NoError(t, os.WriteFile(src, []byte("stub-bytes"), 0o644))
	require.NoError(t, CopyExecutable(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "stub-bytes", string(got))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	require.Equal(t, ExecutableFileMode, info.Mode().Perm())
}
