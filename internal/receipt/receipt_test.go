package receipt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// sampleReceipt builds a filled receipt for round-trip checks.
func sampleReceipt(installDir string) *Receipt {
	rec := New("DentalClinic", "1.2.0", installDir)
	rec.Files = []InstalledFile{
		{RelPath: "DentalClinic.exe", SHA512: "c29tZS1kaWdlc3Q=", Size: 1024},
		{RelPath: "database/db.sqlite", SHA512: "b3RoZXItZGlnZXN0", Size: 64},
	}
	rec.Shortcuts = []string{filepath.Join(installDir, "DentalClinic.desktop")}
	rec.SelectedTasks = []string{"desktopicon"}
	rec.ToolVersion = "0.1.0"

	return rec
}

// TestNewFillsIdentity gives every receipt an ID and timestamp.
func TestNewFillsIdentity(t *testing.T) {
	t.Parallel()

	a := New("DentalClinic", "1.2.0", "/opt/dc")
	b := New("DentalClinic", "1.2.0", "/opt/dc")

	require.NotEmpty(t, a.ID)
	require.NotEqual(t, a.ID, b.ID)
	require.False(t, a.InstalledAt.IsZero())
	require.Equal(t, "/opt/dc", a.InstallDir)
}

// TestSaveLoadRoundtrip preserves every field through disk.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo := NewFileRepository(DefaultPath(dir))
	ctx := context.Background()

	want := sampleReceipt(dir)
	require.NoError(t, repo.Save(ctx, want))

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, want.ID, got.ID)
	require.Equal(t, want.Files, got.Files)
	require.Equal(t, want.Shortcuts, got.Shortcuts)
	require.Equal(t, want.SelectedTasks, got.SelectedTasks)
	require.True(t, want.InstalledAt.Equal(got.InstalledAt))
}

// TestLoadMissingReceipt returns the sentinel.
func TestLoadMissingReceipt(t *testing.T) {
	t.Parallel()

	repo := NewFileRepository(DefaultPath(t.TempDir()))

	_, err := repo.Load(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
}

// TestSaveLeavesNoTempFiles checks the atomic rename cleans up after itself.
func TestSaveLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo := NewFileRepository(DefaultPath(dir))
	require.NoError(t, repo.Save(context.Background(), sampleReceipt(dir)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, Filename, entries[0].Name())
}

// TestSaveOverwrites replaces a previous receipt in place.
func TestSaveOverwrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo := NewFileRepository(DefaultPath(dir))
	ctx := context.Background()

	first := sampleReceipt(dir)
	require.NoError(t, repo.Save(ctx, first))

	second := sampleReceipt(dir)
	second.AppVersion = "1.3.0"
	require.NoError(t, repo.Save(ctx, second))

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "1.3.0", got.AppVersion)
	require.Equal(t, second.ID, got.ID)
}

// TestRemoveIdempotent tolerates a missing receipt.
func TestRemoveIdempotent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo := NewFileRepository(DefaultPath(dir))
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleReceipt(dir)))
	require.NoError(t, repo.Remove(ctx))
	require.NoError(t, repo.Remove(ctx))

	_, err := repo.Load(ctx)
	require.ErrorIs(t, err, ErrNotFound)
}
