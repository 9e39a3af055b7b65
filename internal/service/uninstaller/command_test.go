package uninstaller

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/setupforge/setupforge/internal/payload"
	"github.com/setupforge/setupforge/internal/receipt"
)

// installFixture lays out an installed tree with a receipt describing it.
// Returns the install dir and the receipt that was written.
func installFixture(t *testing.T, files map[string]string, shortcuts []string) (string, *receipt.Receipt) {
	t.Helper()

	ctx := context.Background()
	installDir := filepath.Join(t.TempDir(), "clinic")
	rec := receipt.New("DentalClinic", "1.2.0", installDir)

	for rel, content := range files {
		path := filepath.Join(installDir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o755))

		digest, err := payload.FileChecksum(path)
		require.NoError(t, err)

		rec.Files = append(rec.Files, receipt.InstalledFile{
			RelPath: rel,
			SHA512:  digest,
			Size:    int64(len(content)),
		})
	}

	rec.Shortcuts = shortcuts
	require.NoError(t, receipt.NewFileRepository(receipt.DefaultPath(installDir)).Save(ctx, rec))

	return installDir, rec
}

// TestRunRemovesReceiptListedFiles checks that exactly the recorded paths
// are deleted and user files survive.
func TestRunRemovesReceiptListedFiles(t *testing.T) {
	t.Parallel()

	shortcutFile := filepath.Join(t.TempDir(), "DentalClinic.desktop")
	require.NoError(t, os.WriteFile(shortcutFile, []byte("[Desktop Entry]\n"), 0o755))

	installDir, _ := installFixture(t, map[string]string{
		"DentalClinic.exe":   "machine-code",
		"database/db.sqlite": "rows",
	}, []string{shortcutFile})

	// A file the user added after installing must survive.
	userFile := filepath.Join(installDir, "notes.txt")
	require.NoError(t, os.WriteFile(userFile, []byte("patient notes"), 0o644))

	require.NoError(t, Run(context.Background(), &Options{InstallDir: installDir}))

	require.NoFileExists(t, filepath.Join(installDir, "DentalClinic.exe"))
	require.NoFileExists(t, filepath.Join(installDir, "database", "db.sqlite"))
	require.NoDirExists(t, filepath.Join(installDir, "database"))
	require.NoFileExists(t, shortcutFile)
	require.NoFileExists(t, receipt.DefaultPath(installDir))
	require.FileExists(t, userFile)
}

// TestRunRemovesEmptyRoot prunes the install dir when nothing remains.
func TestRunRemovesEmptyRoot(t *testing.T) {
	t.Parallel()

	installDir, _ := installFixture(t, map[string]string{
		"DentalClinic.exe": "machine-code",
	}, nil)

	require.NoError(t, Run(context.Background(), &Options{InstallDir: installDir}))
	require.NoDirExists(t, installDir)
}

// TestRunKeepsReceipt leaves the receipt in place when asked.
func TestRunKeepsReceipt(t *testing.T) {
	t.Parallel()

	installDir, _ := installFixture(t, map[string]string{
		"DentalClinic.exe": "machine-code",
	}, nil)

	require.NoError(t, Run(context.Background(), &Options{
		InstallDir:  installDir,
		KeepReceipt: true,
	}))

	require.FileExists(t, receipt.DefaultPath(installDir))
	require.NoFileExists(t, filepath.Join(installDir, "DentalClinic.exe"))
}

// TestRunWithoutReceipt reports a friendly error for unmanaged directories.
func TestRunWithoutReceipt(t *testing.T) {
	t.Parallel()

	err := Run(context.Background(), &Options{InstallDir: t.TempDir()})
	require.ErrorIs(t, err, errNotInstalled)
}

// TestRunToleratesMissingEntries succeeds when recorded files are already
// gone.
func TestRunToleratesMissingEntries(t *testing.T) {
	t.Parallel()

	installDir, _ := installFixture(t, map[string]string{
		"DentalClinic.exe":   "machine-code",
		"database/db.sqlite": "rows",
	}, nil)

	require.NoError(t, os.Remove(filepath.Join(installDir, "database", "db.sqlite")))

	require.NoError(t, Run(context.Background(), &Options{InstallDir: installDir}))
	require.NoFileExists(t, receipt.DefaultPath(installDir))
}

// TestRunToleratesRegistryKeysElsewhere ignores Windows-only registry keys
// on other platforms.
func TestRunToleratesRegistryKeysElsewhere(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	installDir, rec := installFixture(t, map[string]string{
		"DentalClinic.exe": "machine-code",
	}, nil)

	rec.RegistryKeys = []string{`Software\Microsoft\Windows\CurrentVersion\Uninstall\DentalClinic`}
	require.NoError(t, receipt.NewFileRepository(receipt.DefaultPath(installDir)).Save(ctx, rec))

	require.NoError(t, Run(ctx, &Options{InstallDir: installDir}))
}

// TestRunStopsOnStubbornFile keeps the receipt when a file cannot be
// removed, so the uninstall can be retried.
func TestRunStopsOnStubbornFile(t *testing.T) {
	t.Parallel()

	if os.Geteuid() == 0 {
		t.Skip("running as root, directory permissions are not enforced")
	}

	installDir, _ := installFixture(t, map[string]string{
		"DentalClinic.exe":  "machine-code",
		"locked/held.dat":   "pinned",
		"database/db.dat":   "rows",
		"database/wal.file": "journal",
	}, nil)

	// Making the parent read-only blocks unlinking its child.
	lockedDir := filepath.Join(installDir, "locked")
	require.NoError(t, os.Chmod(lockedDir, 0o555))

	t.Cleanup(func() { os.Chmod(lockedDir, 0o755) }) //nolint:errcheck // restore for TempDir cleanup

	err := Run(context.Background(), &Options{InstallDir: installDir})
	require.ErrorIs(t, err, errFilesRemaining)

	require.FileExists(t, receipt.DefaultPath(installDir))
	require.FileExists(t, filepath.Join(installDir, "locked", "held.dat"))
}

// TestProcessNames extracts executable basenames from the receipt.
func TestProcessNames(t *testing.T) {
	t.Parallel()

	u := &uninstaller{
		rec: &receipt.Receipt{
			Files: []receipt.InstalledFile{
				{RelPath: "DentalClinic.exe"},
				{RelPath: "database/db.sqlite"},
				{RelPath: "bin/Helper.EXE"},
			},
		},
	}

	names := u.processNames()
	require.Len(t, names, 2)
	require.Contains(t, names, "DentalClinic.exe")
	require.Contains(t, names, "Helper.EXE")
}
