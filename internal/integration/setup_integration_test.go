package integration

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/setupforge/setupforge/internal/manifest"
	"github.com/setupforge/setupforge/internal/receipt"
	"github.com/setupforge/setupforge/internal/service/compiler"
	"github.com/setupforge/setupforge/internal/service/inspect"
	"github.com/setupforge/setupforge/internal/service/installer"
	"github.com/setupforge/setupforge/internal/service/uninstaller"
)

// buildSetup compiles a setup executable for a small DentalClinic tree and
// returns its path. The app name keeps concurrent tests from sharing the
// installer's per-app marker file.
func buildSetup(t *testing.T, appName string) string {
	t.Helper()

	dir := t.TempDir()

	// Lay out the application tree the manifest's file rule points at.
	appRoot := filepath.Join(dir, "app")
	require.NoError(t, os.MkdirAll(filepath.Join(appRoot, "database"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(appRoot, "DentalClinic.exe"), []byte("machine-code"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(appRoot, "database", "db.sqlite"), []byte("rows"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(appRoot, "settings.ini"), []byte("theme=light\n"), 0o644))

	// Write the manifest describing the installation.
	man := &manifest.Manifest{
		App: manifest.AppInfo{
			Name:      appName,
			Version:   "1.2.0",
			Publisher: "Example Dental Software",
			URL:       "https://example.test/dentalclinic",
		},
		Files: []manifest.FileRule{
			{Source: "app", Dest: "{app}"},
		},
		Shortcuts: []manifest.Shortcut{
			{Name: appName, Target: "{app}/DentalClinic.exe", Placement: manifest.PlacementStartMenu},
			{Name: appName + " Desktop", Target: "{app}/DentalClinic.exe", Placement: manifest.PlacementDesktop, Task: "desktopicon"},
		},
		Tasks: []manifest.Task{
			{Name: "desktopicon", Description: "Create a desktop icon", UncheckedByDefault: true},
		},
		Output: manifest.OutputInfo{
			BaseFilename: "DentalClinicSetup",
			Compression:  manifest.CompressionFast,
		},
	}

	manifestPath := filepath.Join(dir, "setup.yaml")
	require.NoError(t, manifest.Save(manifestPath, man))

	// Any binary serves as the stub; the trailer is what matters here.
	stubPath := filepath.Join(dir, "stub.bin")
	require.NoError(t, os.WriteFile(stubPath, []byte("FAKE-STUB-BINARY"), 0o755))

	outDir := filepath.Join(dir, "out")

	err := compiler.Run(context.Background(), &compiler.Options{
		ManifestPath: manifestPath,
		StubPath:     stubPath,
		OutputDir:    outDir,
	})
	require.NoError(t, err)

	// The output name is the configured base filename plus the setup
	// extension.
	setupPath := filepath.Join(outDir, "DentalClinicSetup.exe")
	require.FileExists(t, setupPath)

	return setupPath
}

// TestPipeline_BuildInstallUninstall drives the full lifecycle: compile a
// setup executable, install it twice (without and with the desktop task),
// then uninstall and verify only recorded paths were removed.
//
//nolint:funlen // Integration test requires comprehensive setup and verification.
func TestPipeline_BuildInstallUninstall(t *testing.T) {
	// Shortcut directories resolve under HOME, so isolate it.
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_DESKTOP_DIR", "")

	ctx := context.Background()
	setupPath := buildSetup(t, "ClinicPipeline")
	installDir := filepath.Join(t.TempDir(), "clinic")

	desktopEntry := filepath.Join(home, "Desktop", "ClinicPipeline Desktop.desktop")
	startMenuEntry := filepath.Join(home, ".local", "share", "applications", "ClinicPipeline.desktop")

	// Silent install: the desktop task is unchecked by default.
	require.NoError(t, installer.Run(ctx, &installer.Options{
		SelfPath:  setupPath,
		TargetDir: installDir,
		Silent:    true,
	}))

	require.FileExists(t, filepath.Join(installDir, "DentalClinic.exe"))
	require.FileExists(t, filepath.Join(installDir, "database", "db.sqlite"))
	require.FileExists(t, filepath.Join(installDir, "settings.ini"))
	require.FileExists(t, startMenuEntry)
	require.NoFileExists(t, desktopEntry)

	// Re-run with the task selected: the desktop entry appears.
	require.NoError(t, installer.Run(ctx, &installer.Options{
		SelfPath:  setupPath,
		TargetDir: installDir,
		Silent:    true,
		Tasks:     []string{"desktopicon"},
	}))

	require.FileExists(t, desktopEntry)

	// Receipt records the install inventory.
	rec, err := receipt.NewFileRepository(receipt.DefaultPath(installDir)).Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "ClinicPipeline", rec.AppName)
	require.Len(t, rec.Files, 3)
	require.Len(t, rec.Shortcuts, 2)

	// Files the user adds afterwards must survive the uninstall.
	userFile := filepath.Join(installDir, "backups", "export.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(userFile), 0o755))
	require.NoError(t, os.WriteFile(userFile, []byte("id,name\n"), 0o644))

	require.NoError(t, uninstaller.Run(ctx, &uninstaller.Options{InstallDir: installDir}))

	require.NoFileExists(t, filepath.Join(installDir, "DentalClinic.exe"))
	require.NoDirExists(t, filepath.Join(installDir, "database"))
	require.NoFileExists(t, startMenuEntry)
	require.NoFileExists(t, desktopEntry)
	require.NoFileExists(t, receipt.DefaultPath(installDir))
	require.FileExists(t, userFile)
}

// TestPipeline_InspectBuiltSetup verifies a compiled setup executable is
// readable by the inspect service.
func TestPipeline_InspectBuiltSetup(t *testing.T) {
	t.Parallel()

	setupPath := buildSetup(t, "ClinicInspection")

	var out bytes.Buffer

	require.NoError(t, inspect.Run(context.Background(), &inspect.Options{
		Path: setupPath,
		Out:  &out,
	}))

	text := out.String()
	require.Contains(t, text, "ClinicInspection 1.2.0")
	require.Contains(t, text, "VERIFIED")
	require.Contains(t, text, "DentalClinic.exe")
	require.Contains(t, text, "database/db.sqlite")
}
