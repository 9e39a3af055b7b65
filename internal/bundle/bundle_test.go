package bundle

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// clinicSpec returns a spec shaped like the DentalClinic packaging invocation.
func clinicSpec() *Spec {
	return &Spec{
		Name:     "DentalClinic",
		Entry:    "main.py",
		Windowed: true,
		Icon:     "icon.ico",
		Data: []DataDir{
			{Src: "database", Dest: "database"},
			{Src: "ui", Dest: "ui"},
		},
		HiddenImports: []string{"qtawesome"},
		Collect:       []string{"pyqtgraph", "matplotlib", "reportlab"},
	}
}

// TestValidateFillsDefaults checks tool, dist dir and no-confirm defaulting.
func TestValidateFillsDefaults(t *testing.T) {
	t.Parallel()

	s := clinicSpec()
	require.NoError(t, s.Validate())
	require.Equal(t, DefaultTool, s.Tool)
	require.Equal(t, DefaultDistDir, s.DistDir)
	require.NotNil(t, s.NoConfirm)
	require.True(t, *s.NoConfirm)

	// Validate is idempotent.
	require.NoError(t, s.Validate())
}

// TestValidateRejectsBadSpecs covers required fields.
func TestValidateRejectsBadSpecs(t *testing.T) {
	t.Parallel()

	s := &Spec{}
	require.ErrorIs(t, s.Validate(), errNameRequired)

	s = &Spec{Name: "App", Data: []DataDir{{Src: "x"}}}
	require.ErrorIs(t, s.Validate(), errDataDirIncomplete)
}

// TestLoadManifestSection reads the bundle section of a setup manifest.
func TestLoadManifestSection(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "setup.yaml")
	doc := `app:
  name: DentalClinic
  version: 1.2.0
bundle:
  name: DentalClinic
  entry: main.py
  windowed: true
  hidden_imports: [qtawesome]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "DentalClinic", s.Name)
	require.Equal(t, "main.py", s.Entry)
	require.True(t, s.Windowed)
	require.Equal(t, []string{"qtawesome"}, s.HiddenImports)
	require.Equal(t, DefaultTool, s.Tool)
}

// TestLoadStandaloneSpec reads a file with the spec at the top level.
func TestLoadStandaloneSpec(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bundle.yaml")
	doc := `name: DentalClinic
entry: main.py
collect: [pyqtgraph, matplotlib]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "DentalClinic", s.Name)
	require.Equal(t, []string{"pyqtgraph", "matplotlib"}, s.Collect)
}

// TestLoadRejectsSpeclessFiles needs a bundle name from somewhere.
func TestLoadRejectsSpeclessFiles(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "setup.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  name: DentalClinic\n"), 0o600))

	_, err := Load(path)
	require.ErrorIs(t, err, errNameRequired)
}

// TestArgsComposition checks the deterministic argument vector, including
// the OS-specific add-data separator.
func TestArgsComposition(t *testing.T) {
	t.Parallel()

	s := clinicSpec()
	require.NoError(t, s.Validate())

	sep := ":"
	if runtime.GOOS == "windows" {
		sep = ";"
	}

	want := []string{
		"--noconfirm",
		"--name", "DentalClinic",
		"--onedir",
		"--windowed",
		"--icon", "icon.ico",
		"--distpath", "dist",
		"--add-data", "database" + sep + "database",
		"--add-data", "ui" + sep + "ui",
		"--hidden-import", "qtawesome",
		"--collect-all", "pyqtgraph",
		"--collect-all", "matplotlib",
		"--collect-all", "reportlab",
		"main.py",
	}
	require.Equal(t, want, s.Args())

	// Same spec, same args.
	require.Equal(t, s.Args(), s.Args())
}

// TestArgsModeFlags checks the windowed/console and onedir/onefile pairs
// are mutually exclusive outputs of their fields.
func TestArgsModeFlags(t *testing.T) {
	t.Parallel()

	s := &Spec{Name: "App"}
	require.NoError(t, s.Validate())

	args := strings.Join(s.Args(), " ")
	require.Contains(t, args, "--console")
	require.Contains(t, args, "--onedir")
	require.NotContains(t, args, "--windowed")
	require.NotContains(t, args, "--onefile")

	s.Windowed = true
	s.OneFile = true
	args = strings.Join(s.Args(), " ")
	require.Contains(t, args, "--windowed")
	require.Contains(t, args, "--onefile")
	require.NotContains(t, args, "--console")
	require.NotContains(t, args, "--onedir")
}

// TestCommandLineQuoting quotes arguments containing whitespace.
func TestCommandLineQuoting(t *testing.T) {
	t.Parallel()

	s := &Spec{Name: "Dental Clinic"}
	require.NoError(t, s.Validate())
	require.Contains(t, s.CommandLine(), `"Dental Clinic"`)
	require.True(t, strings.HasPrefix(s.CommandLine(), DefaultTool+" "))
}

// TestRunRequiresEntry ensures execution demands an entry script.
func TestRunRequiresEntry(t *testing.T) {
	t.Parallel()

	s := &Spec{Name: "App"}

	_, err := Run(context.Background(), s)
	require.ErrorIs(t, err, errEntryRequired)
}

// TestRunChecksDataDirs ensures the pre-flight rejects missing data sources.
func TestRunChecksDataDirs(t *testing.T) {
	t.Parallel()

	s := &Spec{
		Name:  "App",
		Entry: "main.py",
		Data:  []DataDir{{Src: "does-not-exist-anywhere", Dest: "x"}},
	}

	_, err := Run(context.Background(), s)
	require.ErrorIs(t, err, errMissingDataDir)
}
