package manifest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestExpandPath verifies placeholder substitution and slash normalization.
func TestExpandPath(t *testing.T) {
	t.Parallel()

	vars := Vars{
		App:          filepath.Join("root", "apps", "DentalClinic"),
		ProgramFiles: filepath.Join("root", "pf"),
		Desktop:      filepath.Join("root", "desktop"),
		StartMenu:    filepath.Join("root", "menu"),
	}

	cases := map[string]string{
		"{app}":                    filepath.Join("root", "apps", "DentalClinic"),
		"{app}/DentalClinic.exe":   filepath.Join("root", "apps", "DentalClinic", "DentalClinic.exe"),
		"{pf}/DentalClinic":        filepath.Join("root", "pf", "DentalClinic"),
		"{desktop}/DentalClinic":   filepath.Join("root", "desktop", "DentalClinic"),
		"{startmenu}/DentalClinic": filepath.Join("root", "menu", "DentalClinic"),
		"plain/relative":           filepath.Join("plain", "relative"),
	}

	for in, want := range cases {
		require.Equal(t, want, ExpandPath(in, vars), in)
	}
}

// TestExpandPathCleansResult checks redundant separators collapse.
func TestExpandPathCleansResult(t *testing.T) {
	t.Parallel()

	vars := Vars{App: filepath.Join("root", "apps")}
	require.Equal(t, filepath.Join("root", "apps", "bin"), ExpandPath("{app}//bin/", vars))
}

// TestProgramFilesDir only asserts the result is usable as a base directory.
func TestProgramFilesDir(t *testing.T) {
	t.Parallel()

	dir, err := ProgramFilesDir()
	require.NoError(t, err)
	require.NotEmpty(t, dir)
	require.True(t, filepath.IsAbs(dir))
}
