package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Vars carries the resolved directories substituted into manifest paths.
type Vars struct {
	// App is the resolved install directory, substituted for {app}.
	App string
	// ProgramFiles is substituted for {pf}.
	ProgramFiles string
	// Desktop is substituted for {desktop}.
	Desktop string
	// StartMenu is substituted for {startmenu}.
	StartMenu string
}

// ExpandPath substitutes the known placeholders in a manifest path and
// returns a platform-native, cleaned path. Unknown placeholders are left
// intact so validation can surface them.
func ExpandPath(s string, v Vars) string {
	replacer := strings.NewReplacer(
		"{app}", v.App,
		"{pf}", v.ProgramFiles,
		"{desktop}", v.Desktop,
		"{startmenu}", v.StartMenu,
	)

	return filepath.Clean(filepath.FromSlash(replacer.Replace(s)))
}

// ProgramFilesDir returns the platform directory substituted for {pf}:
// the ProgramFiles folder on Windows, a per-user opt directory elsewhere.
func ProgramFilesDir() (string, error) {
	if runtime.GOOS == "windows" {
		if pf := os.Getenv("ProgramFiles"); pf != "" {
			return pf, nil
		}

		return `C:\Program Files`, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return filepath.Join(home, ".local", "opt"), nil
}
