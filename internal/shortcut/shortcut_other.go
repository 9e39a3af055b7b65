//go:build !windows

package shortcut

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// linkExtension is the shortcut filename suffix on freedesktop systems.
const linkExtension = ".desktop"

// entryPermissions marks .desktop files executable so shells trust them.
const entryPermissions = 0o755

// Dirs returns the per-user desktop and applications directories.
func Dirs() (string, string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("resolve home directory: %w", err)
	}

	desktop := os.Getenv("XDG_DESKTOP_DIR")
	if desktop == "" {
		desktop = filepath.Join(home, "Desktop")
	}

	startMenu := filepath.Join(home, ".local", "share", "applications")

	return desktop, startMenu, nil
}

// createPlatform writes a freedesktop .desktop entry.
func createPlatform(path string, spec Spec) error {
	var b strings.Builder

	b.WriteString("[Desktop Entry]\n")
	b.WriteString("Type=Application\n")
	fmt.Fprintf(&b, "Name=%s\n", spec.Name)
	fmt.Fprintf(&b, "Exec=%s\n", execValue(spec.TargetPath))

	if spec.WorkingDir != "" {
		fmt.Fprintf(&b, "Path=%s\n", spec.WorkingDir)
	}

	if spec.IconPath != "" {
		fmt.Fprintf(&b, "Icon=%s\n", spec.IconPath)
	}

	if spec.Description != "" {
		fmt.Fprintf(&b, "Comment=%s\n", spec.Description)
	}

	b.WriteString("Terminal=false\n")

	return os.WriteFile(path, []byte(b.String()), entryPermissions)
}

// execValue quotes the target when it contains whitespace.
func execValue(target string) string {
	if strings.ContainsAny(target, " \t") {
		return strconv.Quote(target)
	}

	return target
}
