package shortcut

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/setupforge/setupforge/internal/logger"
)

// Placement selects where a shortcut lands.
type Placement string

// Supported placements.
const (
	Desktop   Placement = "desktop"
	StartMenu Placement = "startmenu"
)

// dirPermissions is used for shortcut base directories created on demand.
const dirPermissions = 0o755

// Spec describes one shortcut to create.
type Spec struct {
	// Name is the shortcut's display name, also its filename stem.
	Name string
	// TargetPath is the absolute path the shortcut launches.
	TargetPath string
	// WorkingDir is the directory the target starts in.
	WorkingDir string
	// IconPath optionally points at an icon file.
	IconPath string
	// Description is shown as the shortcut's tooltip or comment.
	Description string
	// Placement picks the base directory.
	Placement Placement
}

var (
	errNameRequired   = errors.New("shortcut name must be provided")
	errTargetRequired = errors.New("shortcut target must be provided")
	errBadPlacement   = errors.New("shortcut placement must be desktop or startmenu")
)

// Create writes the shortcut described by spec and returns its absolute path.
func Create(ctx context.Context, spec Spec) (string, error) {
	if err := validateSpec(spec); err != nil {
		return "", err
	}

	base, err := baseDir(spec.Placement)
	if err != nil {
		return "", err
	}

	if err = os.MkdirAll(base, dirPermissions); err != nil {
		return "", fmt.Errorf("create shortcut directory: %w", err)
	}

	path := filepath.Join(base, spec.Name+linkExtension)

	logger.DebugKV(ctx, "Creating shortcut", "path", path, "target", spec.TargetPath)

	if err = createPlatform(path, spec); err != nil {
		return "", fmt.Errorf("create shortcut %s: %w", spec.Name, err)
	}

	return path, nil
}

// Remove deletes a shortcut file. Missing files are not an error.
func Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove shortcut %s: %w", path, err)
	}

	return nil
}

// validateSpec checks the required Spec fields.
func validateSpec(spec Spec) error {
	if spec.Name == "" {
		return errNameRequired
	}

	if spec.TargetPath == "" {
		return errTargetRequired
	}

	if spec.Placement != Desktop && spec.Placement != StartMenu {
		return errBadPlacement
	}

	return nil
}

// baseDir resolves the directory a placement maps to.
func baseDir(p Placement) (string, error) {
	desktop, startMenu, err := Dirs()
	if err != nil {
		return "", err
	}

	if p == Desktop {
		return desktop, nil
	}

	return startMenu, nil
}
