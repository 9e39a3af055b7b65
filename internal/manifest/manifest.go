package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/setupforge/setupforge/internal/bundle"
)

const (
	// DefaultFilename is the manifest filename looked up when none is given.
	DefaultFilename = "setup.yaml"

	// SetupExtension is the extension appended to the output base filename.
	SetupExtension = ".exe"

	// DefaultOutputDir is where the compiler writes setup executables.
	DefaultOutputDir = "output"

	// DefaultFilePermissions is used when persisting manifests.
	DefaultFilePermissions = 0o600

	// DefaultDirPermissions is used for directories created during staging
	// and installation.
	DefaultDirPermissions = 0o755

	// Shortcut placements accepted in the shortcuts section.
	PlacementDesktop   = "desktop"
	PlacementStartMenu = "startmenu"
)

// Compression levels accepted in the output section.
const (
	CompressionNone = "none"
	CompressionFast = "fast"
	CompressionBest = "best"
)

var (
	errManifestIsNotSet   = errors.New("manifest is not set")
	errAppNameRequired    = errors.New("app name must be provided")
	errAppVersionRequired = errors.New("app version must be provided")
	errNoFileRules        = errors.New("at least one file rule must be provided")
	errSourceRequired     = errors.New("file rule source must be provided")
	errDestNotRelative    = errors.New("file rule dest must stay under the install dir")
	errShortcutIncomplete = errors.New("shortcut requires name, target and placement")
	errBadPlacement       = errors.New("shortcut placement must be desktop or startmenu")
	errUnknownTask        = errors.New("shortcut references an unknown task")
	errTaskNameRequired   = errors.New("task name must be provided")
	errTaskNameInvalid    = errors.New("task name must not contain whitespace")
	errDuplicateTask      = errors.New("duplicate task name")
	errBadCompression     = errors.New("compression must be none, fast or best")
)

// Manifest is the root document of a setup definition.
type Manifest struct {
	// App holds the application identity shown to the user.
	App AppInfo `yaml:"app"`
	// Install holds destination settings.
	Install InstallInfo `yaml:"install"`
	// Files lists the staging rules that populate the install tree.
	Files []FileRule `yaml:"files"`
	// Shortcuts lists shortcut entries created by the installer.
	Shortcuts []Shortcut `yaml:"shortcuts,omitempty"`
	// Tasks lists user-selectable install-time options.
	Tasks []Task `yaml:"tasks,omitempty"`
	// Output controls where and how the setup executable is written.
	Output OutputInfo `yaml:"output"`
	// Bundle optionally describes the upstream packaging invocation.
	Bundle *bundle.Spec `yaml:"bundle,omitempty"`
}

// AppInfo identifies the packaged application.
type AppInfo struct {
	// Name is the product name, e.g. "DentalClinic".
	Name string `yaml:"name"`
	// Version is the released application version.
	Version string `yaml:"version"`
	// Publisher is shown in uninstall entries.
	Publisher string `yaml:"publisher,omitempty"`
	// URL is the product or support page.
	URL string `yaml:"url,omitempty"`
}

// InstallInfo holds destination settings for the installer runtime.
type InstallInfo struct {
	// Dir is the install directory, may use placeholders such as {pf}.
	Dir string `yaml:"dir,omitempty"`
	// IconFile is an .ico used for shortcuts and the uninstall entry,
	// resolved relative to the source root at compile time.
	IconFile string `yaml:"icon_file,omitempty"`
}

// FileRule copies files from a source location into the install tree.
type FileRule struct {
	// Source is a file, directory or glob, resolved against the source root.
	Source string `yaml:"source"`
	// Dest is the destination inside the install tree, default "{app}".
	Dest string `yaml:"dest,omitempty"`
	// Recursive includes subdirectories of directory sources. Defaults to
	// true; set recursive: false to copy only the top level.
	Recursive *bool `yaml:"recursive,omitempty"`
	// IgnoreVersion forces overwriting even when content is identical.
	IgnoreVersion bool `yaml:"ignore_version,omitempty"`
	// Excludes are glob patterns matched against base names.
	Excludes []string `yaml:"excludes,omitempty"`
}

// Shortcut describes one shortcut created at install time.
type Shortcut struct {
	// Name is the display name of the shortcut.
	Name string `yaml:"name"`
	// Target is the executable path under the install dir, e.g. "{app}/DentalClinic.exe".
	Target string `yaml:"target"`
	// Placement is "startmenu" or "desktop".
	Placement string `yaml:"placement"`
	// WorkingDir defaults to "{app}".
	WorkingDir string `yaml:"working_dir,omitempty"`
	// IconFile optionally overrides the install icon for this shortcut.
	IconFile string `yaml:"icon_file,omitempty"`
	// Task gates creation on a task selection; empty means unconditional.
	Task string `yaml:"task,omitempty"`
}

// Task is a user-selectable install-time option.
type Task struct {
	// Name identifies the task, e.g. "desktopicon".
	Name string `yaml:"name"`
	// Description is shown when prompting the user.
	Description string `yaml:"description,omitempty"`
	// UncheckedByDefault leaves the task off unless explicitly selected.
	UncheckedByDefault bool `yaml:"unchecked_by_default,omitempty"`
}

// OutputInfo controls the produced setup executable.
type OutputInfo struct {
	// Dir is the output directory, default "output".
	Dir string `yaml:"dir,omitempty"`
	// BaseFilename is the output name without extension,
	// default "<app name>-setup".
	BaseFilename string `yaml:"base_filename,omitempty"`
	// Compression is the payload compression level: none, fast or best.
	Compression string `yaml:"compression,omitempty"`
}

// Filename returns the setup executable filename: the configured base
// filename suffixed with the standard setup extension.
func (o OutputInfo) Filename() string {
	return o.BaseFilename + SetupExtension
}

// Load reads a manifest from the provided path and validates it.
func Load(path string) (*Manifest, error) {
	if path == "" {
		path = DefaultFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(contents, &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}

	if err := Validate(&m); err != nil {
		return nil, err
	}

	return &m, nil
}

// Save validates the manifest and writes it to the provided path.
func Save(path string, m *Manifest) error {
	if m == nil {
		return errManifestIsNotSet
	}

	if path == "" {
		path = DefaultFilename
	}

	if err := Validate(m); err != nil {
		return err
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	return nil
}

// Validate checks required fields, enumerations and cross-references,
// and fills every documented default. It is idempotent.
func Validate(m *Manifest) error {
	if m == nil {
		return errManifestIsNotSet
	}

	if strings.TrimSpace(m.App.Name) == "" {
		return errAppNameRequired
	}

	if strings.TrimSpace(m.App.Version) == "" {
		return errAppVersionRequired
	}

	if m.Install.Dir == "" {
		m.Install.Dir = "{pf}/" + m.App.Name
	}

	if err := validateFiles(m); err != nil {
		return err
	}

	if err := validateTasks(m); err != nil {
		return err
	}

	if err := validateShortcuts(m); err != nil {
		return err
	}

	if err := validateOutput(m); err != nil {
		return err
	}

	if m.Bundle != nil {
		if err := m.Bundle.Validate(); err != nil {
			return fmt.Errorf("bundle: %w", err)
		}
	}

	return nil
}

// validateFiles checks file rules and normalizes destinations.
func validateFiles(m *Manifest) error {
	if len(m.Files) == 0 {
		return errNoFileRules
	}

	for i := range m.Files {
		rule := &m.Files[i]
		if strings.TrimSpace(rule.Source) == "" {
			return fmt.Errorf("file rule %d: %w", i, errSourceRequired)
		}

		if rule.Dest == "" {
			rule.Dest = "{app}"
		}

		if _, err := destSubdir(rule.Dest); err != nil {
			return fmt.Errorf("file rule %d: %w", i, err)
		}
	}

	return nil
}

// validateTasks checks task names and uniqueness.
func validateTasks(m *Manifest) error {
	seen := make(map[string]struct{}, len(m.Tasks))

	for i := range m.Tasks {
		name := m.Tasks[i].Name
		if name == "" {
			return fmt.Errorf("task %d: %w", i, errTaskNameRequired)
		}

		if strings.ContainsAny(name, " \t\n") {
			return fmt.Errorf("task %q: %w", name, errTaskNameInvalid)
		}

		if _, ok := seen[name]; ok {
			return fmt.Errorf("task %q: %w", name, errDuplicateTask)
		}

		seen[name] = struct{}{}
	}

	return nil
}

// validateShortcuts checks shortcut fields and task references.
func validateShortcuts(m *Manifest) error {
	for i := range m.Shortcuts {
		sc := &m.Shortcuts[i]
		if sc.Name == "" || sc.Target == "" || sc.Placement == "" {
			return fmt.Errorf("shortcut %d: %w", i, errShortcutIncomplete)
		}

		if sc.Placement != PlacementDesktop && sc.Placement != PlacementStartMenu {
			return fmt.Errorf("shortcut %q: %w", sc.Name, errBadPlacement)
		}

		if sc.WorkingDir == "" {
			sc.WorkingDir = "{app}"
		}

		if sc.Task != "" && m.TaskByName(sc.Task) == nil {
			return fmt.Errorf("shortcut %q, task %q: %w", sc.Name, sc.Task, errUnknownTask)
		}
	}

	return nil
}

// validateOutput fills output defaults and checks the compression level.
func validateOutput(m *Manifest) error {
	if m.Output.Dir == "" {
		m.Output.Dir = DefaultOutputDir
	}

	if m.Output.BaseFilename == "" {
		m.Output.BaseFilename = sanitizeBaseFilename(m.App.Name) + "-setup"
	}

	if m.Output.Compression == "" {
		m.Output.Compression = CompressionBest
	}

	switch m.Output.Compression {
	case CompressionNone, CompressionFast, CompressionBest:
		return nil
	default:
		return fmt.Errorf("%q: %w", m.Output.Compression, errBadCompression)
	}
}

// TaskByName returns the task with the given name, or nil.
func (m *Manifest) TaskByName(name string) *Task {
	for i := range m.Tasks {
		if m.Tasks[i].Name == name {
			return &m.Tasks[i]
		}
	}

	return nil
}

// DefaultTasks returns the names of tasks selected when the user makes no
// explicit choice, i.e. every task not marked unchecked_by_default.
func (m *Manifest) DefaultTasks() []string {
	var names []string

	for i := range m.Tasks {
		if !m.Tasks[i].UncheckedByDefault {
			names = append(names, m.Tasks[i].Name)
		}
	}

	return names
}

// DestSubdir returns the rule destination as a clean relative path under
// the install root, "" meaning the root itself.
func (r FileRule) DestSubdir() string {
	sub, _ := destSubdir(r.Dest)
	return sub
}

// RecursiveEnabled reports whether directory sources are walked recursively.
func (r FileRule) RecursiveEnabled() bool {
	return r.Recursive == nil || *r.Recursive
}

// destSubdir normalizes a dest value such as "{app}", "{app}/data" or
// "data" into a relative subpath, rejecting absolute paths and parent
// escapes.
func destSubdir(dest string) (string, error) {
	s := strings.TrimSpace(dest)
	s = strings.TrimPrefix(s, "{app}")
	s = strings.Trim(s, "/")

	if s == "" {
		return "", nil
	}

	clean := filepath.ToSlash(filepath.Clean(s))
	if filepath.IsAbs(s) || clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(clean, ":") {
		return "", fmt.Errorf("%q: %w", dest, errDestNotRelative)
	}

	return clean, nil
}

// sanitizeBaseFilename turns an application name into a filesystem-friendly
// base filename.
func sanitizeBaseFilename(name string) string {
	mapper := func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '-'
		}
	}

	return strings.Map(mapper, strings.TrimSpace(name))
}
