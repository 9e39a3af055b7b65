package bundle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/setupforge/setupforge/internal/logger"
)

const (
	// DefaultTool is the packaging tool executed when none is configured.
	DefaultTool = "pyinstaller"

	// DefaultDistDir is where the tool writes the bundled application.
	DefaultDistDir = "dist"
)

var (
	errNameRequired      = errors.New("bundle name must be provided")
	errEntryRequired     = errors.New("bundle entry script must be provided")
	errDataDirIncomplete = errors.New("bundle data entry requires src and dest")
	errMissingDataDir    = errors.New("bundle data directory does not exist")
	errNoDistOutput      = errors.New("packaging tool produced no dist directory")
)

// Spec describes one packaging invocation.
type Spec struct {
	// Tool is the packaging tool executable, default "pyinstaller".
	Tool string `yaml:"tool,omitempty"`
	// Name is the bundled application name.
	Name string `yaml:"name"`
	// Entry is the entry-point script handed to the tool.
	Entry string `yaml:"entry,omitempty"`
	// Windowed suppresses the console window of the bundled app.
	Windowed bool `yaml:"windowed,omitempty"`
	// OneFile produces a single executable instead of a directory.
	// The default is single-directory output.
	OneFile bool `yaml:"one_file,omitempty"`
	// Icon is the .ico applied to the bundled executable.
	Icon string `yaml:"icon,omitempty"`
	// Data lists directories bundled next to the executable.
	Data []DataDir `yaml:"data,omitempty"`
	// HiddenImports lists modules the tool cannot discover statically.
	HiddenImports []string `yaml:"hidden_imports,omitempty"`
	// Collect lists third-party libraries collected wholesale.
	Collect []string `yaml:"collect,omitempty"`
	// WorkDir is the tool's scratch directory (--workpath).
	WorkDir string `yaml:"work_dir,omitempty"`
	// DistDir is the tool's output directory, default "dist".
	DistDir string `yaml:"dist_dir,omitempty"`
	// Clean wipes the tool cache before building.
	Clean bool `yaml:"clean,omitempty"`
	// NoConfirm overwrites previous output without prompting. Enabled by
	// Validate unless the manifest sets no_confirm explicitly.
	NoConfirm *bool `yaml:"no_confirm,omitempty"`
}

// DataDir maps a source directory to its location inside the bundle.
type DataDir struct {
	// Src is the directory to bundle.
	Src string `yaml:"src"`
	// Dest is the relative location inside the bundle.
	Dest string `yaml:"dest"`
}

// Load reads a bundle spec from a YAML file: either the "bundle:" section
// of a setup manifest, or a standalone file with the spec at the top level.
func Load(path string) (*Spec, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read bundle spec: %w", err)
	}

	doc := struct {
		Bundle *Spec `yaml:"bundle"`
	}{}
	if err := yaml.Unmarshal(contents, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal bundle spec: %w", err)
	}

	spec := doc.Bundle
	if spec == nil {
		spec = &Spec{}
		if err := yaml.Unmarshal(contents, spec); err != nil {
			return nil, fmt.Errorf("unmarshal bundle spec: %w", err)
		}
	}

	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return spec, nil
}

// Validate checks required fields and fills defaults. It is idempotent and
// does not touch the filesystem; Run performs the existence pre-flight.
func (s *Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errNameRequired
	}

	if s.Tool == "" {
		s.Tool = DefaultTool
	}

	if s.DistDir == "" {
		s.DistDir = DefaultDistDir
	}

	if s.NoConfirm == nil {
		noConfirm := true
		s.NoConfirm = &noConfirm
	}

	for i, d := range s.Data {
		if d.Src == "" || d.Dest == "" {
			return fmt.Errorf("data entry %d: %w", i, errDataDirIncomplete)
		}
	}

	return nil
}

// Args returns the deterministic argument vector for the packaging tool.
// The result depends only on the spec and the host OS (the add-data
// separator is ";" on Windows and ":" elsewhere, per tool convention).
func (s *Spec) Args() []string {
	args := make([]string, 0, 16+2*len(s.Data)+len(s.HiddenImports)+len(s.Collect))

	if s.NoConfirm == nil || *s.NoConfirm {
		args = append(args, "--noconfirm")
	}

	if s.Clean {
		args = append(args, "--clean")
	}

	args = append(args, "--name", s.Name)

	if s.OneFile {
		args = append(args, "--onefile")
	} else {
		args = append(args, "--onedir")
	}

	if s.Windowed {
		args = append(args, "--windowed")
	} else {
		args = append(args, "--console")
	}

	if s.Icon != "" {
		args = append(args, "--icon", s.Icon)
	}

	if s.DistDir != "" {
		args = append(args, "--distpath", s.DistDir)
	}

	if s.WorkDir != "" {
		args = append(args, "--workpath", s.WorkDir)
	}

	sep := listSeparator()
	for _, d := range s.Data {
		args = append(args, "--add-data", d.Src+sep+d.Dest)
	}

	for _, imp := range s.HiddenImports {
		args = append(args, "--hidden-import", imp)
	}

	for _, lib := range s.Collect {
		args = append(args, "--collect-all", lib)
	}

	if s.Entry != "" {
		args = append(args, s.Entry)
	}

	return args
}

// CommandLine renders the invocation for display, quoting arguments that
// contain whitespace.
func (s *Spec) CommandLine() string {
	parts := append([]string{s.Tool}, s.Args()...)
	for i, p := range parts {
		if strings.ContainsAny(p, " \t") {
			parts[i] = strconv.Quote(p)
		}
	}

	return strings.Join(parts, " ")
}

// Run executes the packaging tool and returns the bundled application
// directory (or file, in one-file mode) under DistDir.
func Run(ctx context.Context, s *Spec) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}

	if s.Entry == "" {
		return "", errEntryRequired
	}

	for _, d := range s.Data {
		if _, err := os.Stat(d.Src); err != nil {
			return "", fmt.Errorf("%s: %w", d.Src, errMissingDataDir)
		}
	}

	logger.InfoKV(ctx, "Running packaging tool", "command", s.CommandLine())

	cmd := exec.CommandContext(ctx, s.Tool, s.Args()...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("run %s: %w", s.Tool, err)
	}

	dist := filepath.Join(s.DistDir, s.Name)
	if s.OneFile && runtime.GOOS == "windows" {
		dist += ".exe"
	}

	if _, err := os.Stat(dist); err != nil {
		return "", fmt.Errorf("%s: %w", dist, errNoDistOutput)
	}

	logger.InfoKV(ctx, "Packaging tool finished", "dist", dist)

	return dist, nil
}

// listSeparator returns the separator used inside --add-data values.
func listSeparator() string {
	if runtime.GOOS == "windows" {
		return ";"
	}

	return ":"
}
