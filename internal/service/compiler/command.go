package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"gopkg.in/yaml.v3"

	"github.com/setupforge/setupforge/internal/icon"
	"github.com/setupforge/setupforge/internal/logger"
	"github.com/setupforge/setupforge/internal/manifest"
	"github.com/setupforge/setupforge/internal/payload"
	"github.com/setupforge/setupforge/internal/sfx"
	"github.com/setupforge/setupforge/internal/stage"
	"github.com/setupforge/setupforge/internal/version"
)

// Options contains inputs for the build entry point.
type Options struct {
	// ManifestPath points at the setup manifest (defaults to setup.yaml).
	ManifestPath string
	// StubPath is the installer stub binary the payload is appended to.
	StubPath string
	// SourceRoot resolves relative rule sources (defaults to the manifest's
	// directory).
	SourceRoot string
	// OutputDir overrides the manifest's output directory when set.
	OutputDir string
	// KeepStaging leaves the staging directory behind for debugging.
	KeepStaging bool
}

var (
	errStubRequired = errors.New("installer stub path must be provided")
	errStubMissing  = errors.New("installer stub does not exist")
)

// compiler holds the mutable state of a single build execution.
// It is unexported—callers should use Run, which encapsulates setup and
// validation.
type compiler struct {
	// opts are the caller-provided inputs.
	opts *Options
	// man is the loaded and validated manifest.
	man *manifest.Manifest
	// sourceRoot is the base directory for relative rule sources.
	sourceRoot string
	// stagingDir is the temporary tree mirroring the final install layout.
	stagingDir string
	// startedAt feeds the build report's duration.
	startedAt time.Time
}

// Run executes the build workflow.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "setupforge-build")

	c, err := newCompiler(ctx, opts)
	if err != nil {
		return err
	}

	defer c.cleanup(ctx)

	if err = c.Run(ctx); err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	logger.Info(ctx, "Build completed successfully")

	return nil
}

// newCompiler loads the manifest and verifies the stub before any staging
// work happens.
func newCompiler(ctx context.Context, opts *Options) (*compiler, error) {
	if strings.TrimSpace(opts.StubPath) == "" {
		return nil, errStubRequired
	}

	if _, err := os.Stat(opts.StubPath); err != nil {
		return nil, fmt.Errorf("%w: %s", errStubMissing, opts.StubPath)
	}

	manifestPath := opts.ManifestPath
	if manifestPath == "" {
		manifestPath = manifest.DefaultFilename
	}

	man, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, err
	}

	if err = manifest.Validate(man); err != nil {
		return nil, err
	}

	if opts.OutputDir != "" {
		man.Output.Dir = opts.OutputDir
	}

	sourceRoot := opts.SourceRoot
	if sourceRoot == "" {
		sourceRoot = filepath.Dir(manifestPath)
	}

	logger.InfoKV(ctx, "Loaded manifest",
		"path", manifestPath,
		"app", man.App.Name,
		"version", man.App.Version)

	return &compiler{
		opts:       opts,
		man:        man,
		sourceRoot: sourceRoot,
		startedAt:  time.Now(),
	}, nil
}

// Run stages, archives and emits the setup executable.
func (c *compiler) Run(ctx context.Context) error {
	if err := c.verifyIcon(ctx); err != nil {
		return err
	}

	result, err := c.stageFiles(ctx)
	if err != nil {
		return err
	}

	payloadBuf, err := c.buildPayload(ctx)
	if err != nil {
		return err
	}

	outPath, meta, err := c.emitSetup(ctx, payloadBuf)
	if err != nil {
		return err
	}

	if err = c.writeReport(outPath, meta, result); err != nil {
		return err
	}

	c.printNextSteps(ctx, outPath)

	return nil
}

// verifyIcon sanity-checks the configured icon file, if any.
func (c *compiler) verifyIcon(ctx context.Context) error {
	if c.man.Install.IconFile == "" {
		return nil
	}

	iconPath := c.resolveSource(c.man.Install.IconFile)

	logger.DebugKV(ctx, "Verifying icon", "path", iconPath)

	if err := icon.Validate(iconPath); err != nil {
		return fmt.Errorf("icon check failed: %w", err)
	}

	return nil
}

// stageFiles materializes the manifest's rules into a temp staging root.
func (c *compiler) stageFiles(ctx context.Context) (*stage.Result, error) {
	stagingDir, err := os.MkdirTemp("", "setupforge-stage-*")
	if err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}

	c.stagingDir = stagingDir

	logger.InfoKV(ctx, "Staging files", "dir", stagingDir)

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("staging"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish())

	stager := stage.New(stagingDir)
	stager.OnFile(func(stage.StagedFile) {
		_ = bar.Add(1)
	})

	result, err := stager.Apply(ctx, c.resolvedRules())

	_ = bar.Finish()

	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Staged files",
		"count", len(result.Files),
		"total_bytes", result.TotalBytes)

	return result, nil
}

// buildPayload archives the staging root with the manifest's compression.
func (c *compiler) buildPayload(ctx context.Context) (*bytes.Buffer, error) {
	logger.InfoKV(ctx, "Building payload", "compression", c.man.Output.Compression)

	var buf bytes.Buffer

	entries, err := payload.Build(ctx, c.stagingDir, &buf, payload.Compression(c.man.Output.Compression))
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Payload ready",
		"entries", len(entries),
		"compressed_bytes", buf.Len())

	return &buf, nil
}

// emitSetup appends the trailer to the stub and renames the finished file
// into place, so a failed build never leaves a partial setup executable.
func (c *compiler) emitSetup(ctx context.Context, payloadBuf *bytes.Buffer) (string, *sfx.Meta, error) {
	manifestBytes, err := yaml.Marshal(c.man)
	if err != nil {
		return "", nil, fmt.Errorf("encode manifest: %w", err)
	}

	meta := &sfx.Meta{
		Manifest:    manifestBytes,
		Compression: c.man.Output.Compression,
		CreatedAt:   time.Now().UTC(),
		ToolVersion: version.Version,
	}

	if err = os.MkdirAll(c.man.Output.Dir, manifest.DefaultDirPermissions); err != nil {
		return "", nil, fmt.Errorf("create output directory: %w", err)
	}

	outPath := filepath.Join(c.man.Output.Dir, c.man.Output.Filename())
	partialPath := outPath + ".partial"

	if err = sfx.Attach(c.opts.StubPath, partialPath, meta, payloadBuf.Bytes()); err != nil {
		os.Remove(partialPath)

		return "", nil, err
	}

	if err = os.Rename(partialPath, outPath); err != nil {
		os.Remove(partialPath)

		return "", nil, fmt.Errorf("finalize setup executable: %w", err)
	}

	logger.InfoKV(ctx, "Setup executable written", "path", outPath)

	return outPath, meta, nil
}

// resolvedRules rebases relative rule sources onto the source root.
func (c *compiler) resolvedRules() []manifest.FileRule {
	rules := make([]manifest.FileRule, len(c.man.Files))

	for i, rule := range c.man.Files {
		rule.Source = c.resolveSource(rule.Source)
		rules[i] = rule
	}

	return rules
}

// resolveSource rebases one relative path onto the source root.
func (c *compiler) resolveSource(path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(c.sourceRoot, path)
}

// printNextSteps logs human-readable guidance for the produced file.
func (c *compiler) printNextSteps(ctx context.Context, outPath string) {
	var builder strings.Builder

	builder.WriteString("The setup executable is ready: ")
	builder.WriteString(outPath)
	builder.WriteString("\nDistribute it to users; running it installs ")
	builder.WriteString(c.man.App.Name)
	builder.WriteString(" ")
	builder.WriteString(c.man.App.Version)
	builder.WriteString(".\nTo review its contents, run: setupforge inspect ")
	builder.WriteString(outPath)

	logger.Info(ctx, builder.String())
}

// cleanup removes the staging directory unless the caller asked to keep it.
func (c *compiler) cleanup(ctx context.Context) {
	if c.stagingDir == "" {
		return
	}

	if c.opts.KeepStaging {
		logger.InfoKV(ctx, "Keeping staging directory", "dir", c.stagingDir)

		return
	}

	if err := os.RemoveAll(c.stagingDir); err != nil {
		logger.WarnKV(ctx, "Failed to remove staging directory",
			"dir", c.stagingDir,
			"error", err)
	}
}
