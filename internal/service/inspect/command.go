package inspect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/setupforge/setupforge/internal/logger"
	"github.com/setupforge/setupforge/internal/manifest"
	"github.com/setupforge/setupforge/internal/payload"
	"github.com/setupforge/setupforge/internal/sfx"
)

// Digest verification verdicts shown in the report.
const (
	digestVerified = "VERIFIED"
	digestCorrupt  = "CORRUPT"
)

// Options are inputs accepted by the inspect entry point.
type Options struct {
	// Path is the setup executable to inspect.
	Path string
	// YAML switches the report to YAML for scripting.
	YAML bool
	// Out receives the report (defaults to os.Stdout).
	Out io.Writer
}

var errNotSetupFile = errors.New("not a setup executable produced by this tool")

// Report is the inspection result, shaped for YAML output.
type Report struct {
	// App and Version identify the packaged application.
	App     string `yaml:"app"`
	Version string `yaml:"version"`
	// Publisher is the vendor from the embedded manifest.
	Publisher string `yaml:"publisher,omitempty"`
	// ToolVersion is the compiler that produced the package.
	ToolVersion string `yaml:"tool_version"`
	// CreatedAt is the package build time.
	CreatedAt time.Time `yaml:"created_at"`
	// Compression is the payload compression level.
	Compression string `yaml:"compression"`
	// Digest is the payload verification verdict.
	Digest string `yaml:"digest"`
	// PayloadSHA512 is the recorded payload digest.
	PayloadSHA512 string `yaml:"payload_sha512"`
	// StubSize and PayloadSize are section lengths in bytes.
	StubSize    int64 `yaml:"stub_size"`
	PayloadSize int64 `yaml:"payload_size"`
	// Files lists the payload entries.
	Files []ReportFile `yaml:"files"`
}

// ReportFile is one payload entry in the report.
type ReportFile struct {
	Path string `yaml:"path"`
	Size int64  `yaml:"size"`
	Dir  bool   `yaml:"dir,omitempty"`
}

// Run opens the setup executable, verifies it and writes the report.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "setupforge-inspect")

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	pkg, err := sfx.Open(opts.Path)
	if err != nil {
		switch {
		case errors.Is(err, sfx.ErrNoTrailer):
			return fmt.Errorf("%w: %s", errNotSetupFile, opts.Path)
		case errors.Is(err, sfx.ErrDigestMismatch):
			fmt.Fprintf(out, "payload digest: %s\n", digestCorrupt)

			return err
		default:
			return err
		}
	}

	defer pkg.Close()

	report, err := buildReport(pkg)
	if err != nil {
		return err
	}

	logger.DebugKV(ctx, "Package opened", "app", report.App, "files", len(report.Files))

	if opts.YAML {
		return renderYAML(out, report)
	}

	return renderText(out, report)
}

// buildReport decodes the embedded manifest and lists the payload.
func buildReport(pkg *sfx.Package) (*Report, error) {
	man := &manifest.Manifest{}
	if err := yaml.Unmarshal(pkg.Meta.Manifest, man); err != nil {
		return nil, fmt.Errorf("decode embedded manifest: %w", err)
	}

	entries, err := payload.List(pkg.Payload())
	if err != nil {
		return nil, err
	}

	report := &Report{
		App:           man.App.Name,
		Version:       man.App.Version,
		Publisher:     man.App.Publisher,
		ToolVersion:   pkg.Meta.ToolVersion,
		CreatedAt:     pkg.Meta.CreatedAt,
		Compression:   pkg.Meta.Compression,
		Digest:        digestVerified,
		PayloadSHA512: pkg.Meta.PayloadSHA512,
		StubSize:      pkg.StubSize,
		PayloadSize:   pkg.Meta.PayloadSize,
	}

	for _, entry := range entries {
		report.Files = append(report.Files, ReportFile{
			Path: entry.RelPath,
			Size: entry.Size,
			Dir:  entry.Mode.IsDir(),
		})
	}

	return report, nil
}

// renderYAML writes the report as a YAML document.
func renderYAML(w io.Writer, report *Report) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	_, err = w.Write(data)

	return err
}

// renderText writes the report as aligned key/value lines plus a listing.
func renderText(w io.Writer, report *Report) error {
	var b strings.Builder

	fmt.Fprintf(&b, "app:            %s %s\n", report.App, report.Version)

	if report.Publisher != "" {
		fmt.Fprintf(&b, "publisher:      %s\n", report.Publisher)
	}

	fmt.Fprintf(&b, "tool version:   %s\n", report.ToolVersion)
	fmt.Fprintf(&b, "created at:     %s\n", report.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "compression:    %s\n", report.Compression)
	fmt.Fprintf(&b, "stub size:      %d\n", report.StubSize)
	fmt.Fprintf(&b, "payload size:   %d\n", report.PayloadSize)
	fmt.Fprintf(&b, "payload digest: %s (%s)\n", report.Digest, report.PayloadSHA512)
	fmt.Fprintf(&b, "files:          %d\n", len(report.Files))

	for _, f := range report.Files {
		if f.Dir {
			fmt.Fprintf(&b, "  %10s  %s/\n", "-", f.Path)

			continue
		}

		fmt.Fprintf(&b, "  %10d  %s\n", f.Size, f.Path)
	}

	_, err := io.WriteString(w, b.String())

	return err
}
