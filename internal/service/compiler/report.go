package compiler

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/setupforge/setupforge/internal/manifest"
	"github.com/setupforge/setupforge/internal/sfx"
	"github.com/setupforge/setupforge/internal/stage"
)

// reportSuffix is appended to the setup executable's path for the report.
const reportSuffix = ".build.yaml"

// Report is the build summary written next to the setup executable.
type Report struct {
	// AppName and AppVersion mirror the manifest's app section.
	AppName    string `yaml:"app_name"`
	AppVersion string `yaml:"app_version"`
	// SetupFile is the produced executable's path.
	SetupFile string `yaml:"setup_file"`
	// CreatedAt is the build timestamp.
	CreatedAt time.Time `yaml:"created_at"`
	// ToolVersion is the compiler version.
	ToolVersion string `yaml:"tool_version"`
	// Compression names the payload's compression level.
	Compression string `yaml:"compression"`
	// PayloadSHA512 is the base64 digest of the payload bytes.
	PayloadSHA512 string `yaml:"payload_sha512"`
	// CompressedSize and InstalledSize are the payload and staged sizes.
	CompressedSize int64 `yaml:"compressed_size"`
	InstalledSize  int64 `yaml:"installed_size"`
	// FileCount is the number of staged files.
	FileCount int `yaml:"file_count"`
	// Duration is the wall-clock build time.
	Duration string `yaml:"duration"`
	// Files lists every staged file with its digest.
	Files []ReportFile `yaml:"files"`
}

// ReportFile is one staged file in the report.
type ReportFile struct {
	Path  string `yaml:"path"`
	Size  int64  `yaml:"size"`
	XXH64 string `yaml:"xxh64"`
}

// writeReport persists the build summary as YAML next to the output file.
func (c *compiler) writeReport(outPath string, meta *sfx.Meta, result *stage.Result) error {
	report := &Report{
		AppName:        c.man.App.Name,
		AppVersion:     c.man.App.Version,
		SetupFile:      outPath,
		CreatedAt:      meta.CreatedAt,
		ToolVersion:    meta.ToolVersion,
		Compression:    meta.Compression,
		PayloadSHA512:  meta.PayloadSHA512,
		CompressedSize: meta.PayloadSize,
		InstalledSize:  result.TotalBytes,
		FileCount:      len(result.Files),
		Duration:       time.Since(c.startedAt).Round(time.Millisecond).String(),
		Files:          make([]ReportFile, 0, len(result.Files)),
	}

	for _, f := range result.Files {
		report.Files = append(report.Files, ReportFile{
			Path:  f.RelPath,
			Size:  f.Size,
			XXH64: f.XXH64,
		})
	}

	contents, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode build report: %w", err)
	}

	reportPath := outPath + reportSuffix
	if err = os.WriteFile(reportPath, contents, manifest.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write build report: %w", err)
	}

	return nil
}
