package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/setupforge/setupforge/internal/service/compiler"
)

var (
	// stubPath is the installer stub binary the payload is appended to.
	stubPath string
	// outputDir overrides the manifest's output directory.
	outputDir string
	// sourceRoot resolves relative file-rule sources.
	sourceRoot string
	// keepStaging leaves the staging directory behind for debugging.
	keepStaging bool

	// buildCmd compiles a manifest into a setup executable.
	buildCmd = &cobra.Command{
		Use:   "build [manifest]",
		Short: "Compile a setup executable from a manifest.",
		Long: `Reads the setup manifest (setup.yaml unless a path is given), stages the
application files it describes, archives them, and appends the payload to the
installer stub, producing a standalone setup executable.

The manifest's output section controls the destination directory and the
setup filename; both can be overridden with flags.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use manifest path argument if provided, otherwise the default.
			var manifestPath string
			if len(args) > 0 {
				manifestPath = args[0]
			}

			options := &compiler.Options{
				ManifestPath: manifestPath,
				StubPath:     stubPath,
				SourceRoot:   sourceRoot,
				OutputDir:    outputDir,
				KeepStaging:  keepStaging,
			}

			return compiler.Run(ctx, options)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(buildCmd)

	// Setup command flags with consistent naming and descriptions.
	buildCmd.Flags().StringVarP(&stubPath, "stub", "s", "", "path to the installer stub binary")
	buildCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "override the manifest's output directory")
	buildCmd.Flags().StringVar(&sourceRoot, "source-root", "", "base directory for relative file-rule sources")
	buildCmd.Flags().BoolVar(&keepStaging, "keep-staging", false, "keep the staging directory for debugging")
}
