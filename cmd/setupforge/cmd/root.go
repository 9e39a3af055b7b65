package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/setupforge/setupforge/internal/logger"
	"github.com/setupforge/setupforge/internal/version"
)

var (
	// logLevel controls logger verbosity for every subcommand.
	logLevel string

	// rootCmd is the umbrella command for the installer toolchain.
	rootCmd = &cobra.Command{
		Use:   "setupforge",
		Short: "Build and inspect self-extracting setup executables.",
		Long: `setupforge compiles a declarative YAML manifest into a standalone setup
executable: the installer stub binary with the application payload and its
metadata appended as a trailer.

It also composes the packaging-tool invocation that produces the application
tree (bundle), converts PNG images to ICO icons (icon), and prints the
contents of a previously built setup executable (inspect).`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if level, ok := logger.ParseLevel(logLevel); ok {
				logger.SetLevel(level)
			}
		},
	}
)

// Execute runs the setupforge CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}
