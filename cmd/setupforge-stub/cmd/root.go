package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/setupforge/setupforge/internal/logger"
	"github.com/setupforge/setupforge/internal/service/installer"
	"github.com/setupforge/setupforge/internal/service/uninstaller"
	"github.com/setupforge/setupforge/internal/version"
)

var (
	// logLevel controls logger verbosity.
	logLevel string
	// targetDir overrides the manifest's install directory.
	targetDir string
	// tasks names optional tasks to enable without prompting.
	tasks []string
	// silent disables prompts and applies default task selection.
	silent bool
	// force kills running application processes instead of aborting.
	force bool
	// noShortcuts skips all shortcut creation.
	noShortcuts bool

	// rootCmd installs the payload carried in this executable's trailer.
	// When the binary is launched under a name containing "uninstall" (the
	// self-copy the installer places in the install dir), it removes the
	// installation instead.
	rootCmd = &cobra.Command{
		Use:   "setupforge-stub",
		Short: "Install the application packaged in this executable.",
		Long: `Extracts the payload appended to this executable and installs it: files
are copied into the destination directory, shortcuts are created according
to the selected tasks, and an uninstall entry is registered.

Run without flags for an interactive install, or with --silent for an
unattended one. A copy of this binary named "uninstall" acts as the
uninstaller for the directory it resides in.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			if launchedAsUninstaller() {
				options := &uninstaller.Options{
					InstallDir: targetDir,
					Force:      force,
				}

				return uninstaller.Run(ctx, options)
			}

			options := &installer.Options{
				TargetDir:   targetDir,
				Tasks:       tasks,
				Silent:      silent,
				Force:       force,
				NoShortcuts: noShortcuts,
			}

			return installer.Run(ctx, options)
		},
	}
)

// launchedAsUninstaller reports whether the executable's basename marks it
// as the uninstaller self-copy.
func launchedAsUninstaller() bool {
	self, err := os.Executable()
	if err != nil {
		return false
	}

	return strings.Contains(strings.ToLower(filepath.Base(self)), "uninstall")
}

// Execute runs the installer stub CLI and exits with non-zero status on
// error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentPreRun = func(_ *cobra.Command, _ []string) {
		if level, ok := logger.ParseLevel(logLevel); ok {
			logger.SetLevel(level)
		}
	}

	rootCmd.Flags().StringVarP(&targetDir, "dir", "d", "", "install directory (overrides the manifest)")
	rootCmd.Flags().StringSliceVarP(&tasks, "tasks", "t", nil, "optional tasks to enable, e.g. desktopicon")
	rootCmd.Flags().BoolVar(&silent, "silent", false, "install without prompting")
	rootCmd.Flags().BoolVar(&force, "force", false, "terminate running application processes")
	rootCmd.Flags().BoolVar(&noShortcuts, "no-shortcuts", false, "skip shortcut creation")
}
