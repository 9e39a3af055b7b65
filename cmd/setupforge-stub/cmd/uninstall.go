package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/setupforge/setupforge/internal/service/uninstaller"
)

var (
	// uninstallDir is the installation to remove (defaults to the
	// directory containing this executable).
	uninstallDir string
	// keepReceipt leaves the install receipt in place after removal.
	keepReceipt bool
	// uninstallForce kills running application processes instead of
	// aborting.
	uninstallForce bool

	// uninstallCmd removes a previous installation using its receipt.
	uninstallCmd = &cobra.Command{
		Use:   "uninstall",
		Short: "Remove a previously installed application.",
		Long: `Removes the installation recorded in the install receipt: its files,
shortcuts and uninstall registration. Files added to the install directory
after installing are left untouched, and directories are pruned only when
the removal leaves them empty.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &uninstaller.Options{
				InstallDir:  uninstallDir,
				KeepReceipt: keepReceipt,
				Force:       uninstallForce,
			}

			return uninstaller.Run(ctx, options)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(uninstallCmd)

	// Setup command flags with consistent naming and descriptions.
	uninstallCmd.Flags().StringVarP(&uninstallDir, "dir", "d", "", "installation directory to remove")
	uninstallCmd.Flags().BoolVar(&keepReceipt, "keep-receipt", false, "keep the install receipt after removal")
	uninstallCmd.Flags().BoolVar(&uninstallForce, "force", false, "terminate running application processes")
}
