package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/setupforge/setupforge/internal/bundle"
	"github.com/setupforge/setupforge/internal/manifest"
)

var (
	// bundleTool overrides the packaging tool executable.
	bundleTool string
	// bundleDryRun prints the invocation instead of executing it.
	bundleDryRun bool

	// bundleCmd runs the external packaging tool that produces the
	// application tree.
	bundleCmd = &cobra.Command{
		Use:   "bundle [manifest]",
		Short: "Run the packaging tool that bundles the application.",
		Long: `Composes and executes the packaging-tool invocation described by the
manifest's bundle section (or a standalone bundle YAML file).

With --dry-run the composed command line is printed without running anything,
so it can be reviewed or copied into other tooling.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use manifest path argument if provided, otherwise the default.
			path := manifest.DefaultFilename
			if len(args) > 0 {
				path = args[0]
			}

			spec, err := bundle.Load(path)
			if err != nil {
				return err
			}

			if bundleTool != "" {
				spec.Tool = bundleTool
			}

			if bundleDryRun {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), spec.CommandLine())

				return err
			}

			_, err = bundle.Run(ctx, spec)

			return err
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(bundleCmd)

	// Setup command flags with consistent naming and descriptions.
	bundleCmd.Flags().StringVar(&bundleTool, "tool", "", "override the packaging tool executable")
	bundleCmd.Flags().BoolVar(&bundleDryRun, "dry-run", false, "print the invocation without running it")
}
