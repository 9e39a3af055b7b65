package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/setupforge/setupforge/internal/service/inspect"
)

var (
	// inspectYAML switches the report to YAML for scripting.
	inspectYAML bool

	// inspectCmd prints the trailer contents of a setup executable.
	inspectCmd = &cobra.Command{
		Use:   "inspect <setup-file>",
		Short: "Print the contents of a setup executable.",
		Long: `Opens the trailer of a previously built setup executable, verifies the
payload digest, and prints the embedded application metadata together with
the payload file listing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &inspect.Options{
				Path: args[0],
				YAML: inspectYAML,
				Out:  cmd.OutOrStdout(),
			}

			return inspect.Run(ctx, options)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(inspectCmd)

	// Setup command flags with consistent naming and descriptions.
	inspectCmd.Flags().BoolVar(&inspectYAML, "yaml", false, "print the report as YAML")
}
