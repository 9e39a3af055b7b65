package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/setupforge/setupforge/internal/icon"
)

var (
	// iconSizes lists the square pixel sizes embedded in the ICO.
	iconSizes []int

	// iconCmd converts a PNG image into a Windows ICO file.
	iconCmd = &cobra.Command{
		Use:   "icon <src.png> <dst.ico>",
		Short: "Convert a PNG image to a Windows ICO icon.",
		Long: `Converts a PNG image into an ICO file suitable for the manifest's icon
settings. The destination is written atomically and validated before it
replaces any existing file.`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return icon.ConvertPNG(ctx, args[0], args[1], iconSizes)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(iconCmd)

	// Setup command flags with consistent naming and descriptions.
	iconCmd.Flags().IntSliceVar(&iconSizes, "sizes", icon.DefaultSizes, "square pixel sizes to embed")
}
