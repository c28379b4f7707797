package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarops/s1compose/internal/config"
	"github.com/sarops/s1compose/internal/scheduler"
)

// CmdPreprocess runs the preprocessing batch of a manifest.
func CmdPreprocess() *cobra.Command {
	return &cobra.Command{
		Use:   "preprocess <manifest.yaml>",
		Short: "Run the preprocessing batch for a manifest",
		Long: `Push every scene archive of the batch through the external SAR
processing tool, bounded by the planned resource budget. Jobs already
completed in a previous run are skipped, so an interrupted batch can be
re-run as is.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := NewContext(cmd)
			if err != nil {
				return err
			}
			m, err := config.LoadManifest(args[0])
			if err != nil {
				return err
			}

			sum, err := ctx.Pipeline().Preprocess(ctx, m)
			if sum != nil {
				ctx.Printf("%s\n", sum.Render())
			}
			if errors.Is(err, scheduler.ErrBatchFailed) {
				return fmt.Errorf("%d jobs did not complete", sum.Failed+sum.TimedOut)
			}
			return err
		},
	}
}
