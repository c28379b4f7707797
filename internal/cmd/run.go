package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/sarops/s1compose/internal/cmn/logger"
	"github.com/sarops/s1compose/internal/cmn/logger/tag"
	"github.com/sarops/s1compose/internal/config"
	"github.com/sarops/s1compose/internal/pipeline"
	"github.com/sarops/s1compose/internal/scheduler"
)

// CmdRun executes the full pipeline of a manifest end to end.
func CmdRun() *cobra.Command {
	return &cobra.Command{
		Use:   "run <manifest.yaml>",
		Short: "Run preprocessing, compositing and stacking end to end",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := NewContext(cmd)
			if err != nil {
				return err
			}
			m, err := config.LoadManifest(args[0])
			if err != nil {
				return err
			}
			pl := ctx.Pipeline()

			sum, err := pl.Preprocess(ctx, m)
			if sum != nil {
				ctx.Printf("%s\n", sum.Render())
			}
			if err != nil && !errors.Is(err, scheduler.ErrBatchFailed) {
				return err
			}
			if err != nil {
				// Failed scenes shrink the composite sets; the batch still
				// continues into aggregation with what completed.
				logger.Warn(ctx, "Continuing with incomplete batch",
					tag.Count(sum.Failed+sum.TimedOut))
			}

			stat := m.Statistic
			if stat == "" {
				stat = ctx.Config.Stack.Statistic
			}
			res, err := pl.Compose(ctx, m.Year,
				pipeline.PreprocessedDir(m.OutputDir), m.OutputDir, stat)
			if err != nil {
				return err
			}
			ctx.Printf("%s\n", renderCompleteness(res))

			out, provenance, err := pl.Stack(ctx, m.Year, m.OutputDir)
			if err != nil {
				return err
			}
			ctx.Printf("wrote %s (%d bands)\n", out, len(provenance))
			return nil
		},
	}
}
