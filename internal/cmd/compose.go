package cmd

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sarops/s1compose/internal/config"
	"github.com/sarops/s1compose/internal/pipeline"
)

// CmdCompose composites preprocessed scenes into per-period rasters.
func CmdCompose() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compose <manifest.yaml>",
		Short: "Composite preprocessed scenes into period rasters",
		Long: `Group the preprocessed scene rasters of the batch year into fixed
calendar periods and reduce each period to one composite raster using
the configured pixel statistic. Multi-track periods are blended by the
external mosaicking tool.`,
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

			inputDir, _ := cmd.Flags().GetString("input")
			if inputDir == "" {
				inputDir = pipeline.PreprocessedDir(m.OutputDir)
			}
			stat := m.Statistic
			if stat == "" {
				stat = ctx.Config.Stack.Statistic
			}

			res, err := ctx.Pipeline().Compose(ctx, m.Year, inputDir, m.OutputDir, stat)
			if err != nil {
				return err
			}
			ctx.Printf("%s\n", renderCompleteness(res))
			return nil
		},
	}
	cmd.Flags().String("input", "", "preprocessed scene directory (default: <outputDir>/preprocessed)")
	return cmd
}

// renderCompleteness formats the per-period coverage report.
func renderCompleteness(res *pipeline.ComposeResult) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Period", "Dates", "Scenes", "Expected", "Tracks", "State"})
	for _, cov := range res.Completeness.Periods {
		state := "composited"
		if _, ok := res.FailedPeriods[cov.Period]; ok {
			state = "failed"
		} else if cov.Scenes == 0 {
			state = "empty"
		}
		t.AppendRow(table.Row{
			cov.Period,
			cov.Start + ".." + cov.End,
			cov.Scenes,
			cov.Expected,
			strings.Join(cov.Tracks, " "),
			state,
		})
	}
	return t.Render()
}
