package cmd

import (
	"github.com/spf13/cobra"

	"github.com/sarops/s1compose/internal/config"
)

// CmdStack assembles the annual band stack.
func CmdStack() *cobra.Command {
	return &cobra.Command{
		Use:   "stack <manifest.yaml>",
		Short: "Assemble the annual band stack from period composites",
		Long: `Resample every period composite onto the reference grid and write
one multi-band raster where band index equals period index. Periods
without a composite are gap-filled from their temporal neighbors; band
descriptions carry each period's date range and provenance.`,
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

			out, provenance, err := ctx.Pipeline().Stack(ctx, m.Year, m.OutputDir)
			if err != nil {
				return err
			}
			ctx.Printf("wrote %s (%d bands)\n", out, len(provenance))
			return nil
		},
	}
}
