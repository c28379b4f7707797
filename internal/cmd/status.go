package cmd

import (
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sarops/s1compose/internal/config"
	"github.com/sarops/s1compose/internal/ledger"
	"github.com/sarops/s1compose/internal/pipeline"
)

// CmdStatus prints the ledger state of a batch.
func CmdStatus() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <manifest.yaml>",
		Short: "Show the job states of a batch",
		Long: `Read the batch ledger and print every job's state. Works while the
batch is running; the ledger lock is not taken.`,
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

			entries, err := ledger.ReadOnly(pipeline.LedgerPath(m.OutputDir))
			if err != nil {
				return err
			}

			ids := make([]string, 0, len(entries))
			for id := range entries {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			t := table.NewWriter()
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Job", "Status", "Attempts", "Updated", "Error"})
			for _, id := range ids {
				e := entries[id]
				t.AppendRow(table.Row{
					id, string(e.Status), e.Attempts,
					e.UpdatedAt.Format("2006-01-02 15:04:05"),
					e.Error,
				})
			}
			ctx.Printf("%s\n", t.Render())
			return nil
		},
	}
	return cmd
}
