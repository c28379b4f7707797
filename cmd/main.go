package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sarops/s1compose/internal/build"
	"github.com/sarops/s1compose/internal/cmd"
)

var rootCmd = &cobra.Command{
	Use:   build.Slug,
	Short: "Sentinel-1 batch preprocessing and annual compositing",
	Long: `s1compose drives Sentinel-1 GRD scene archives through an external
SAR processing tool in resource-budgeted parallel batches, composites
the results into fixed calendar periods, and assembles one multi-band
annual stack per year.
`,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default is $XDG_CONFIG_HOME/s1compose/config.yaml)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress user-facing output")

	rootCmd.AddCommand(cmd.CmdPreprocess())
	rootCmd.AddCommand(cmd.CmdCompose())
	rootCmd.AddCommand(cmd.CmdStack())
	rootCmd.AddCommand(cmd.CmdRun())
	rootCmd.AddCommand(cmd.CmdStatus())
	rootCmd.AddCommand(cmd.CmdVersion())
}
