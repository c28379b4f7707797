// Package cmd implements the command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sarops/s1compose/internal/cmn/logger"
	"github.com/sarops/s1compose/internal/config"
	"github.com/sarops/s1compose/internal/pipeline"
)

// Context holds the resolved configuration and logger for one command
// invocation.
type Context struct {
	context.Context

	Command *cobra.Command
	Config  *config.Config
	Quiet   bool
}

// NewContext loads the configuration, builds the logger context and
// surfaces any configuration warnings.
func NewContext(cmd *cobra.Command) (*Context, error) {
	ctx := cmd.Context()

	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		quiet = false
	}

	var loaderOpts []config.LoaderOption
	if cfgPath, _ := cmd.Flags().GetString("config"); cfgPath != "" {
		loaderOpts = append(loaderOpts, config.WithConfigFile(cfgPath))
	}

	cfg, err := config.Load(loaderOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var opts []logger.Option
	if cfg.Global.Debug || os.Getenv("DEBUG") != "" {
		opts = append(opts, logger.WithDebug())
	}
	if quiet || cfg.Global.Quiet {
		opts = append(opts, logger.WithQuiet())
	}
	if cfg.Global.LogFormat != "" {
		opts = append(opts, logger.WithFormat(cfg.Global.LogFormat))
	}
	ctx = logger.WithLogger(ctx, logger.NewLogger(opts...))

	for _, w := range cfg.Warnings {
		logger.Warn(ctx, w)
	}

	return &Context{
		Context: ctx,
		Command: cmd,
		Config:  cfg,
		Quiet:   quiet,
	}, nil
}

// Pipeline builds the stage orchestrator over the loaded configuration.
func (c *Context) Pipeline() *pipeline.Pipeline {
	return pipeline.New(c.Config)
}

// Printf writes user-facing output to the command's stdout unless quiet
// mode is on.
func (c *Context) Printf(format string, args ...any) {
	if c.Quiet {
		return
	}
	_, _ = fmt.Fprintf(c.Command.OutOrStdout(), format, args...)
}
