// Package config reads and merges the application configuration from
// the config file, environment variables and defaults.
package config

import (
	"fmt"
	"time"

	"github.com/sarops/s1compose/internal/planner"
	"github.com/sarops/s1compose/internal/runner"
)

// Config is the fully resolved application configuration.
type Config struct {
	Global Global
	Paths  Paths
	Tools  Tools
	Batch  Batch
	Stack  Stack

	// Warnings collected while resolving the configuration, surfaced to
	// the user at startup.
	Warnings []string
}

// Global holds settings that apply to every command.
type Global struct {
	Debug      bool
	LogFormat  string
	Quiet      bool
	ConfigPath string
}

// Paths holds the filesystem layout.
type Paths struct {
	// DataDir receives ledgers and final products.
	DataDir string
	// LogDir receives per-job tool logs and the application log.
	LogDir string
	// ScratchDir hosts per-attempt scratch trees.
	ScratchDir string
}

// Tools locates the external processing executables.
type Tools struct {
	// GPT is the SNAP graph processing tool executable.
	GPT string
	// Mosaic is the Orfeo Toolbox mosaicking executable.
	Mosaic string
	// GraphDir holds the per-tier processing graph files.
	GraphDir string
}

// Batch controls the scheduler and resource planner.
type Batch struct {
	Tier            string
	MaxWorkers      int
	CeilingFraction float64
	JobTimeout      time.Duration
	StopOnError     bool

	// RetryPolicy selects the tool-failure backoff: constant or
	// exponential.
	RetryPolicy string

	// TimeoutRetries is how many times a timed-out job is re-run before
	// it is marked timed_out for good.
	TimeoutRetries int
}

// Stack controls temporal compositing and stack assembly.
type Stack struct {
	PeriodDays  int
	Statistic   string
	RevisitDays int
	FillGaps    bool
	ByTrack     bool

	// HarmoCost is the mosaic harmonization cost function, rmse or
	// musig.
	HarmoCost string
}

func (c *Config) validate() error {
	if _, err := planner.ParseTier(c.Batch.Tier); err != nil {
		return err
	}
	if c.Batch.CeilingFraction <= 0 || c.Batch.CeilingFraction > 1 {
		return fmt.Errorf("invalid memory ceiling fraction: %v", c.Batch.CeilingFraction)
	}
	switch c.Batch.RetryPolicy {
	case "", "constant", "exponential":
	default:
		return fmt.Errorf("invalid retry policy: %q", c.Batch.RetryPolicy)
	}
	if c.Batch.TimeoutRetries < 0 {
		return fmt.Errorf("invalid timeout retries: %d", c.Batch.TimeoutRetries)
	}
	if c.Stack.PeriodDays < 1 {
		return fmt.Errorf("invalid period length: %d days", c.Stack.PeriodDays)
	}
	if c.Stack.RevisitDays < 1 {
		return fmt.Errorf("invalid revisit interval: %d days", c.Stack.RevisitDays)
	}
	switch c.Stack.HarmoCost {
	case runner.HarmoCostRMSE, runner.HarmoCostMuSig:
	default:
		return fmt.Errorf("invalid harmonization cost: %q", c.Stack.HarmoCost)
	}
	return nil
}
