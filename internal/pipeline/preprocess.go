package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sarops/s1compose/internal/cmn/logger"
	"github.com/sarops/s1compose/internal/cmn/logger/tag"
	"github.com/sarops/s1compose/internal/config"
	"github.com/sarops/s1compose/internal/isolate"
	"github.com/sarops/s1compose/internal/ledger"
	"github.com/sarops/s1compose/internal/planner"
	"github.com/sarops/s1compose/internal/runner"
	"github.com/sarops/s1compose/internal/scheduler"
)

// preprocessedDirName is the output subdirectory for per-scene rasters.
const preprocessedDirName = "preprocessed"

// staleScratchAge is how old an orphaned scratch tree must be before the
// pre-batch sweep removes it.
const staleScratchAge = 24 * time.Hour

// LedgerPath returns the batch ledger location inside an output dir.
func LedgerPath(outputDir string) string {
	return filepath.Join(outputDir, "ledger.json")
}

// PreprocessedDir returns where preprocessed scene rasters live inside
// an output dir.
func PreprocessedDir(outputDir string) string {
	return filepath.Join(outputDir, preprocessedDirName)
}

// Preprocess runs the batch described by the manifest: every scene
// archive through the external SAR tool, bounded by the planned resource
// budget, with the ledger making re-runs idempotent.
func (p *Pipeline) Preprocess(ctx context.Context, m *config.Manifest) (*scheduler.Summary, error) {
	tier, err := p.tier(m)
	if err != nil {
		return nil, err
	}

	budget, err := planner.Plan(ctx, planner.Input{
		Tier:            tier,
		CeilingFraction: p.cfg.Batch.CeilingFraction,
		MaxWorkers:      p.cfg.Batch.MaxWorkers,
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "Planned resource budget",
		tag.Tier(string(tier)),
		tag.Workers(budget.Workers),
		tag.MemoryMB(budget.MemoryPerWorkerMB),
	)

	jobs, err := p.buildJobs(m)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("no scene archives found in %s", m.InputDir)
	}

	for _, dir := range []string{PreprocessedDir(m.OutputDir), p.cfg.Paths.LogDir, p.cfg.Paths.ScratchDir} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	led, err := ledger.Open(LedgerPath(m.OutputDir))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = led.Close()
	}()

	// Scratch trees from a previous crash are swept before new ones are
	// created under the same base. The age floor spares trees owned by a
	// batch running concurrently against another output dir.
	if n := isolate.Sweep(ctx, p.cfg.Paths.ScratchDir, staleScratchAge); n > 0 {
		logger.Info(ctx, "Swept stale scratch directories", tag.Count(n))
	}

	run := runner.New(p.cfg.Tools.GPT, budget)
	schedOpts := []scheduler.SchedulerOption{
		scheduler.WithRetryPolicy(scheduler.NewRetryPolicy(p.cfg.Batch.RetryPolicy)),
		scheduler.WithTimeoutRetries(p.cfg.Batch.TimeoutRetries),
	}
	if p.cfg.Batch.StopOnError {
		schedOpts = append(schedOpts, scheduler.WithStopOnError())
	}
	sched := scheduler.New(led, run, budget.Workers,
		p.cfg.Paths.ScratchDir, p.cfg.Paths.LogDir, schedOpts...)

	if err := sched.Submit(ctx, jobs...); err != nil {
		return nil, err
	}
	return sched.Run(ctx)
}

// buildJobs expands the manifest into scheduler jobs, either from its
// explicit job list or by scanning the input directory for archives.
func (p *Pipeline) buildJobs(m *config.Manifest) ([]scheduler.Job, error) {
	tier, err := p.tier(m)
	if err != nil {
		return nil, err
	}
	graph := p.graphPath(m, tier)
	outDir := PreprocessedDir(m.OutputDir)

	var jobs []scheduler.Job
	add := func(id, input, output string) {
		if id == "" {
			id = JobID(input)
		}
		if output == "" {
			output = filepath.Join(outDir, id+".img")
		}
		jobs = append(jobs, scheduler.Job{
			ID:      id,
			Input:   input,
			Output:  output,
			Graph:   graph,
			Timeout: p.cfg.Batch.JobTimeout,
		})
	}

	if len(m.Jobs) > 0 {
		for _, j := range m.Jobs {
			add(j.ID, j.Input, j.Output)
		}
		return jobs, nil
	}

	entries, err := os.ReadDir(m.InputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan input directory: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if e.IsDir() && ext != ".safe" {
			continue
		}
		if !e.IsDir() && ext != ".zip" {
			continue
		}
		add("", filepath.Join(m.InputDir, name), "")
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs, nil
}
