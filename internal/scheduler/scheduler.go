// Package scheduler executes preprocessing jobs through a bounded worker
// pool, recording every state transition in the durable ledger so an
// interrupted batch resumes where it left off.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sarops/s1compose/internal/cmn/backoff"
	"github.com/sarops/s1compose/internal/cmn/fileutil"
	"github.com/sarops/s1compose/internal/cmn/logger"
	"github.com/sarops/s1compose/internal/cmn/logger/tag"
	"github.com/sarops/s1compose/internal/isolate"
	"github.com/sarops/s1compose/internal/ledger"
	"github.com/sarops/s1compose/internal/runner"
	"github.com/sarops/s1compose/internal/scene"
)

var (
	// ErrNoJobs is returned by Run when nothing was submitted.
	ErrNoJobs = errors.New("scheduler: no jobs submitted")

	// ErrBatchFailed is returned by Run when at least one job ended in a
	// non-success terminal state.
	ErrBatchFailed = errors.New("scheduler: batch finished with failed jobs")
)

const (
	// DefaultToolRetries caps re-runs after a tool failure.
	DefaultToolRetries = 2

	// DefaultTimeoutRetries caps re-runs after a wall-clock timeout. A
	// second timeout marks the job timed_out for good.
	DefaultTimeoutRetries = 1

	defaultRetryInterval = 30 * time.Second
)

// JobRunner abstracts the tool invocation so tests can substitute one.
type JobRunner interface {
	Run(ctx context.Context, req runner.Request) (*runner.Result, error)
}

var _ JobRunner = (*runner.Runner)(nil)

// Job is one unit of batch work: a single scene pushed through the
// processing graph.
type Job struct {
	ID     string
	Input  string
	Output string
	Graph  string

	// Timeout is the per-attempt wall-clock limit. Zero disables it.
	Timeout time.Duration
}

// Scheduler owns a batch of jobs and drives them to terminal states.
type Scheduler struct {
	led     *ledger.Ledger
	run     JobRunner
	workers int

	scratchDir     string
	logDir         string
	retryPolicy    backoff.RetryPolicy
	timeoutRetries int
	stopOnError    bool

	mu    sync.Mutex
	queue []Job
	seen  map[string]struct{}
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithStopOnError makes the first non-success terminal job cancel the
// rest of the batch. The default is to continue.
func WithStopOnError() SchedulerOption {
	return func(s *Scheduler) { s.stopOnError = true }
}

// WithRetryPolicy overrides the tool-failure retry policy.
func WithRetryPolicy(p backoff.RetryPolicy) SchedulerOption {
	return func(s *Scheduler) { s.retryPolicy = p }
}

// NewRetryPolicy builds the tool-failure retry policy for a configured
// policy name. Anything other than "exponential" selects the constant
// policy.
func NewRetryPolicy(name string) backoff.RetryPolicy {
	if name == "exponential" {
		return &backoff.ExponentialBackoffPolicy{
			InitialInterval: defaultRetryInterval,
			BackoffFactor:   2.0,
			MaxInterval:     5 * time.Minute,
			MaxRetries:      DefaultToolRetries,
		}
	}
	return &backoff.ConstantBackoffPolicy{
		Interval:   defaultRetryInterval,
		MaxRetries: DefaultToolRetries,
	}
}

// WithTimeoutRetries overrides how many times a timed-out job is re-run.
func WithTimeoutRetries(n int) SchedulerOption {
	return func(s *Scheduler) { s.timeoutRetries = n }
}

// New creates a Scheduler. workers is the pool size, normally
// Budget.Workers from the resource planner. scratchDir and logDir
// receive per-job scratch trees and log files.
func New(led *ledger.Ledger, run JobRunner, workers int, scratchDir, logDir string, opts ...SchedulerOption) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	s := &Scheduler{
		led:            led,
		run:            run,
		workers:        workers,
		scratchDir:     scratchDir,
		logDir:         logDir,
		retryPolicy:    NewRetryPolicy(""),
		timeoutRetries: DefaultTimeoutRetries,
		seen:           make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit adds jobs to the batch. Jobs whose ledger entry is already a
// success are not queued again, and jobs with a missing, empty or
// corrupt input are marked skipped immediately. Duplicate ids within a
// batch are dropped.
func (s *Scheduler) Submit(ctx context.Context, jobs ...Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range jobs {
		if job.ID == "" {
			return fmt.Errorf("job with empty id (input %q)", job.Input)
		}
		if _, dup := s.seen[job.ID]; dup {
			logger.Debug(ctx, "Dropping duplicate job", tag.Job(job.ID))
			continue
		}
		s.seen[job.ID] = struct{}{}

		prev, _ := s.led.Get(job.ID)
		if prev.Status.Success() {
			logger.Info(ctx, "Skipping job already completed in a previous run",
				tag.Job(job.ID), tag.Status(string(prev.Status)))
			continue
		}

		if reason := s.inputDefect(ctx, job); reason != "" {
			logger.Warn(ctx, "Skipping job with unusable input",
				tag.Job(job.ID), tag.File(job.Input), tag.Reason(reason))
			if err := s.led.Update(job.ID, ledger.Entry{
				Status: ledger.StatusSkipped,
				Error:  reason,
			}); err != nil {
				return err
			}
			continue
		}

		// A re-submitted failed job keeps its accumulated attempts and the
		// previous failure's diagnostics until the next attempt runs.
		if err := s.led.Update(job.ID, ledger.Entry{
			Status:   ledger.StatusPending,
			Attempts: prev.Attempts,
			Error:    prev.Error,
			LogPath:  prev.LogPath,
		}); err != nil {
			return err
		}
		s.queue = append(s.queue, job)
	}
	return nil
}

// inputDefect reports why a job's input cannot be processed, or "".
func (s *Scheduler) inputDefect(ctx context.Context, job Job) string {
	if !fileutil.FileExists(job.Input) {
		return "input does not exist"
	}
	if !fileutil.IsDir(job.Input) && !fileutil.IsFileNonEmpty(job.Input) {
		return "input is empty"
	}
	if strings.EqualFold(filepath.Ext(job.Input), ".zip") {
		if err := scene.CheckArchive(ctx, job.Input); err != nil {
			return fmt.Sprintf("input archive is corrupt: %v", err)
		}
	}
	return ""
}

// Run drains the queue through the worker pool and blocks until every
// queued job reached a terminal state or ctx was canceled. It returns
// ErrBatchFailed when any job failed or timed out.
func (s *Scheduler) Run(ctx context.Context) (*Summary, error) {
	s.mu.Lock()
	queue := s.queue
	s.queue = nil
	submitted := make([]string, 0, len(s.seen))
	for id := range s.seen {
		submitted = append(submitted, id)
	}
	s.mu.Unlock()

	if len(submitted) == 0 {
		return nil, ErrNoJobs
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if s.stopOnError {
		runCtx, cancel = context.WithCancel(ctx)
		defer cancel()
	}

	logger.Info(ctx, "Starting batch",
		tag.Count(len(queue)), tag.Workers(s.workers))
	started := time.Now()

	feed := make(chan Job)
	var wg sync.WaitGroup
	for range s.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range feed {
				status := s.runJob(runCtx, job)
				if s.stopOnError && !status.Success() {
					cancel()
				}
			}
		}()
	}

feedLoop:
	for _, job := range queue {
		select {
		case feed <- job:
		case <-runCtx.Done():
			break feedLoop
		}
	}
	close(feed)
	wg.Wait()

	// Jobs never handed to a worker stay pending for the next run.
	sum := newSummary(s.led, submitted, time.Since(started))
	logger.Info(ctx, "Batch finished",
		tag.Count(sum.Total()), tag.Duration(sum.Elapsed))

	if sum.Failed > 0 || sum.TimedOut > 0 {
		return sum, ErrBatchFailed
	}
	return sum, nil
}

// runJob drives one job through its attempts and returns the terminal
// status written to the ledger.
func (s *Scheduler) runJob(ctx context.Context, job Job) ledger.Status {
	ctx = logger.WithValues(ctx, tag.Job(job.ID))

	prev, _ := s.led.Get(job.ID)
	attempts := prev.Attempts
	logPath := filepath.Join(s.logDir, fileutil.SafeName(job.ID)+".log")

	retrier := backoff.NewRetrier(s.retryPolicy)
	timeouts := 0

	for {
		if ctx.Err() != nil {
			s.record(ctx, job, ledger.Entry{
				Status:   ledger.StatusFailed,
				Attempts: attempts,
				Error:    "batch canceled",
				LogPath:  logPath,
			})
			return ledger.StatusFailed
		}

		attempts++
		s.record(ctx, job, ledger.Entry{
			Status:   ledger.StatusRunning,
			Attempts: attempts,
			LogPath:  logPath,
		})
		logger.Info(ctx, "Running job", tag.Attempt(attempts), tag.File(job.Input))

		res, err := s.attempt(ctx, job, logPath)
		if err == nil {
			s.record(ctx, job, ledger.Entry{
				Status:   ledger.StatusCompleted,
				Attempts: attempts,
				LogPath:  logPath,
				Output:   job.Output,
			})
			logger.Info(ctx, "Job completed", tag.Attempt(attempts), tag.File(job.Output))
			return ledger.StatusCompleted
		}

		status := ledger.StatusFailed
		if res != nil && res.Status == ledger.StatusTimedOut {
			status = ledger.StatusTimedOut
		}
		errText := errorExcerpt(err, res)

		if status == ledger.StatusTimedOut {
			if timeouts >= s.timeoutRetries {
				s.record(ctx, job, ledger.Entry{
					Status:   status,
					Attempts: attempts,
					Error:    errText,
					LogPath:  logPath,
				})
				logger.Error(ctx, "Job timed out, giving up", tag.Attempt(attempts))
				return status
			}
			timeouts++
			logger.Warn(ctx, "Job timed out, retrying", tag.Attempt(attempts))
			continue
		}

		interval, retryErr := retrier.Next(err)
		if retryErr != nil {
			s.record(ctx, job, ledger.Entry{
				Status:   status,
				Attempts: attempts,
				Error:    errText,
				LogPath:  logPath,
			})
			logger.Error(ctx, "Job failed, retries exhausted",
				tag.Attempt(attempts), tag.Error(err))
			return status
		}

		logger.Warn(ctx, "Job failed, will retry",
			tag.Attempt(attempts), tag.Duration(interval), tag.Error(err))
		if err := backoff.Wait(ctx, interval); err != nil {
			continue // loop exits via ctx.Err() check
		}
	}
}

// attempt runs the tool once inside a fresh scratch tree.
func (s *Scheduler) attempt(ctx context.Context, job Job, logPath string) (*runner.Result, error) {
	scratch, err := isolate.Acquire(s.scratchDir, job.ID)
	if err != nil {
		return nil, fmt.Errorf("acquire scratch: %w", err)
	}
	defer func() {
		if err := scratch.Release(); err != nil {
			logger.Warn(ctx, "Failed to release scratch", tag.Dir(scratch.Dir), tag.Error(err))
		}
	}()

	return s.run.Run(ctx, runner.Request{
		JobID:     job.ID,
		AttemptID: scratch.AttemptID,
		Graph:     job.Graph,
		Input:     job.Input,
		Output:    job.Output,
		Dir:       scratch.Dir,
		Env:       scratch.Env(),
		LogPath:   logPath,
		Timeout:   job.Timeout,
	})
}

func (s *Scheduler) record(ctx context.Context, job Job, e ledger.Entry) {
	if err := s.led.Update(job.ID, e); err != nil {
		logger.Error(ctx, "Failed to persist ledger entry",
			tag.Status(string(e.Status)), tag.Error(err))
	}
}

// errorExcerpt combines the failure cause with the stderr tail so the
// ledger entry is diagnosable without opening the log file.
func errorExcerpt(err error, res *runner.Result) string {
	text := err.Error()
	if res != nil && res.StderrTail != "" {
		text += "; stderr: " + fileutil.TruncString(strings.TrimSpace(res.StderrTail), 512)
	}
	return text
}
