// Package runner launches external processing tools (SNAP gpt, Orfeo
// Toolbox) as isolated child processes with wall-clock timeouts,
// process-group signalling, and per-job log capture.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sarops/s1compose/internal/cmn/cmdutil"
	"github.com/sarops/s1compose/internal/cmn/fileutil"
	"github.com/sarops/s1compose/internal/cmn/logger"
	"github.com/sarops/s1compose/internal/cmn/logger/tag"
	"github.com/sarops/s1compose/internal/ledger"
	"github.com/sarops/s1compose/internal/planner"
)

var (
	// ErrMissingOutput indicates the tool exited successfully but the
	// declared output artifact is absent or empty.
	ErrMissingOutput = errors.New("runner: tool exited 0 but output artifact is missing or empty")

	// ErrNoTemplate indicates the runner was constructed without an
	// argument template.
	ErrNoTemplate = errors.New("runner: no argument template")
)

// DefaultGraceDuration is how long a child process gets between SIGTERM
// and SIGKILL when a timeout or cancellation fires.
const DefaultGraceDuration = 10 * time.Second

// DefaultGPTTemplate is the argument template for SNAP's gpt tool. The
// cache ceiling and thread count travel as separate flag and value
// tokens; -P and -J settings are single tokens by gpt's own convention.
var DefaultGPTTemplate = []string{
	"{graph}",
	"-PmyFilename={input}",
	"-PoutputFile={output}",
	"-c", "{cache}",
	"-q", "{threads}",
	"-J-Xmx{memory}m",
}

// Request describes one tool invocation.
type Request struct {
	JobID     string
	AttemptID string

	// Graph is the processing graph file passed to the tool.
	Graph string

	Input  string
	Output string

	// Dir is the working directory, typically the job's scratch dir.
	Dir string

	// Env holds extra environment variables appended to the inherited
	// environment, typically the scratch redirection set.
	Env []string

	// LogPath receives the tool's combined stdout and stderr. Appended,
	// so retries of the same job accumulate in one file.
	LogPath string

	// Timeout is the wall-clock limit. Zero means no limit.
	Timeout time.Duration
}

// Result captures the outcome of a single invocation.
type Result struct {
	Status     ledger.Status
	ExitCode   int
	Duration   time.Duration
	StderrTail string
	LogPath    string
}

// Runner invokes an external tool per job using an argument template.
// Placeholders {graph}, {input}, {output}, {cache}, {memory} and
// {threads} expand per request from the resource budget.
type Runner struct {
	executable string
	template   []string
	budget     planner.Budget
	grace      time.Duration
	tailLimit  int
}

// Option configures a Runner.
type Option func(*Runner)

// WithTemplate overrides the argument template.
func WithTemplate(tpl []string) Option {
	return func(r *Runner) { r.template = tpl }
}

// WithGrace overrides the SIGTERM to SIGKILL grace duration.
func WithGrace(d time.Duration) Option {
	return func(r *Runner) { r.grace = d }
}

// WithTailLimit overrides the retained stderr tail size in bytes.
func WithTailLimit(n int) Option {
	return func(r *Runner) { r.tailLimit = n }
}

// New creates a Runner for the given executable. The default template
// targets SNAP's gpt.
func New(executable string, budget planner.Budget, opts ...Option) *Runner {
	r := &Runner{
		executable: executable,
		template:   DefaultGPTTemplate,
		budget:     budget,
		grace:      DefaultGraceDuration,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run invokes the tool for one job attempt. The returned Result is
// non-nil whenever the process was started; err carries the failure
// cause for the ledger.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if len(r.template) == 0 {
		return nil, ErrNoTemplate
	}

	input, err := filepath.Abs(req.Input)
	if err != nil {
		return nil, fmt.Errorf("resolve input path: %w", err)
	}
	output, err := filepath.Abs(req.Output)
	if err != nil {
		return nil, fmt.Errorf("resolve output path: %w", err)
	}

	args := r.expand(req, input, output)
	return r.invoke(ctx, req, args, output)
}

// invoke starts the tool with the given argv, supervises its lifetime
// and classifies the outcome. The output path is verified non-empty on
// clean exit.
func (r *Runner) invoke(ctx context.Context, req Request, args []string, output string) (*Result, error) {
	logFile, err := fileutil.OpenOrCreateFile(req.LogPath)
	if err != nil {
		return nil, fmt.Errorf("open job log: %w", err)
	}
	defer func() {
		_ = logFile.Close()
	}()

	tail := NewTailWriter(logFile, r.tailLimit)

	runCtx := ctx
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	cmd := exec.Command(r.executable, args...) // nolint:gosec
	cmd.Dir = req.Dir
	cmd.Env = append(os.Environ(), req.Env...)
	cmd.Stdout = logFile
	cmd.Stderr = tail
	cmdutil.SetupCommand(cmd)

	ctx = logger.WithValues(ctx,
		tag.Job(req.JobID),
		tag.AttemptID(req.AttemptID),
	)
	logger.Info(ctx, "Starting tool process",
		tag.Command(r.executable),
		tag.Args(args),
		tag.Timeout(req.Timeout),
	)

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", r.executable, err)
	}
	logger.Debug(ctx, "Tool process started", tag.PID(cmd.Process.Pid))

	waitErr := r.wait(runCtx, cmd)
	elapsed := time.Since(started)

	res := &Result{
		ExitCode:   cmd.ProcessState.ExitCode(),
		Duration:   elapsed,
		StderrTail: tail.Tail(),
		LogPath:    req.LogPath,
	}

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.Status = ledger.StatusTimedOut
		logger.Warn(ctx, "Tool process timed out",
			tag.Duration(elapsed), tag.ExitCode(res.ExitCode))
		return res, fmt.Errorf("timed out after %s: %w", req.Timeout, context.DeadlineExceeded)

	case runCtx.Err() != nil:
		res.Status = ledger.StatusFailed
		return res, runCtx.Err()

	case waitErr != nil:
		res.Status = ledger.StatusFailed
		logger.Error(ctx, "Tool process failed",
			tag.ExitCode(res.ExitCode), tag.Duration(elapsed), tag.Error(waitErr))
		return res, fmt.Errorf("%s exited %d: %w", filepath.Base(r.executable), res.ExitCode, waitErr)
	}

	if !fileutil.IsFileNonEmpty(output) {
		res.Status = ledger.StatusFailed
		logger.Error(ctx, "Tool produced no output artifact", tag.File(output))
		return res, fmt.Errorf("%w: %s", ErrMissingOutput, output)
	}

	res.Status = ledger.StatusCompleted
	logger.Info(ctx, "Tool process completed",
		tag.Duration(elapsed), tag.File(output))
	return res, nil
}

// wait blocks for the process to exit. When ctx fires first, the whole
// process group gets SIGTERM, then SIGKILL after the grace duration.
func (r *Runner) wait(ctx context.Context, cmd *exec.Cmd) error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	_ = cmdutil.KillProcessGroup(cmd, syscall.SIGTERM)

	select {
	case err := <-done:
		return err
	case <-time.After(r.grace):
	}

	_ = cmdutil.KillProcessGroup(cmd, syscall.SIGKILL)
	return <-done
}

func (r *Runner) expand(req Request, input, output string) []string {
	repl := strings.NewReplacer(
		"{graph}", req.Graph,
		"{input}", input,
		"{output}", output,
		"{cache}", fmt.Sprintf("%dM", r.budget.CachePerWorkerMB),
		"{memory}", fmt.Sprintf("%d", r.budget.MemoryPerWorkerMB),
		"{threads}", fmt.Sprintf("%d", r.budget.ThreadsPerWorker),
	)
	args := make([]string, 0, len(r.template))
	for _, t := range r.template {
		args = append(args, repl.Replace(t))
	}
	return args
}
