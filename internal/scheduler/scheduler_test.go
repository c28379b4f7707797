package scheduler

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarops/s1compose/internal/cmn/backoff"
	"github.com/sarops/s1compose/internal/ledger"
	"github.com/sarops/s1compose/internal/runner"
)

// fakeRunner substitutes the external tool and records concurrency.
type fakeRunner struct {
	mu         sync.Mutex
	running    int
	maxRunning int
	calls      map[string]int

	fn func(req runner.Request, call int) (*runner.Result, error)
}

func newFakeRunner(fn func(req runner.Request, call int) (*runner.Result, error)) *fakeRunner {
	return &fakeRunner{calls: make(map[string]int), fn: fn}
}

func (f *fakeRunner) Run(_ context.Context, req runner.Request) (*runner.Result, error) {
	f.mu.Lock()
	f.running++
	if f.running > f.maxRunning {
		f.maxRunning = f.running
	}
	f.calls[req.JobID]++
	call := f.calls[req.JobID]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.running--
		f.mu.Unlock()
	}()
	return f.fn(req, call)
}

func (f *fakeRunner) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func succeed(req runner.Request, _ int) (*runner.Result, error) {
	time.Sleep(10 * time.Millisecond)
	return &runner.Result{Status: ledger.StatusCompleted}, nil
}

// testEnv creates a ledger, input files and jobs in a temp layout.
func testEnv(t *testing.T, n int) (*ledger.Ledger, []Job, string) {
	t.Helper()
	dir := t.TempDir()

	led, err := ledger.Open(filepath.Join(dir, "ledger.json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = led.Close() })

	jobs := make([]Job, n)
	for i := range jobs {
		input := filepath.Join(dir, fmt.Sprintf("scene-%02d.zip", i))
		writeZip(t, input)
		jobs[i] = Job{
			ID:     fmt.Sprintf("scene-%02d", i),
			Input:  input,
			Output: filepath.Join(dir, fmt.Sprintf("scene-%02d.img", i)),
			Graph:  "graph.xml",
		}
	}
	return led, jobs, dir
}

// writeZip creates a well-formed zip at path so input checks pass.
func writeZip(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("manifest.safe")
	require.NoError(t, err)
	_, err = w.Write([]byte("ok"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func fastRetry(n int) SchedulerOption {
	return WithRetryPolicy(&backoff.ConstantBackoffPolicy{
		Interval:   time.Millisecond,
		MaxRetries: n,
	})
}

func TestSchedulerBoundedConcurrency(t *testing.T) {
	led, jobs, dir := testEnv(t, 8)
	fake := newFakeRunner(succeed)
	s := New(led, fake, 2, filepath.Join(dir, "scratch"), dir)

	require.NoError(t, s.Submit(context.Background(), jobs...))
	sum, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, sum.Completed)
	assert.LessOrEqual(t, fake.maxRunning, 2, "no more than Workers jobs in flight")
	assert.Equal(t, 8, fake.totalCalls())
}

func TestSchedulerIdempotentResume(t *testing.T) {
	led, jobs, dir := testEnv(t, 3)
	fake := newFakeRunner(succeed)

	s := New(led, fake, 2, filepath.Join(dir, "scratch"), dir)
	require.NoError(t, s.Submit(context.Background(), jobs...))
	_, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, fake.totalCalls())

	// The second run over the same ledger executes zero jobs.
	fake2 := newFakeRunner(succeed)
	s2 := New(led, fake2, 2, filepath.Join(dir, "scratch"), dir)
	require.NoError(t, s2.Submit(context.Background(), jobs...))
	sum, err := s2.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Completed)
	assert.Equal(t, 0, fake2.totalCalls())
}

func TestSchedulerResubmitKeepsHistory(t *testing.T) {
	led, jobs, dir := testEnv(t, 1)
	require.NoError(t, led.Update(jobs[0].ID, ledger.Entry{
		Status:   ledger.StatusFailed,
		Attempts: 2,
		Error:    "gpt exited 1",
		LogPath:  "old.log",
	}))

	fake := newFakeRunner(succeed)
	s := New(led, fake, 1, filepath.Join(dir, "scratch"), dir)
	require.NoError(t, s.Submit(context.Background(), jobs...))

	// Resubmission keeps the previous failure's attempt count and
	// diagnostics until the next attempt runs.
	e, ok := led.Get(jobs[0].ID)
	require.True(t, ok)
	assert.Equal(t, ledger.StatusPending, e.Status)
	assert.Equal(t, 2, e.Attempts)
	assert.Equal(t, "gpt exited 1", e.Error)
	assert.Equal(t, "old.log", e.LogPath)

	sum, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Completed)

	e, _ = led.Get(jobs[0].ID)
	assert.Equal(t, ledger.StatusCompleted, e.Status)
	assert.Equal(t, 3, e.Attempts)
}

func TestSchedulerSkipsUnusableInput(t *testing.T) {
	led, jobs, dir := testEnv(t, 1)
	fake := newFakeRunner(succeed)
	s := New(led, fake, 1, filepath.Join(dir, "scratch"), dir)

	missing := Job{ID: "missing", Input: filepath.Join(dir, "nope.zip"), Output: "x.img"}
	empty := Job{ID: "empty", Input: filepath.Join(dir, "empty.zip"), Output: "y.img"}
	require.NoError(t, os.WriteFile(empty.Input, nil, 0600))

	require.NoError(t, s.Submit(context.Background(), jobs[0], missing, empty))
	sum, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Completed)
	assert.Equal(t, 2, sum.Skipped)

	e, ok := led.Get("missing")
	require.True(t, ok)
	assert.Equal(t, ledger.StatusSkipped, e.Status)
	assert.Contains(t, e.Error, "does not exist")
}

func TestSchedulerRetriesToolFailure(t *testing.T) {
	led, jobs, dir := testEnv(t, 1)
	fake := newFakeRunner(func(req runner.Request, call int) (*runner.Result, error) {
		if call < 3 {
			return &runner.Result{Status: ledger.StatusFailed, ExitCode: 1}, errors.New("gpt exited 1")
		}
		return &runner.Result{Status: ledger.StatusCompleted}, nil
	})
	s := New(led, fake, 1, filepath.Join(dir, "scratch"), dir, fastRetry(2))

	require.NoError(t, s.Submit(context.Background(), jobs...))
	sum, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Completed)
	e, _ := led.Get(jobs[0].ID)
	assert.Equal(t, 3, e.Attempts)
}

func TestSchedulerRetriesExhausted(t *testing.T) {
	led, jobs, dir := testEnv(t, 1)
	fake := newFakeRunner(func(runner.Request, int) (*runner.Result, error) {
		return &runner.Result{Status: ledger.StatusFailed, ExitCode: 1, StderrTail: "java heap space"},
			errors.New("gpt exited 1")
	})
	s := New(led, fake, 1, filepath.Join(dir, "scratch"), dir, fastRetry(2))

	require.NoError(t, s.Submit(context.Background(), jobs...))
	sum, err := s.Run(context.Background())
	require.ErrorIs(t, err, ErrBatchFailed)

	assert.Equal(t, 1, sum.Failed)
	require.Len(t, sum.Problems, 1)
	assert.Contains(t, sum.Problems[0].Error, "java heap space")

	e, _ := led.Get(jobs[0].ID)
	assert.Equal(t, ledger.StatusFailed, e.Status)
	assert.Equal(t, 3, e.Attempts)
}

func TestSchedulerTimeoutContinuesBatch(t *testing.T) {
	led, jobs, dir := testEnv(t, 2)
	fake := newFakeRunner(func(req runner.Request, _ int) (*runner.Result, error) {
		if req.JobID == jobs[0].ID {
			return &runner.Result{Status: ledger.StatusTimedOut},
				fmt.Errorf("timed out: %w", context.DeadlineExceeded)
		}
		return &runner.Result{Status: ledger.StatusCompleted}, nil
	})
	s := New(led, fake, 1, filepath.Join(dir, "scratch"), dir, fastRetry(1))

	require.NoError(t, s.Submit(context.Background(), jobs...))
	sum, err := s.Run(context.Background())
	require.ErrorIs(t, err, ErrBatchFailed)

	// One timeout retry, then the job is marked for good and the batch
	// moves on.
	assert.Equal(t, 1, sum.TimedOut)
	assert.Equal(t, 1, sum.Completed)
	e, _ := led.Get(jobs[0].ID)
	assert.Equal(t, ledger.StatusTimedOut, e.Status)
	assert.Equal(t, 2, e.Attempts)
}

func TestSchedulerDuplicateSubmit(t *testing.T) {
	led, jobs, dir := testEnv(t, 1)
	fake := newFakeRunner(succeed)
	s := New(led, fake, 1, filepath.Join(dir, "scratch"), dir)

	require.NoError(t, s.Submit(context.Background(), jobs[0], jobs[0]))
	sum, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Completed)
	assert.Equal(t, 1, fake.totalCalls())
}

func TestNewRetryPolicy(t *testing.T) {
	constant, ok := NewRetryPolicy("constant").(*backoff.ConstantBackoffPolicy)
	require.True(t, ok)
	assert.Equal(t, DefaultToolRetries, constant.MaxRetries)

	_, ok = NewRetryPolicy("").(*backoff.ConstantBackoffPolicy)
	assert.True(t, ok, "unnamed policy falls back to constant")

	exp, ok := NewRetryPolicy("exponential").(*backoff.ExponentialBackoffPolicy)
	require.True(t, ok)
	assert.Equal(t, DefaultToolRetries, exp.MaxRetries)
	assert.Equal(t, 2.0, exp.BackoffFactor)
}

func TestSchedulerNoJobs(t *testing.T) {
	led, _, dir := testEnv(t, 0)
	s := New(led, newFakeRunner(succeed), 1, filepath.Join(dir, "scratch"), dir)

	_, err := s.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoJobs)
}
