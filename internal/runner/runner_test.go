//go:build !windows

package runner

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarops/s1compose/internal/ledger"
	"github.com/sarops/s1compose/internal/planner"
)

func testBudget() planner.Budget {
	return planner.Budget{
		Workers:           1,
		MemoryPerWorkerMB: 512,
		CachePerWorkerMB:  256,
		ThreadsPerWorker:  2,
	}
}

// shRunner builds a Runner that executes a shell snippet with the
// standard placeholders expanded.
func shRunner(script string, opts ...Option) *Runner {
	opts = append([]Option{WithTemplate([]string{"-c", script})}, opts...)
	return New("/bin/sh", testBudget(), opts...)
}

func testRequest(t *testing.T) Request {
	t.Helper()
	dir := t.TempDir()
	return Request{
		JobID:     "job-a",
		AttemptID: "attempt-1",
		Input:     filepath.Join(dir, "in.zip"),
		Output:    filepath.Join(dir, "out.img"),
		Dir:       dir,
		LogPath:   filepath.Join(dir, "job.log"),
	}
}

func TestRunnerSuccess(t *testing.T) {
	r := shRunner(`echo processed > {output}`)
	req := testRequest(t)

	res, err := r.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, res.Status)
	assert.Equal(t, 0, res.ExitCode)
	assert.FileExists(t, req.Output)
}

func TestRunnerPlaceholderExpansion(t *testing.T) {
	// The expanded argv carries the budget's cache ceiling and thread
	// count as flag values.
	r := shRunner(`echo graph={graph} cache={cache} threads={threads} mem={memory} > {output}`)
	req := testRequest(t)
	req.Graph = "/graphs/s1_grd_20m.xml"

	_, err := r.Run(context.Background(), req)
	require.NoError(t, err)

	data, err := os.ReadFile(req.Output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "graph=/graphs/s1_grd_20m.xml")
	assert.Contains(t, string(data), "cache=256M")
	assert.Contains(t, string(data), "threads=2")
	assert.Contains(t, string(data), "mem=512")
}

func TestRunnerToolFailure(t *testing.T) {
	r := shRunner(`echo boom >&2; exit 3`)
	req := testRequest(t)

	res, err := r.Run(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, ledger.StatusFailed, res.Status)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.StderrTail, "boom")
}

func TestRunnerMissingOutput(t *testing.T) {
	r := shRunner(`true`)
	req := testRequest(t)

	res, err := r.Run(context.Background(), req)
	require.ErrorIs(t, err, ErrMissingOutput)
	assert.Equal(t, ledger.StatusFailed, res.Status)
	assert.Equal(t, 0, res.ExitCode)
}

func TestRunnerTimeout(t *testing.T) {
	r := shRunner(`sleep 30; echo done > {output}`, WithGrace(200*time.Millisecond))
	req := testRequest(t)
	req.Timeout = 150 * time.Millisecond

	started := time.Now()
	res, err := r.Run(context.Background(), req)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, ledger.StatusTimedOut, res.Status)
	assert.Less(t, time.Since(started), 5*time.Second, "the process group must be signalled, not waited out")
}

func TestRunnerEnvAndLog(t *testing.T) {
	r := shRunner(`echo "tmp=$TMPDIR"; echo out > {output}`)
	req := testRequest(t)
	req.Env = []string{"TMPDIR=/scratch/attempt-1/tmp"}

	_, err := r.Run(context.Background(), req)
	require.NoError(t, err)

	log, err := os.ReadFile(req.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(log), "tmp=/scratch/attempt-1/tmp")
}

func TestRunnerTailLimit(t *testing.T) {
	r := shRunner(`echo 0123456789 >&2; exit 1`, WithTailLimit(4))
	req := testRequest(t)

	res, err := r.Run(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, "789\n", res.StderrTail)
}

func TestMosaicNoInputs(t *testing.T) {
	m := NewMosaic("otbcli_Mosaic")
	_, err := m.Run(context.Background(), MosaicRequest{Output: "out.img"})
	assert.ErrorIs(t, err, ErrNoMosaicInputs)
}

func TestMosaicArgs(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		m := NewMosaic("otbcli_Mosaic")
		args, err := m.args(MosaicRequest{
			Inputs:        []string{"/scratch/p07_S1A_R015.img", "/scratch/p07_S1A_R117.img"},
			SpacingMeters: 20,
		}, "/out/period_07.img")
		require.NoError(t, err)

		assert.Equal(t, []string{
			"-il", "/scratch/p07_S1A_R015.img", "/scratch/p07_S1A_R117.img",
			"-out", "/out/period_07.img",
			"-comp.feather", "large",
			"-harmo.method", "band",
			"-harmo.cost", "rmse",
			"-interpolator", "bco",
			"-output.spacingx", "20",
			"-output.spacingy", "20",
			"-nodata", "-32768",
		}, args)
	})

	t.Run("Options", func(t *testing.T) {
		m := NewMosaic("otbcli_Mosaic", WithHarmoCost(HarmoCostMuSig), WithNoData(0))
		args, err := m.args(MosaicRequest{
			Inputs:        []string{"/scratch/a.img"},
			SpacingMeters: 100,
		}, "/out/p.img")
		require.NoError(t, err)

		assert.Contains(t, args, HarmoCostMuSig)
		assert.Equal(t, "0", args[len(args)-1])
		assert.Equal(t, "100", args[len(args)-3])
	})

	t.Run("EmptyCostKeepsDefault", func(t *testing.T) {
		m := NewMosaic("otbcli_Mosaic", WithHarmoCost(""))
		args, err := m.args(MosaicRequest{Inputs: []string{"/a.img"}}, "/out/p.img")
		require.NoError(t, err)
		assert.Contains(t, args, HarmoCostRMSE)
	})
}

func TestTailWriter(t *testing.T) {
	t.Run("ForwardsAndKeepsTail", func(t *testing.T) {
		var out bytes.Buffer
		w := NewTailWriter(&out, 8)

		_, err := w.Write([]byte("0123456789"))
		require.NoError(t, err)
		assert.Equal(t, "0123456789", out.String())
		assert.Equal(t, "23456789", w.Tail())
	})

	t.Run("RollsAcrossWrites", func(t *testing.T) {
		w := NewTailWriter(nil, 4)
		for _, chunk := range []string{"aa", "bb", "cc"} {
			_, err := w.Write([]byte(chunk))
			require.NoError(t, err)
		}
		assert.Equal(t, "bbcc", w.Tail())
	})
}
