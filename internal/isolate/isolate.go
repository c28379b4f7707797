// Package isolate gives every external-tool attempt a private scratch
// directory and the environment overrides that point the tool's temp and
// cache state into it. Concurrent preprocessing runs sharing one cache
// directory corrupt each other's auxiliary data; a private arena per
// attempt removes that failure mode entirely.
package isolate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sarops/s1compose/internal/cmn/fileutil"
	"github.com/sarops/s1compose/internal/cmn/logger"
	"github.com/sarops/s1compose/internal/cmn/logger/tag"
)

// scratchPrefix marks directories owned by this package so Sweep never
// touches anything else.
const scratchPrefix = "s1c-scratch-"

// Scratch is one attempt's private working area. Release is safe to call
// multiple times and on every exit path.
type Scratch struct {
	JobID     string
	AttemptID string
	Dir       string
	TmpDir    string
	UserDir   string

	released atomic.Bool
}

// Acquire creates a scratch directory unique to this attempt. The
// attempt id is a fresh UUID, so retries of the same job and concurrent
// workers can never collide.
func Acquire(baseDir, jobID string) (*Scratch, error) {
	attemptID := uuid.New().String()
	dir := filepath.Join(baseDir, scratchPrefix+fileutil.SafeName(jobID)+"-"+attemptID)

	s := &Scratch{
		JobID:     jobID,
		AttemptID: attemptID,
		Dir:       dir,
		TmpDir:    filepath.Join(dir, "tmp"),
		UserDir:   filepath.Join(dir, "userdir"),
	}
	for _, d := range []string{s.TmpDir, s.UserDir} {
		if err := os.MkdirAll(d, 0750); err != nil {
			_ = os.RemoveAll(dir)
			return nil, fmt.Errorf("failed to create scratch directory: %w", err)
		}
	}
	return s, nil
}

// Env returns the environment overrides for the external tool, in
// os/exec KEY=VALUE form. Both the generic temp variables and the SNAP
// user directory are redirected into the scratch area.
func (s *Scratch) Env() []string {
	return []string{
		"TMPDIR=" + s.TmpDir,
		"TMP=" + s.TmpDir,
		"TEMP=" + s.TmpDir,
		"SNAP_USER_DIR=" + s.UserDir,
	}
}

// Release removes the scratch directory and everything in it. Idempotent.
func (s *Scratch) Release() error {
	if !s.released.CompareAndSwap(false, true) {
		return nil
	}
	return os.RemoveAll(s.Dir)
}

// Sweep removes orphaned scratch directories under baseDir older than
// maxAge. A process killed without cleanup leaves its arena behind; the
// next batch start reclaims the space before dispatching.
func Sweep(ctx context.Context, baseDir string, maxAge time.Duration) int {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return 0
	}
	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), scratchPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		dir := filepath.Join(baseDir, e.Name())
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn(ctx, "Failed to sweep orphaned scratch directory", tag.Dir(dir), tag.Error(err))
			continue
		}
		logger.Info(ctx, "Swept orphaned scratch directory", tag.Dir(dir))
		removed++
	}
	return removed
}
