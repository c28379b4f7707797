// Package ledger persists per-job status durably so interrupted batches
// resume instead of recomputing. The ledger is a flat jobID -> entry JSON
// document, rewritten atomically after every job transition and guarded by
// an advisory file lock so two batch processes cannot interleave writes.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Status is the job state machine: pending -> running -> terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusSkipped, StatusFailed, StatusTimedOut:
		return true
	}
	return false
}

// Success reports whether the status means the job needs no re-execution.
func (s Status) Success() bool {
	return s == StatusCompleted || s == StatusSkipped
}

// ErrLocked is returned when another process holds the ledger lock.
var ErrLocked = errors.New("ledger is locked by another process")

// Entry is the durable record for one job.
type Entry struct {
	Status    Status    `json:"status"`
	Attempts  int       `json:"attempts"`
	UpdatedAt time.Time `json:"updatedAt"`
	Error     string    `json:"error,omitempty"`
	LogPath   string    `json:"logPath,omitempty"`
	Output    string    `json:"output,omitempty"`
}

// Ledger is the durable job-status store. All methods are safe for
// concurrent use; writes are serialized and flushed before returning.
type Ledger struct {
	path    string
	fl      *flock.Flock
	mu      sync.Mutex
	entries map[string]Entry
}

// Open loads (or creates) the ledger at path and takes the advisory lock.
// It returns ErrLocked when another batch holds it.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	fl := flock.New(path + ".lock")
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock ledger: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}

	l := &Ledger{path: path, fl: fl, entries: make(map[string]Entry)}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// First run.
	case err != nil:
		_ = fl.Unlock()
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	default:
		if err := json.Unmarshal(raw, &l.entries); err != nil {
			_ = fl.Unlock()
			return nil, fmt.Errorf("ledger %s is corrupt: %w", path, err)
		}
	}
	return l, nil
}

// Get returns the entry for a job id.
func (l *Ledger) Get(id string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	return e, ok
}

// Update stores the entry for a job id and flushes the ledger to disk
// before returning, so an interruption loses at most in-flight jobs.
func (l *Ledger) Update(id string, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.UpdatedAt = time.Now().UTC()
	l.entries[id] = e
	return l.flushLocked()
}

// flushLocked rewrites the ledger atomically: temp file, fsync, rename.
func (l *Ledger) flushLocked() error {
	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(l.path), filepath.Base(l.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create ledger temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), l.path)
}

// Snapshot returns a copy of all entries.
func (l *Ledger) Snapshot() map[string]Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]Entry, len(l.entries))
	for k, v := range l.entries {
		out[k] = v
	}
	return out
}

// IDs returns all job ids in the ledger, sorted.
func (l *Ledger) IDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.entries))
	for k := range l.entries {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	return ids
}

// Close releases the advisory lock. The on-disk state is already durable.
func (l *Ledger) Close() error {
	return l.fl.Unlock()
}

// ReadOnly loads the entries at path without taking the advisory lock,
// for inspecting a ledger while its batch is running.
func ReadOnly(path string) (map[string]Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	entries := make(map[string]Entry)
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("ledger %s is corrupt: %w", path, err)
	}
	return entries, nil
}
