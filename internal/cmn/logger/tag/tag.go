// Package tag provides standardized tag functions for structured logging.
//
// All tag keys use kebab-case naming. Use these functions instead of raw
// strings to keep log output consistent across the codebase.
package tag

import (
	"log/slog"
	"time"
)

// Error creates a tag for error objects.
func Error(err any) slog.Attr {
	return slog.Any("err", err)
}

// Job creates a tag for job ids.
func Job(id string) slog.Attr {
	return slog.String("job", id)
}

// AttemptID creates a tag for scratch attempt identifiers.
func AttemptID(id string) slog.Attr {
	return slog.String("attempt-id", id)
}

// Attempt creates a tag for attempt numbers.
func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// Scene creates a tag for scene identifiers.
func Scene(id string) slog.Attr {
	return slog.String("scene", id)
}

// Period creates a tag for period indices.
func Period(p int) slog.Attr {
	return slog.Int("period", p)
}

// Track creates a tag for orbital track identifiers.
func Track(id string) slog.Attr {
	return slog.String("track", id)
}

// Tier creates a tag for resolution tiers.
func Tier(t string) slog.Attr {
	return slog.String("tier", t)
}

// Status creates a tag for job status values.
func Status(status string) slog.Attr {
	return slog.String("status", status)
}

// ExitCode creates a tag for process exit codes.
func ExitCode(code int) slog.Attr {
	return slog.Int("exit-code", code)
}

// PID creates a tag for process IDs.
func PID(pid int) slog.Attr {
	return slog.Int("pid", pid)
}

// Command creates a tag for commands being executed.
func Command(cmd string) slog.Attr {
	return slog.String("command", cmd)
}

// Args creates a tag for command arguments.
func Args(args []string) slog.Attr {
	return slog.Any("args", args)
}

// File creates a tag for file paths.
func File(path string) slog.Attr {
	return slog.String("file", path)
}

// Dir creates a tag for directory paths.
func Dir(path string) slog.Attr {
	return slog.String("dir", path)
}

// Count creates a tag for numeric counts.
func Count(n int) slog.Attr {
	return slog.Int("count", n)
}

// Workers creates a tag for worker pool sizes.
func Workers(n int) slog.Attr {
	return slog.Int("workers", n)
}

// MemoryMB creates a tag for memory amounts in megabytes.
func MemoryMB(n int) slog.Attr {
	return slog.Int("memory-mb", n)
}

// Duration creates a tag for time durations.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Timeout creates a tag for timeout duration values.
func Timeout(d time.Duration) slog.Attr {
	return slog.Duration("timeout", d)
}

// Year creates a tag for calendar years.
func Year(y int) slog.Attr {
	return slog.Int("year", y)
}

// Statistic creates a tag for compositing statistics.
func Statistic(s string) slog.Attr {
	return slog.String("statistic", s)
}

// Provenance creates a tag for gap-fill provenance values.
func Provenance(p string) slog.Attr {
	return slog.String("provenance", p)
}

// Reason creates a tag for the reason for an action or state.
func Reason(r string) slog.Attr {
	return slog.String("reason", r)
}
