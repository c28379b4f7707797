// Package planner computes the static resource budget for a batch run:
// how many external preprocessing workers can run concurrently and how much
// working memory and tile cache each one is given. The budget is computed
// once before dispatch and never renegotiated mid-batch.
package planner

import (
	"context"
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// ErrInsufficientResources is returned when not even a single worker can be
// budgeted at the tier's memory floor. It is fatal to batch start.
var ErrInsufficientResources = errors.New("insufficient resources")

// ErrUnknownTier is returned for a resolution tier outside the known set.
var ErrUnknownTier = errors.New("unknown resolution tier")

const (
	// DefaultMaxWorkers caps the worker pool regardless of memory headroom.
	DefaultMaxWorkers = 10
	// DefaultCeilingFraction is the share of declared memory the batch may use.
	DefaultCeilingFraction = 0.80
	// cacheFraction is the tile-cache share of a worker's memory grant.
	cacheFraction = 0.75
)

// Tier selects the output resolution of the preprocessing graph. Each tier
// carries a known per-scene memory profile.
type Tier string

const (
	Tier10m  Tier = "10m"
	Tier20m  Tier = "20m"
	Tier50m  Tier = "50m"
	Tier100m Tier = "100m"
)

type tierProfile struct {
	meters          float64
	defaultMemoryMB int
	floorMB         int
}

// Per-scene memory profiles observed for the preprocessing graphs at each
// resolution. The floor is the point below which the tool thrashes or dies.
var tierProfiles = map[Tier]tierProfile{
	Tier10m:  {meters: 10, defaultMemoryMB: 16 * 1024, floorMB: 8 * 1024},
	Tier20m:  {meters: 20, defaultMemoryMB: 12 * 1024, floorMB: 6 * 1024},
	Tier50m:  {meters: 50, defaultMemoryMB: 8 * 1024, floorMB: 4 * 1024},
	Tier100m: {meters: 100, defaultMemoryMB: 6 * 1024, floorMB: 3 * 1024},
}

// Meters returns the tier's output pixel size in meters, or 0 for an
// unknown tier.
func (t Tier) Meters() float64 {
	return tierProfiles[t].meters
}

// ParseTier validates a tier string.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if _, ok := tierProfiles[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
	return t, nil
}

// Input declares the resources available to a batch. Zero values for
// TotalMemoryMB or CPUs mean "detect from the host".
type Input struct {
	TotalMemoryMB   int
	CPUs            int
	Tier            Tier
	CeilingFraction float64
	MaxWorkers      int
}

// Budget is the per-batch resource partition. Invariant:
// Workers*MemoryPerWorkerMB never exceeds the configured ceiling.
type Budget struct {
	Workers           int
	MemoryPerWorkerMB int
	CachePerWorkerMB  int
	ThreadsPerWorker  int
}

// Plan computes a budget from the declared resources. With explicit inputs
// the function is pure; callers may override any field of the result.
func Plan(ctx context.Context, in Input) (Budget, error) {
	profile, ok := tierProfiles[in.Tier]
	if !ok {
		return Budget{}, fmt.Errorf("%w: %q", ErrUnknownTier, in.Tier)
	}

	if in.TotalMemoryMB <= 0 || in.CPUs <= 0 {
		memMB, cpus, err := Detect(ctx)
		if err != nil {
			return Budget{}, err
		}
		if in.TotalMemoryMB <= 0 {
			in.TotalMemoryMB = memMB
		}
		if in.CPUs <= 0 {
			in.CPUs = cpus
		}
	}

	fraction := in.CeilingFraction
	if fraction <= 0 || fraction > 1 {
		fraction = DefaultCeilingFraction
	}
	maxWorkers := in.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}

	ceilingMB := int(float64(in.TotalMemoryMB) * fraction)

	workers := ceilingMB / profile.defaultMemoryMB
	if workers > maxWorkers {
		workers = maxWorkers
	}
	if in.CPUs > 0 && workers > in.CPUs {
		workers = in.CPUs
	}
	if workers == 0 {
		// Not enough for a full-size worker; a single degraded worker is
		// still acceptable down to the tier floor.
		if ceilingMB < profile.floorMB {
			return Budget{}, fmt.Errorf(
				"%w: ceiling %d MB below tier %s floor %d MB",
				ErrInsufficientResources, ceilingMB, in.Tier, profile.floorMB)
		}
		workers = 1
	}

	memPerWorker := ceilingMB / workers
	threads := in.CPUs / workers
	if threads < 1 {
		threads = 1
	}

	return Budget{
		Workers:           workers,
		MemoryPerWorkerMB: memPerWorker,
		CachePerWorkerMB:  int(float64(memPerWorker) * cacheFraction),
		ThreadsPerWorker:  threads,
	}, nil
}

// Detect reads total memory and logical CPU count from the host.
func Detect(ctx context.Context) (memMB, cpus int, err error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to detect memory: %w", err)
	}
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to detect CPUs: %w", err)
	}
	return int(vm.Total / (1024 * 1024)), n, nil
}
