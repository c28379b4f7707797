package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sarops/s1compose/internal/cmn/logger"
	"github.com/sarops/s1compose/internal/cmn/logger/tag"
	"github.com/sarops/s1compose/internal/compose"
	"github.com/sarops/s1compose/internal/isolate"
	"github.com/sarops/s1compose/internal/raster"
	"github.com/sarops/s1compose/internal/runner"
	"github.com/sarops/s1compose/internal/scene"
	"github.com/sarops/s1compose/internal/temporal"
)

// periodsDirName is the output subdirectory for per-period composites.
const periodsDirName = "periods"

// PeriodsDir returns where period composites live inside an output dir.
func PeriodsDir(outputDir string) string {
	return filepath.Join(outputDir, periodsDirName)
}

// PeriodFile returns the composite raster path for one period.
func PeriodFile(outputDir string, period int) string {
	return filepath.Join(PeriodsDir(outputDir), fmt.Sprintf("period_%02d.img", period))
}

// ComposeResult reports the outcome of the compositing stage.
type ComposeResult struct {
	Calendar     temporal.Calendar
	Completeness scene.CompletenessReport

	// PeriodFiles maps composited periods to their raster paths.
	PeriodFiles map[int]string

	// EmptyPeriods had no scenes at all; the gap filler handles them.
	EmptyPeriods []int

	// FailedPeriods had scenes but could not be composited. They are
	// treated like empty periods downstream.
	FailedPeriods map[int]error
}

// Compose reduces the preprocessed scenes of one year into per-period
// composite rasters. Periods that fail are recorded and bypassed; only a
// completely sceneless input aborts the stage.
func (p *Pipeline) Compose(ctx context.Context, year int, inputDir, outputDir, statName string) (*ComposeResult, error) {
	stat, err := compose.ParseStatistic(statName)
	if err != nil {
		return nil, err
	}
	cal, err := temporal.NewCalendar(year, p.cfg.Stack.PeriodDays)
	if err != nil {
		return nil, err
	}

	scenes, skipped, err := scene.ScanDir(inputDir)
	if err != nil {
		return nil, err
	}
	for _, name := range skipped {
		logger.Warn(ctx, "Ignoring file without a Sentinel-1 product name", tag.File(name))
	}
	if len(scenes) == 0 {
		return nil, fmt.Errorf("no scene rasters found in %s", inputDir)
	}

	groups, outside := scene.GroupByPeriod(cal, scenes, p.cfg.Stack.ByTrack)
	for _, s := range outside {
		logger.Warn(ctx, "Scene dated outside the batch year",
			tag.Scene(s.ID), tag.Year(year))
	}

	if err := os.MkdirAll(PeriodsDir(outputDir), 0750); err != nil {
		return nil, fmt.Errorf("failed to create periods directory: %w", err)
	}

	res := &ComposeResult{
		Calendar:      cal,
		Completeness:  scene.Completeness(cal, scenes, p.cfg.Stack.RevisitDays),
		PeriodFiles:   make(map[int]string),
		FailedPeriods: make(map[int]error),
	}

	comp := compose.NewCompositor(0)
	for period := 1; period <= cal.Periods(); period++ {
		tracks := periodTracks(groups, period)
		if len(tracks) == 0 {
			res.EmptyPeriods = append(res.EmptyPeriods, period)
			continue
		}

		path := PeriodFile(outputDir, period)
		pctx := logger.WithValues(ctx, tag.Period(period))
		if err := p.compositePeriod(pctx, comp, stat, cal, groups, period, tracks, path); err != nil {
			logger.Error(pctx, "Period compositing failed", tag.Error(err))
			res.FailedPeriods[period] = err
			continue
		}
		res.PeriodFiles[period] = path
	}

	logger.Info(ctx, "Compositing finished",
		tag.Year(year),
		tag.Count(len(res.PeriodFiles)),
		tag.Statistic(string(stat)),
	)
	return res, nil
}

// periodTracks returns the sorted track bucket names present for one
// period.
func periodTracks(groups map[scene.Key][]scene.Scene, period int) []string {
	var tracks []string
	for k := range groups {
		if k.Period == period {
			tracks = append(tracks, k.Track)
		}
	}
	sort.Strings(tracks)
	return tracks
}

// compositePeriod reduces one period to a single raster at path. With
// several track buckets, each track is composited natively and the track
// composites are blended by the external mosaicking tool; a non-zero
// mosaic exit is a hard failure for the period.
func (p *Pipeline) compositePeriod(
	ctx context.Context,
	comp *compose.Compositor,
	stat compose.Statistic,
	cal temporal.Calendar,
	groups map[scene.Key][]scene.Scene,
	period int,
	tracks []string,
	path string,
) error {
	if len(tracks) == 1 {
		r, err := comp.Composite(ctx, stat, groups[scene.Key{Period: period, Track: tracks[0]}])
		if err != nil {
			return err
		}
		return raster.WriteRaster(path, r, periodBandName(cal, period))
	}

	scratch, err := isolate.Acquire(p.cfg.Paths.ScratchDir, fmt.Sprintf("mosaic-p%02d", period))
	if err != nil {
		return err
	}
	defer func() {
		if err := scratch.Release(); err != nil {
			logger.Warn(ctx, "Failed to release scratch", tag.Dir(scratch.Dir), tag.Error(err))
		}
	}()

	var inputs []string
	for _, track := range tracks {
		r, err := comp.Composite(ctx, stat, groups[scene.Key{Period: period, Track: track}])
		if err != nil {
			if errors.Is(err, compose.ErrEmptyCompositeSet) {
				continue
			}
			return fmt.Errorf("track %s: %w", track, err)
		}
		trackPath := filepath.Join(scratch.Dir, fmt.Sprintf("p%02d_%s.img", period, track))
		if err := raster.WriteRaster(trackPath, r, track); err != nil {
			return fmt.Errorf("track %s: %w", track, err)
		}
		inputs = append(inputs, trackPath)
		logger.Debug(ctx, "Composited track", tag.Track(track), tag.File(trackPath))
	}

	tier, err := p.tier(nil)
	if err != nil {
		return err
	}
	mosaic := runner.NewMosaic(p.cfg.Tools.Mosaic,
		runner.WithHarmoCost(p.cfg.Stack.HarmoCost),
		runner.WithNoData(int(raster.DefaultNoData)),
	)
	_, err = mosaic.Run(ctx, runner.MosaicRequest{
		JobID:         fmt.Sprintf("mosaic-p%02d", period),
		AttemptID:     scratch.AttemptID,
		Inputs:        inputs,
		Output:        path,
		SpacingMeters: tier.Meters(),
		Dir:           scratch.Dir,
		Env:           scratch.Env(),
		LogPath:       filepath.Join(p.cfg.Paths.LogDir, fmt.Sprintf("mosaic_p%02d.log", period)),
		Timeout:       p.cfg.Batch.JobTimeout,
	})
	return err
}

func periodBandName(cal temporal.Calendar, period int) string {
	start, end, err := cal.Range(period)
	if err != nil {
		return fmt.Sprintf("P%02d", period)
	}
	return fmt.Sprintf("P%02d %s..%s", period,
		start.Format("2006-01-02"), end.Format("2006-01-02"))
}
