package compose

import (
	"context"
	"errors"
	"fmt"

	"github.com/sarops/s1compose/internal/cmn/logger"
	"github.com/sarops/s1compose/internal/cmn/logger/tag"
	"github.com/sarops/s1compose/internal/raster"
	"github.com/sarops/s1compose/internal/temporal"
)

// ErrNoReferenceGrid is returned when no period has observed data, so
// no grid exists to assemble the stack on.
var ErrNoReferenceGrid = errors.New("compose: no period with observed data to take the reference grid from")

// ErrPeriodCountMismatch is returned when the composite series length
// does not match the calendar's period count.
var ErrPeriodCountMismatch = errors.New("compose: composite series length does not match calendar periods")

// Assemble builds the annual stack from the per-period composite series.
// Slot i of composites holds period i+1; nil marks an empty period.
//
// The grid of the first observed period becomes the reference grid and
// every other period is resampled onto it with nearest-neighbour
// sampling. Band i carries period i+1, named with the period's date
// range and provenance, e.g. "P07 2024-03-13..2024-03-24 (observed)".
// When fillGaps is false, empty periods become all-no-data bands.
func Assemble(ctx context.Context, cal temporal.Calendar, composites []*raster.Raster, fillGaps bool) (*raster.Stack, []Provenance, error) {
	if len(composites) != cal.Periods() {
		return nil, nil, fmt.Errorf("%w: got %d, calendar has %d",
			ErrPeriodCountMismatch, len(composites), cal.Periods())
	}

	ref := -1
	for i, r := range composites {
		if r != nil {
			ref = i
			break
		}
	}
	if ref < 0 {
		return nil, nil, ErrNoReferenceGrid
	}
	grid := composites[ref].Grid
	logger.Info(ctx, "Assembling annual stack",
		tag.Year(cal.Year), tag.Period(ref+1), tag.Count(len(composites)))

	aligned := make([]*raster.Raster, len(composites))
	for i, r := range composites {
		if r == nil {
			continue
		}
		aligned[i] = r.ResampleTo(grid)
	}

	var (
		filled []FilledPeriod
		err    error
	)
	if fillGaps {
		filled, err = Fill(aligned)
	} else {
		filled, err = WithoutFill(aligned)
	}
	if err != nil {
		return nil, nil, err
	}

	stack := &raster.Stack{
		Grid:   grid,
		NoData: raster.DefaultNoData,
		Bands:  make([]raster.Band, len(filled)),
	}
	provenance := make([]Provenance, len(filled))
	for i, fp := range filled {
		provenance[i] = fp.Provenance
		stack.Bands[i] = raster.Band{
			Name:   bandName(cal, fp),
			Pixels: fp.Raster.Pixels,
		}
	}
	return stack, provenance, nil
}

// bandName formats the band description carrying the period's date
// range and provenance for traceability.
func bandName(cal temporal.Calendar, fp FilledPeriod) string {
	start, end, err := cal.Range(fp.Period)
	if err != nil {
		return fmt.Sprintf("P%02d (%s)", fp.Period, fp.Provenance)
	}
	return fmt.Sprintf("P%02d %s..%s (%s)",
		fp.Period, start.Format("2006-01-02"), end.Format("2006-01-02"), fp.Provenance)
}
