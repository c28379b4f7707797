package compose

import (
	"errors"
	"fmt"

	"github.com/sarops/s1compose/internal/raster"
)

// Provenance records how a period's raster in the final series came to
// exist.
type Provenance string

const (
	ProvenanceObserved       Provenance = "observed"
	ProvenanceInterpolated   Provenance = "interpolated"
	ProvenanceCopiedForward  Provenance = "copied_forward"
	ProvenanceCopiedBackward Provenance = "copied_backward"
	ProvenanceEmpty          Provenance = "empty"
)

// ErrNoObservations is returned when every period in the series is
// empty, leaving nothing to fill from.
var ErrNoObservations = errors.New("compose: no period has observed data")

// FilledPeriod is one slot of the completed annual series.
type FilledPeriod struct {
	Period     int
	Raster     *raster.Raster
	Provenance Provenance
}

// Fill completes an ordered series of per-period rasters. Slot i holds
// period i+1; a nil raster marks a period with no composite. All non-nil
// inputs must share one grid.
//
// Empty slots with observed periods on both sides are interpolated
// per-pixel, linearly weighted by period distance. Slots with a single
// observed side copy that neighbor. Filling only ever consults the
// nearest observed period on each side: altering anything farther away
// cannot change the result.
func Fill(composites []*raster.Raster) ([]FilledPeriod, error) {
	return fill(composites, true)
}

// WithoutFill completes the series with filling disabled: every empty
// slot becomes an all-no-data raster with empty provenance.
func WithoutFill(composites []*raster.Raster) ([]FilledPeriod, error) {
	return fill(composites, false)
}

func fill(composites []*raster.Raster, enabled bool) ([]FilledPeriod, error) {
	grid, err := commonGrid(composites)
	if err != nil {
		return nil, err
	}

	out := make([]FilledPeriod, len(composites))
	for i, r := range composites {
		period := i + 1
		if r != nil {
			out[i] = FilledPeriod{Period: period, Raster: r, Provenance: ProvenanceObserved}
			continue
		}

		prev, next := -1, -1
		if enabled {
			prev = nearest(composites, i, -1)
			next = nearest(composites, i, +1)
		}

		switch {
		case prev >= 0 && next >= 0:
			w := float64(i-prev) / float64(next-prev)
			out[i] = FilledPeriod{
				Period:     period,
				Raster:     interpolate(composites[prev], composites[next], w),
				Provenance: ProvenanceInterpolated,
			}
		case prev >= 0:
			out[i] = FilledPeriod{
				Period:     period,
				Raster:     composites[prev].ResampleTo(grid),
				Provenance: ProvenanceCopiedForward,
			}
		case next >= 0:
			out[i] = FilledPeriod{
				Period:     period,
				Raster:     composites[next].ResampleTo(grid),
				Provenance: ProvenanceCopiedBackward,
			}
		default:
			out[i] = FilledPeriod{Period: period, Raster: raster.New(grid), Provenance: ProvenanceEmpty}
		}
	}
	return out, nil
}

// commonGrid returns the shared grid of all non-nil rasters.
func commonGrid(composites []*raster.Raster) (raster.Grid, error) {
	var grid raster.Grid
	found := false
	for i, r := range composites {
		if r == nil {
			continue
		}
		if !found {
			grid = r.Grid
			found = true
			continue
		}
		if !r.Grid.Equal(grid) {
			return raster.Grid{}, fmt.Errorf("period %d: %w", i+1, raster.ErrGridMismatch)
		}
	}
	if !found {
		return raster.Grid{}, ErrNoObservations
	}
	return grid, nil
}

// nearest returns the index of the closest non-nil slot from i in the
// given direction, or -1.
func nearest(composites []*raster.Raster, i, dir int) int {
	for j := i + dir; j >= 0 && j < len(composites); j += dir {
		if composites[j] != nil {
			return j
		}
	}
	return -1
}

// interpolate blends two rasters per-pixel with weight w toward b. A
// pixel that is no-data on one side takes the other side's value; pixels
// that are no-data on both sides stay no-data.
func interpolate(a, b *raster.Raster, w float64) *raster.Raster {
	out := &raster.Raster{
		Grid:   a.Grid,
		NoData: a.NoData,
		Pixels: make([]float32, len(a.Pixels)),
	}
	for i := range out.Pixels {
		va, vb := a.Pixels[i], b.Pixels[i]
		switch {
		case va != a.NoData && vb != b.NoData:
			out.Pixels[i] = float32(float64(va)*(1-w) + float64(vb)*w)
		case va != a.NoData:
			out.Pixels[i] = va
		case vb != b.NoData:
			out.Pixels[i] = vb
		default:
			out.Pixels[i] = out.NoData
		}
	}
	return out
}
