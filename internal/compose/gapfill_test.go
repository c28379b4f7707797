package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarops/s1compose/internal/raster"
)

func TestFillInterpolation(t *testing.T) {
	// Periods 1..31 with period 10 missing, periods 9 and 11 carrying 2.0
	// and 4.0: the gap gets the midpoint.
	composites := make([]*raster.Raster, 31)
	for i := range composites {
		if i == 9 { // period 10
			continue
		}
		v := float32(1.0)
		switch i {
		case 8:
			v = 2.0
		case 10:
			v = 4.0
		}
		composites[i] = valueRaster(v)
	}

	filled, err := Fill(composites)
	require.NoError(t, err)
	require.Len(t, filled, 31)

	gap := filled[9]
	assert.Equal(t, 10, gap.Period)
	assert.Equal(t, ProvenanceInterpolated, gap.Provenance)
	assert.InDelta(t, 3.0, gap.Raster.At(1, 1), 1e-6)

	assert.Equal(t, ProvenanceObserved, filled[8].Provenance)
	assert.Equal(t, ProvenanceObserved, filled[10].Provenance)
}

func TestFillDistanceWeighting(t *testing.T) {
	// Periods 1 and 4 observed with 0.0 and 3.0; periods 2 and 3 sit at
	// one and two thirds of the span.
	composites := []*raster.Raster{valueRaster(0.0), nil, nil, valueRaster(3.0)}

	filled, err := Fill(composites)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, filled[1].Raster.At(0, 0), 1e-6)
	assert.InDelta(t, 2.0, filled[2].Raster.At(0, 0), 1e-6)
}

func TestFillPartialNoData(t *testing.T) {
	a := valueRaster(2.0)
	a.Pixels[0] = a.NoData
	b := valueRaster(4.0)
	b.Pixels[1] = b.NoData
	a.Pixels[2] = a.NoData
	b.Pixels[2] = b.NoData

	filled, err := Fill([]*raster.Raster{a, nil, b})
	require.NoError(t, err)
	gap := filled[1].Raster
	assert.Equal(t, float32(4.0), gap.Pixels[0], "no-data side yields the other side's value")
	assert.Equal(t, float32(2.0), gap.Pixels[1])
	assert.Equal(t, gap.NoData, gap.Pixels[2], "no-data on both sides stays no-data")
	assert.InDelta(t, 3.0, gap.Pixels[3], 1e-6)
}

func TestFillCopiesSingleNeighbor(t *testing.T) {
	t.Run("CopyForward", func(t *testing.T) {
		filled, err := Fill([]*raster.Raster{valueRaster(5.0), nil, nil})
		require.NoError(t, err)
		for _, p := range []int{1, 2} {
			assert.Equal(t, ProvenanceCopiedForward, filled[p].Provenance)
			assert.Equal(t, float32(5.0), filled[p].Raster.At(0, 0))
		}
	})

	t.Run("CopyBackward", func(t *testing.T) {
		filled, err := Fill([]*raster.Raster{nil, valueRaster(5.0)})
		require.NoError(t, err)
		assert.Equal(t, ProvenanceCopiedBackward, filled[0].Provenance)
		assert.Equal(t, float32(5.0), filled[0].Raster.At(0, 0))
	})
}

func TestFillLocality(t *testing.T) {
	// Filling period k only consults the nearest observed neighbor on
	// each side: altering a period beyond that neighbor cannot change k.
	base := []*raster.Raster{valueRaster(9.0), valueRaster(2.0), nil, valueRaster(4.0), valueRaster(9.0)}
	altered := []*raster.Raster{valueRaster(1.0), valueRaster(2.0), nil, valueRaster(4.0), valueRaster(100.0)}

	a, err := Fill(base)
	require.NoError(t, err)
	b, err := Fill(altered)
	require.NoError(t, err)
	assert.Equal(t, a[2].Raster.Pixels, b[2].Raster.Pixels)
}

func TestFillErrorsAndDisabled(t *testing.T) {
	t.Run("AllEmpty", func(t *testing.T) {
		_, err := Fill(make([]*raster.Raster, 5))
		assert.ErrorIs(t, err, ErrNoObservations)
	})

	t.Run("GridMismatch", func(t *testing.T) {
		small := raster.New(raster.Grid{OriginX: 0, OriginY: 10, PixelSize: 10, Width: 1, Height: 1})
		_, err := Fill([]*raster.Raster{valueRaster(1.0), small})
		assert.ErrorIs(t, err, raster.ErrGridMismatch)
	})

	t.Run("Disabled", func(t *testing.T) {
		filled, err := WithoutFill([]*raster.Raster{valueRaster(1.0), nil})
		require.NoError(t, err)
		assert.Equal(t, ProvenanceObserved, filled[0].Provenance)
		assert.Equal(t, ProvenanceEmpty, filled[1].Provenance)
		assert.Equal(t, 0, filled[1].Raster.ValidCount())
	})
}
