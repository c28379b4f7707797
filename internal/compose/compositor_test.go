package compose

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarops/s1compose/internal/raster"
	"github.com/sarops/s1compose/internal/scene"
)

func compositeGrid() raster.Grid {
	return raster.Grid{OriginX: 0, OriginY: 30, PixelSize: 10, Width: 3, Height: 3}
}

// fixtureCompositor returns a Compositor whose reads resolve from the
// given in-memory rasters instead of disk.
func fixtureCompositor(rasters map[string]*raster.Raster) *Compositor {
	c := NewCompositor(4)
	c.read = func(path string) (*raster.Raster, error) {
		return rasters[path], nil
	}
	return c
}

func valueRaster(v float32) *raster.Raster {
	r := raster.New(compositeGrid())
	for i := range r.Pixels {
		r.Pixels[i] = v
	}
	return r
}

func TestParseStatistic(t *testing.T) {
	for _, s := range []string{"median", "mean", "first", "last"} {
		stat, err := ParseStatistic(s)
		require.NoError(t, err)
		assert.Equal(t, Statistic(s), stat)
	}

	stat, err := ParseStatistic("")
	require.NoError(t, err)
	assert.Equal(t, StatMedian, stat)

	_, err = ParseStatistic("mode")
	assert.ErrorIs(t, err, ErrUnknownStatistic)
}

func TestCompositeMedianIgnoresNoData(t *testing.T) {
	// Two scenes with 5.0 and one with no-data at the same pixel: the
	// median sees only the valid values.
	a := valueRaster(5.0)
	b := valueRaster(5.0)
	c := valueRaster(raster.DefaultNoData)

	comp := fixtureCompositor(map[string]*raster.Raster{"a": a, "b": b, "c": c})
	day := time.Date(2024, 3, 14, 5, 30, 0, 0, time.UTC)
	scenes := []scene.Scene{
		{ID: "s1", AcquiredAt: day, Path: "a"},
		{ID: "s2", AcquiredAt: day.Add(24 * time.Hour), Path: "b"},
		{ID: "s3", AcquiredAt: day.Add(48 * time.Hour), Path: "c"},
	}

	out, err := comp.Composite(context.Background(), StatMedian, scenes)
	require.NoError(t, err)
	for i := range out.Pixels {
		assert.Equal(t, float32(5.0), out.Pixels[i])
	}
}

func TestCompositeDeterminism(t *testing.T) {
	rasters := map[string]*raster.Raster{
		"a": valueRaster(1.0),
		"b": valueRaster(2.0),
		"c": valueRaster(7.0),
	}
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	scenes := []scene.Scene{
		{ID: "s1", AcquiredAt: day, Path: "a"},
		{ID: "s2", AcquiredAt: day.Add(time.Hour), Path: "b"},
		{ID: "s3", AcquiredAt: day.Add(2 * time.Hour), Path: "c"},
	}
	reversed := []scene.Scene{scenes[2], scenes[1], scenes[0]}

	for _, stat := range []Statistic{StatMedian, StatMean, StatFirst, StatLast} {
		a, err := fixtureCompositor(rasters).Composite(context.Background(), stat, scenes)
		require.NoError(t, err)
		b, err := fixtureCompositor(rasters).Composite(context.Background(), stat, reversed)
		require.NoError(t, err)
		assert.Equal(t, a.Pixels, b.Pixels, "statistic %s must not depend on input order", stat)
	}
}

func TestCompositeStatistics(t *testing.T) {
	rasters := map[string]*raster.Raster{
		"a": valueRaster(1.0),
		"b": valueRaster(2.0),
		"c": valueRaster(7.0),
		"d": valueRaster(10.0),
	}
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	mk := func(paths ...string) []scene.Scene {
		var out []scene.Scene
		for i, p := range paths {
			out = append(out, scene.Scene{
				ID:         p,
				AcquiredAt: day.Add(time.Duration(i) * time.Hour),
				Path:       p,
			})
		}
		return out
	}

	testCases := []struct {
		name   string
		stat   Statistic
		scenes []scene.Scene
		want   float32
	}{
		{"MedianOdd", StatMedian, mk("a", "b", "c"), 2.0},
		{"MedianEven", StatMedian, mk("a", "b", "c", "d"), 4.5},
		{"Mean", StatMean, mk("a", "b", "c"), 10.0 / 3},
		{"First", StatFirst, mk("b", "a"), 2.0},
		{"Last", StatLast, mk("b", "a"), 1.0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := fixtureCompositor(rasters).Composite(context.Background(), tc.stat, tc.scenes)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, out.At(1, 1), 1e-6)
		})
	}
}

func TestCompositeFallbackChain(t *testing.T) {
	// first/last walk the chronological chain per pixel, skipping no-data.
	a := valueRaster(1.0)
	a.Pixels[0] = raster.DefaultNoData
	b := valueRaster(2.0)

	comp := fixtureCompositor(map[string]*raster.Raster{"a": a, "b": b})
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	scenes := []scene.Scene{
		{ID: "s1", AcquiredAt: day, Path: "a"},
		{ID: "s2", AcquiredAt: day.Add(time.Hour), Path: "b"},
	}

	out, err := comp.Composite(context.Background(), StatFirst, scenes)
	require.NoError(t, err)
	assert.Equal(t, float32(2.0), out.Pixels[0], "no-data in the first scene falls through")
	assert.Equal(t, float32(1.0), out.Pixels[1])
}

func TestCompositeErrors(t *testing.T) {
	t.Run("EmptySet", func(t *testing.T) {
		_, err := NewCompositor(0).Composite(context.Background(), StatMedian, nil)
		assert.ErrorIs(t, err, ErrEmptyCompositeSet)
	})

	t.Run("GridMismatch", func(t *testing.T) {
		small := raster.New(raster.Grid{OriginX: 0, OriginY: 10, PixelSize: 10, Width: 1, Height: 1})
		comp := fixtureCompositor(map[string]*raster.Raster{"a": valueRaster(1), "b": small})
		day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		_, err := comp.Composite(context.Background(), StatMedian, []scene.Scene{
			{ID: "s1", AcquiredAt: day, Path: "a"},
			{ID: "s2", AcquiredAt: day.Add(time.Hour), Path: "b"},
		})
		assert.ErrorIs(t, err, raster.ErrGridMismatch)
	})
}
