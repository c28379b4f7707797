// Package raster provides the in-memory raster model shared by the
// compositing pipeline: single-band float32 grids with affine
// georeferencing, nearest-neighbour resampling, and an ENVI
// band-sequential container (.img plus .hdr) for composites and
// annual stacks.
package raster

import (
	"errors"
	"fmt"
	"math"
)

// DefaultNoData is the no-data sentinel used across the pipeline. It matches
// the sentinel the preprocessing graph writes into its output products.
const DefaultNoData float32 = -32768

// ErrGridMismatch is returned when an operation requires rasters on the same grid.
var ErrGridMismatch = errors.New("rasters are not on the same grid")

// gridEpsilon tolerates origin drift from independent mosaicking runs that
// is far below one pixel.
const gridEpsilon = 1e-6

// Grid describes the georeferenced pixel lattice of a raster: the top-left
// corner, a square pixel size, and the raster dimensions. Rows grow
// southward (OriginY is the maximum Y).
type Grid struct {
	OriginX   float64
	OriginY   float64
	PixelSize float64
	Width     int
	Height    int
}

// Equal reports whether two grids describe the same lattice within a small
// floating-point tolerance.
func (g Grid) Equal(o Grid) bool {
	return g.Width == o.Width && g.Height == o.Height &&
		math.Abs(g.OriginX-o.OriginX) < gridEpsilon &&
		math.Abs(g.OriginY-o.OriginY) < gridEpsilon &&
		math.Abs(g.PixelSize-o.PixelSize) < gridEpsilon
}

// CellCenter returns the map coordinates of the center of cell (col, row).
func (g Grid) CellCenter(col, row int) (x, y float64) {
	x = g.OriginX + (float64(col)+0.5)*g.PixelSize
	y = g.OriginY - (float64(row)+0.5)*g.PixelSize
	return x, y
}

// CellAt returns the cell containing map coordinates (x, y) and whether the
// cell lies inside the grid.
func (g Grid) CellAt(x, y float64) (col, row int, ok bool) {
	col = int(math.Floor((x - g.OriginX) / g.PixelSize))
	row = int(math.Floor((g.OriginY - y) / g.PixelSize))
	ok = col >= 0 && col < g.Width && row >= 0 && row < g.Height
	return col, row, ok
}

// Cells returns the number of cells in the grid.
func (g Grid) Cells() int {
	return g.Width * g.Height
}

// Validate checks structural invariants of the grid.
func (g Grid) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("invalid grid dimensions %dx%d", g.Width, g.Height)
	}
	if g.PixelSize <= 0 {
		return fmt.Errorf("invalid pixel size %g", g.PixelSize)
	}
	return nil
}

// Raster is one single-band float32 raster on a grid. Pixels are stored
// row-major from the top-left cell. A pixel equal to NoData carries no
// observation.
type Raster struct {
	Grid   Grid
	NoData float32
	Pixels []float32
}

// New returns a raster on the given grid with every pixel set to the
// default no-data sentinel.
func New(grid Grid) *Raster {
	r := &Raster{
		Grid:   grid,
		NoData: DefaultNoData,
		Pixels: make([]float32, grid.Cells()),
	}
	for i := range r.Pixels {
		r.Pixels[i] = r.NoData
	}
	return r
}

// At returns the pixel value at (col, row).
func (r *Raster) At(col, row int) float32 {
	return r.Pixels[row*r.Grid.Width+col]
}

// Set sets the pixel value at (col, row).
func (r *Raster) Set(col, row int, v float32) {
	r.Pixels[row*r.Grid.Width+col] = v
}

// Valid reports whether the pixel at (col, row) carries an observation.
func (r *Raster) Valid(col, row int) bool {
	return r.At(col, row) != r.NoData
}

// ValidCount returns the number of pixels carrying observations.
func (r *Raster) ValidCount() int {
	n := 0
	for _, v := range r.Pixels {
		if v != r.NoData {
			n++
		}
	}
	return n
}

// ResampleTo projects the raster onto the target grid using
// nearest-neighbour sampling. Nearest-neighbour is deliberate: backscatter
// intensities are physical values and must not be smoothed by
// interpolating kernels. Cells outside the source extent become no-data.
func (r *Raster) ResampleTo(target Grid) *Raster {
	if r.Grid.Equal(target) {
		out := &Raster{Grid: target, NoData: r.NoData, Pixels: make([]float32, len(r.Pixels))}
		copy(out.Pixels, r.Pixels)
		return out
	}

	out := &Raster{Grid: target, NoData: r.NoData, Pixels: make([]float32, target.Cells())}
	for row := 0; row < target.Height; row++ {
		for col := 0; col < target.Width; col++ {
			x, y := target.CellCenter(col, row)
			sc, sr, ok := r.Grid.CellAt(x, y)
			if ok {
				out.Pixels[row*target.Width+col] = r.At(sc, sr)
			} else {
				out.Pixels[row*target.Width+col] = r.NoData
			}
		}
	}
	return out
}
