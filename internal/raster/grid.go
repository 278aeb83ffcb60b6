package raster

import (
	"fmt"
	"math"
)

// DefaultCRS is assumed whenever a tile carries no CRS of its own.
const DefaultCRS = "EPSG:4326"

// NoDataSentinel marks pixels outside a zone mask. Negative values are
// never valid precipitation, so the sentinel doubles as "invalid".
const NoDataSentinel = -9999

// Grid is a single-band raster held in memory. Data is row-major with
// row 0 at the top. Transform is the GDAL-style affine geotransform:
//
//	x = Transform[0] + col*Transform[1] + row*Transform[2]
//	y = Transform[3] + col*Transform[4] + row*Transform[5]
//
// mapping the top-left corner of a cell to georeferenced coordinates.
type Grid struct {
	Width     int
	Height    int
	Transform [6]float64
	CRS       string
	NoData    float64
	Data      []float64
}

// New allocates a zero-filled grid with an identity-like transform and the
// default nodata sentinel.
func New(width, height int) *Grid {
	return &Grid{
		Width:     width,
		Height:    height,
		Transform: [6]float64{0, 1, 0, 0, 0, -1},
		NoData:    NoDataSentinel,
		Data:      make([]float64, width*height),
	}
}

// CloneHeader returns a grid with the same geometry, CRS and nodata value
// but freshly allocated zero data.
func (g *Grid) CloneHeader() *Grid {
	return &Grid{
		Width:     g.Width,
		Height:    g.Height,
		Transform: g.Transform,
		CRS:       g.CRS,
		NoData:    g.NoData,
		Data:      make([]float64, g.Width*g.Height),
	}
}

// At returns the value at (col, row).
func (g *Grid) At(col, row int) float64 {
	return g.Data[row*g.Width+col]
}

// Set writes the value at (col, row).
func (g *Grid) Set(col, row int, v float64) {
	g.Data[row*g.Width+col] = v
}

// CellCenter returns the georeferenced center of the cell at (col, row).
func (g *Grid) CellCenter(col, row int) (x, y float64) {
	fc, fr := float64(col)+0.5, float64(row)+0.5
	x = g.Transform[0] + fc*g.Transform[1] + fr*g.Transform[2]
	y = g.Transform[3] + fc*g.Transform[4] + fr*g.Transform[5]
	return x, y
}

// CellBounds returns the axis-aligned bounds of the cell at (col, row).
// It assumes a north-up transform (no rotation terms).
func (g *Grid) CellBounds(col, row int) (minX, minY, maxX, maxY float64) {
	x0 := g.Transform[0] + float64(col)*g.Transform[1]
	y0 := g.Transform[3] + float64(row)*g.Transform[5]
	x1 := x0 + g.Transform[1]
	y1 := y0 + g.Transform[5]
	return math.Min(x0, x1), math.Min(y0, y1), math.Max(x0, x1), math.Max(y0, y1)
}

// MeanValid returns the mean over pixels that are neither nodata nor NaN.
// ok is false when no pixel qualifies.
func (g *Grid) MeanValid() (mean float64, ok bool) {
	var sum float64
	var n int
	for _, v := range g.Data {
		if math.IsNaN(v) || v == g.NoData {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// AddInto accumulates src pixel values into g. Both grids must share the
// same dimensions; the sum is a plain pixel-wise addition, matching the
// sum-then-crop strategy where masking happens only after accumulation.
func (g *Grid) AddInto(src *Grid) error {
	if src.Width != g.Width || src.Height != g.Height {
		return fmt.Errorf("raster: dimension mismatch %dx%d vs %dx%d",
			src.Width, src.Height, g.Width, g.Height)
	}
	for i, v := range src.Data {
		g.Data[i] += v
	}
	return nil
}
