package raster

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGrid(t *testing.T) *Grid {
	t.Helper()
	g := New(4, 3)
	g.CRS = DefaultCRS
	g.Transform = [6]float64{7.5, 0.1, 0, 44.2, 0, -0.1}
	for i := range g.Data {
		g.Data[i] = float64(i) * 0.5
	}
	return g
}

func TestGeoTIFFRoundTrip(t *testing.T) {
	g := testGrid(t)
	g.Set(2, 1, -9999)

	path := filepath.Join(t.TempDir(), "tile.tif")
	require.NoError(t, WriteGeoTIFF(path, g))

	got, err := ReadGeoTIFF(path)
	require.NoError(t, err)

	assert.Equal(t, g.Width, got.Width)
	assert.Equal(t, g.Height, got.Height)
	assert.Equal(t, g.Data, got.Data)
	assert.Equal(t, g.CRS, got.CRS)
	assert.InDelta(t, g.NoData, got.NoData, 1e-9)
	for i := range g.Transform {
		assert.InDelta(t, g.Transform[i], got.Transform[i], 1e-9, "transform[%d]", i)
	}
}

func TestGeoTIFFWithoutCRS(t *testing.T) {
	g := testGrid(t)
	g.CRS = ""

	data, err := EncodeGeoTIFF(g)
	require.NoError(t, err)
	got, err := DecodeGeoTIFF(data)
	require.NoError(t, err)
	assert.Empty(t, got.CRS)
}

func TestDecodeGeoTIFFErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad byte order", []byte("XX\x2a\x00\x08\x00\x00\x00")},
		{"bad magic", []byte("II\x00\x00\x08\x00\x00\x00")},
		{"truncated IFD", []byte("II\x2a\x00\x08\x00\x00\x00\xff\xff")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeGeoTIFF(tt.data)
			assert.Error(t, err)
		})
	}
}

// bandlessTIFF builds a structurally valid TIFF that declares dimensions but
// carries no strips, which the verifier must classify as corrupt.
func bandlessTIFF(t *testing.T) []byte {
	t.Helper()
	le := binary.LittleEndian
	buf := make([]byte, 0, 64)
	buf = append(buf, 'I', 'I')
	buf = le.AppendUint16(buf, tiffMagic)
	buf = le.AppendUint32(buf, 8) // IFD right after header
	buf = le.AppendUint16(buf, 2)
	for _, tag := range []uint16{tagImageWidth, tagImageLength} {
		buf = le.AppendUint16(buf, tag)
		buf = le.AppendUint16(buf, typeLong)
		buf = le.AppendUint32(buf, 1)
		buf = le.AppendUint32(buf, 4)
	}
	buf = le.AppendUint32(buf, 0)
	return buf
}

func TestDecodeGeoTIFFNoBands(t *testing.T) {
	_, err := DecodeGeoTIFF(bandlessTIFF(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no raster bands")
}

func TestReadGeoTIFFMissingFile(t *testing.T) {
	_, err := ReadGeoTIFF(filepath.Join(t.TempDir(), "nope.tif"))
	assert.Error(t, err)
}

func TestReadASCIIGrid(t *testing.T) {
	content := `ncols 3
nrows 2
xllcorner 100.0
yllcorner 40.0
cellsize 0.5
NODATA_value -1
1 2 3
4 -1 6
`
	path := filepath.Join(t.TempDir(), "cn_7.asc")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	g, err := ReadASCIIGrid(path)
	require.NoError(t, err)
	assert.Equal(t, 3, g.Width)
	assert.Equal(t, 2, g.Height)
	assert.Equal(t, []float64{1, 2, 3, 4, -1, 6}, g.Data)
	assert.Equal(t, -1.0, g.NoData)
	// Top-left corner sits one full grid height above the lower-left corner.
	assert.InDelta(t, 100.0, g.Transform[0], 1e-9)
	assert.InDelta(t, 41.0, g.Transform[3], 1e-9)

	mean, ok := g.MeanValid()
	require.True(t, ok)
	assert.InDelta(t, (1+2+3+4+6)/5.0, mean, 1e-9)
}

func TestReadASCIIGridCellCountMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.asc")
	require.NoError(t, os.WriteFile(path, []byte("ncols 2\nnrows 2\n1 2 3\n"), 0o644))
	_, err := ReadASCIIGrid(path)
	assert.Error(t, err)
}

func TestMeanValidAllNoData(t *testing.T) {
	g := New(2, 2)
	for i := range g.Data {
		g.Data[i] = g.NoData
	}
	_, ok := g.MeanValid()
	assert.False(t, ok)

	g.Data[0] = math.NaN()
	_, ok = g.MeanValid()
	assert.False(t, ok)
}

func TestAddInto(t *testing.T) {
	a := New(2, 2)
	b := New(2, 2)
	for i := range b.Data {
		a.Data[i] = 1
		b.Data[i] = float64(i)
	}
	require.NoError(t, a.AddInto(b))
	assert.Equal(t, []float64{1, 2, 3, 4}, a.Data)

	c := New(3, 1)
	assert.Error(t, a.AddInto(c))
}

func TestCellGeometry(t *testing.T) {
	g := testGrid(t)
	x, y := g.CellCenter(0, 0)
	assert.InDelta(t, 7.55, x, 1e-9)
	assert.InDelta(t, 44.15, y, 1e-9)

	minX, minY, maxX, maxY := g.CellBounds(1, 2)
	assert.InDelta(t, 7.6, minX, 1e-9)
	assert.InDelta(t, 7.7, maxX, 1e-9)
	assert.InDelta(t, 43.9, minY, 1e-9)
	assert.InDelta(t, 44.0, maxY, 1e-9)
}
