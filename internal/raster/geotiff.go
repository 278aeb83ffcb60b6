package raster

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// The codec below handles the subset of GeoTIFF the radar archive actually
// contains: single-band, strip-organized, uncompressed baseline TIFF with
// ModelTiepoint/ModelPixelScale georeferencing and the GDAL nodata tag.
// Anything outside that subset is reported as an error so the integrity
// verifier can classify the tile as corrupt.

const tiffMagic = 42

// TIFF tags.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagSampleFormat    = 339
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoAsciiParams  = 34737
	tagGDALNoData      = 42113
)

// TIFF field types.
const (
	typeByte   = 1
	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12
)

// Sample formats.
const (
	sampleUint  = 1
	sampleInt   = 2
	sampleFloat = 3
)

var typeSizes = map[uint16]int{
	typeByte:   1,
	typeASCII:  1,
	typeShort:  2,
	typeLong:   4,
	typeDouble: 8,
}

type ifdEntry struct {
	typ   uint16
	count uint32
	raw   []byte
	order binary.ByteOrder
}

func (e ifdEntry) ints() ([]int64, error) {
	size, ok := typeSizes[e.typ]
	if !ok {
		return nil, fmt.Errorf("geotiff: unsupported field type %d", e.typ)
	}
	out := make([]int64, e.count)
	for i := range out {
		b := e.raw[i*size:]
		switch e.typ {
		case typeByte:
			out[i] = int64(b[0])
		case typeShort:
			out[i] = int64(e.order.Uint16(b))
		case typeLong:
			out[i] = int64(e.order.Uint32(b))
		default:
			return nil, fmt.Errorf("geotiff: field type %d is not integral", e.typ)
		}
	}
	return out, nil
}

func (e ifdEntry) doubles() ([]float64, error) {
	if e.typ != typeDouble {
		return nil, fmt.Errorf("geotiff: field type %d is not DOUBLE", e.typ)
	}
	out := make([]float64, e.count)
	for i := range out {
		out[i] = math.Float64frombits(e.order.Uint64(e.raw[i*8:]))
	}
	return out, nil
}

func (e ifdEntry) ascii() string {
	return strings.TrimRight(string(e.raw[:e.count]), "\x00")
}

// ReadGeoTIFF reads a single-band GeoTIFF tile from disk.
func ReadGeoTIFF(path string) (*Grid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	g, err := DecodeGeoTIFF(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// DecodeGeoTIFF decodes an in-memory GeoTIFF tile.
func DecodeGeoTIFF(data []byte) (*Grid, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("geotiff: truncated header")
	}
	var order binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("geotiff: bad byte-order mark %q", data[:2])
	}
	if order.Uint16(data[2:4]) != tiffMagic {
		return nil, fmt.Errorf("geotiff: bad magic number")
	}

	entries, err := readIFD(data, order, order.Uint32(data[4:8]))
	if err != nil {
		return nil, err
	}

	intTag := func(tag uint16, def int64) (int64, error) {
		e, ok := entries[tag]
		if !ok {
			return def, nil
		}
		vs, err := e.ints()
		if err != nil || len(vs) == 0 {
			return def, err
		}
		return vs[0], err
	}

	width, err := intTag(tagImageWidth, 0)
	if err != nil {
		return nil, err
	}
	height, err := intTag(tagImageLength, 0)
	if err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("geotiff: invalid dimensions %dx%d", width, height)
	}

	samples, err := intTag(tagSamplesPerPixel, 1)
	if err != nil {
		return nil, err
	}
	if samples < 1 {
		return nil, fmt.Errorf("geotiff: file has no raster bands")
	}
	if _, ok := entries[tagStripOffsets]; !ok {
		return nil, fmt.Errorf("geotiff: file has no raster bands")
	}

	if c, err := intTag(tagCompression, 1); err != nil {
		return nil, err
	} else if c != 1 {
		return nil, fmt.Errorf("geotiff: unsupported compression %d", c)
	}
	if pc, err := intTag(tagPlanarConfig, 1); err != nil {
		return nil, err
	} else if pc != 1 {
		return nil, fmt.Errorf("geotiff: unsupported planar configuration %d", pc)
	}

	bits, err := intTag(tagBitsPerSample, 8)
	if err != nil {
		return nil, err
	}
	format, err := intTag(tagSampleFormat, sampleUint)
	if err != nil {
		return nil, err
	}
	decode, sampleSize, err := sampleDecoder(int(bits), int(format), order)
	if err != nil {
		return nil, err
	}

	offsets, err := entries[tagStripOffsets].ints()
	if err != nil {
		return nil, err
	}
	countsEntry, ok := entries[tagStripByteCounts]
	if !ok {
		return nil, fmt.Errorf("geotiff: missing strip byte counts")
	}
	counts, err := countsEntry.ints()
	if err != nil {
		return nil, err
	}
	if len(counts) != len(offsets) {
		return nil, fmt.Errorf("geotiff: %d strip offsets but %d byte counts", len(offsets), len(counts))
	}

	g := New(int(width), int(height))
	pixelStride := sampleSize * int(samples)
	idx := 0
	for s := range offsets {
		off, n := int(offsets[s]), int(counts[s])
		if off < 0 || n < 0 || off+n > len(data) {
			return nil, fmt.Errorf("geotiff: strip %d out of bounds", s)
		}
		strip := data[off : off+n]
		for p := 0; p+pixelStride <= len(strip) && idx < len(g.Data); p += pixelStride {
			// Band 1 only: the first sample of each pixel.
			g.Data[idx] = decode(strip[p:])
			idx++
		}
	}
	if idx != len(g.Data) {
		return nil, fmt.Errorf("geotiff: short pixel data, got %d of %d", idx, len(g.Data))
	}

	applyGeoTags(g, entries)
	return g, nil
}

func readIFD(data []byte, order binary.ByteOrder, offset uint32) (map[uint16]ifdEntry, error) {
	off := int(offset)
	if off < 8 || off+2 > len(data) {
		return nil, fmt.Errorf("geotiff: IFD offset out of bounds")
	}
	n := int(order.Uint16(data[off:]))
	off += 2
	if off+n*12 > len(data) {
		return nil, fmt.Errorf("geotiff: truncated IFD")
	}
	entries := make(map[uint16]ifdEntry, n)
	for i := 0; i < n; i++ {
		b := data[off+i*12:]
		tag := order.Uint16(b)
		typ := order.Uint16(b[2:])
		count := order.Uint32(b[4:])
		size, ok := typeSizes[typ]
		if !ok {
			continue // unknown field type, skip the tag
		}
		total := size * int(count)
		var raw []byte
		if total <= 4 {
			raw = b[8 : 8+4]
		} else {
			vo := int(order.Uint32(b[8:]))
			if vo < 0 || vo+total > len(data) {
				return nil, fmt.Errorf("geotiff: tag %d value out of bounds", tag)
			}
			raw = data[vo : vo+total]
		}
		entries[tag] = ifdEntry{typ: typ, count: count, raw: raw, order: order}
	}
	return entries, nil
}

func sampleDecoder(bits, format int, order binary.ByteOrder) (func([]byte) float64, int, error) {
	switch {
	case format == sampleFloat && bits == 32:
		return func(b []byte) float64 {
			return float64(math.Float32frombits(order.Uint32(b)))
		}, 4, nil
	case format == sampleFloat && bits == 64:
		return func(b []byte) float64 {
			return math.Float64frombits(order.Uint64(b))
		}, 8, nil
	case format == sampleInt && bits == 16:
		return func(b []byte) float64 { return float64(int16(order.Uint16(b))) }, 2, nil
	case format == sampleInt && bits == 32:
		return func(b []byte) float64 { return float64(int32(order.Uint32(b))) }, 4, nil
	case format == sampleUint && bits == 8:
		return func(b []byte) float64 { return float64(b[0]) }, 1, nil
	case format == sampleUint && bits == 16:
		return func(b []byte) float64 { return float64(order.Uint16(b)) }, 2, nil
	case format == sampleUint && bits == 32:
		return func(b []byte) float64 { return float64(order.Uint32(b)) }, 4, nil
	default:
		return nil, 0, fmt.Errorf("geotiff: unsupported sample format %d/%d bits", format, bits)
	}
}

func applyGeoTags(g *Grid, entries map[uint16]ifdEntry) {
	scale := []float64{1, 1}
	if e, ok := entries[tagModelPixelScale]; ok {
		if vs, err := e.doubles(); err == nil && len(vs) >= 2 {
			scale = vs
		}
	}
	if e, ok := entries[tagModelTiepoint]; ok {
		if vs, err := e.doubles(); err == nil && len(vs) >= 6 {
			// Tiepoint (i, j, k) -> (x, y, z); normalize to the (0, 0) origin.
			g.Transform = [6]float64{
				vs[3] - vs[0]*scale[0], scale[0], 0,
				vs[4] + vs[1]*scale[1], 0, -scale[1],
			}
		}
	}
	if e, ok := entries[tagGeoAsciiParams]; ok {
		g.CRS = strings.TrimRight(e.ascii(), "|")
	}
	if e, ok := entries[tagGDALNoData]; ok {
		if v, err := strconv.ParseFloat(strings.TrimSpace(e.ascii()), 64); err == nil {
			g.NoData = v
		}
	}
}

// WriteGeoTIFF materializes the grid as a little-endian float64 GeoTIFF.
// It is used both for scratch artifacts between pipeline stages and for
// synthesizing archives in tests.
func WriteGeoTIFF(path string, g *Grid) error {
	data, err := EncodeGeoTIFF(g)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

type tiffField struct {
	tag   uint16
	typ   uint16
	count uint32
	value []byte // raw little-endian value bytes
}

// EncodeGeoTIFF encodes the grid as a single-strip float64 GeoTIFF.
func EncodeGeoTIFF(g *Grid) ([]byte, error) {
	if g.Width <= 0 || g.Height <= 0 || len(g.Data) != g.Width*g.Height {
		return nil, fmt.Errorf("geotiff: cannot encode malformed grid")
	}
	le := binary.LittleEndian

	pixels := make([]byte, len(g.Data)*8)
	for i, v := range g.Data {
		le.PutUint64(pixels[i*8:], math.Float64bits(v))
	}
	const dataOffset = 8
	ifdOffset := dataOffset + len(pixels)

	u16 := func(v uint16) []byte { b := make([]byte, 2); le.PutUint16(b, v); return b }
	u32 := func(v uint32) []byte { b := make([]byte, 4); le.PutUint32(b, v); return b }
	f64s := func(vs ...float64) []byte {
		b := make([]byte, len(vs)*8)
		for i, v := range vs {
			le.PutUint64(b[i*8:], math.Float64bits(v))
		}
		return b
	}

	sx := g.Transform[1]
	sy := -g.Transform[5]
	fields := []tiffField{
		{tagImageWidth, typeLong, 1, u32(uint32(g.Width))},
		{tagImageLength, typeLong, 1, u32(uint32(g.Height))},
		{tagBitsPerSample, typeShort, 1, u16(64)},
		{tagCompression, typeShort, 1, u16(1)},
		{tagPhotometric, typeShort, 1, u16(1)},
		{tagStripOffsets, typeLong, 1, u32(dataOffset)},
		{tagSamplesPerPixel, typeShort, 1, u16(1)},
		{tagRowsPerStrip, typeLong, 1, u32(uint32(g.Height))},
		{tagStripByteCounts, typeLong, 1, u32(uint32(len(pixels)))},
		{tagPlanarConfig, typeShort, 1, u16(1)},
		{tagSampleFormat, typeShort, 1, u16(sampleFloat)},
		{tagModelPixelScale, typeDouble, 3, f64s(sx, sy, 0)},
		{tagModelTiepoint, typeDouble, 6, f64s(0, 0, 0, g.Transform[0], g.Transform[3], 0)},
	}
	if g.CRS != "" {
		s := append([]byte(g.CRS+"|"), 0)
		fields = append(fields, tiffField{tagGeoAsciiParams, typeASCII, uint32(len(s)), s})
	}
	nd := append([]byte(strconv.FormatFloat(g.NoData, 'g', -1, 64)), 0)
	fields = append(fields, tiffField{tagGDALNoData, typeASCII, uint32(len(nd)), nd})

	// External values live immediately after the IFD.
	extOffset := ifdOffset + 2 + len(fields)*12 + 4
	var ext bytes.Buffer

	var buf bytes.Buffer
	buf.WriteString("II")
	buf.Write(u16(tiffMagic))
	buf.Write(u32(uint32(ifdOffset)))
	buf.Write(pixels)
	buf.Write(u16(uint16(len(fields))))
	for _, f := range fields {
		buf.Write(u16(f.tag))
		buf.Write(u16(f.typ))
		buf.Write(u32(f.count))
		if len(f.value) <= 4 {
			padded := make([]byte, 4)
			copy(padded, f.value)
			buf.Write(padded)
		} else {
			buf.Write(u32(uint32(extOffset + ext.Len())))
			ext.Write(f.value)
			if ext.Len()%2 == 1 {
				ext.WriteByte(0) // word alignment
			}
		}
	}
	buf.Write(u32(0)) // no further IFDs
	buf.Write(ext.Bytes())
	return buf.Bytes(), nil
}
