// Package zone loads the per-zone boundary polygons and applies them as
// spatial masks over summed rasters. A zone is named after its boundary
// file's base name and keys every result table in the run.
package zone

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"radarcli/internal/raster"
)

// Zone is a named polygon boundary defining one spatial analysis unit.
type Zone struct {
	Name     string
	Path     string
	Geometry orb.MultiPolygon
}

// Load reads a GeoJSON boundary file. All polygonal features in the file
// contribute to the zone's geometry.
func Load(path string) (*Zone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	geoms, err := parseGeometries(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var mp orb.MultiPolygon
	for _, g := range geoms {
		switch v := g.(type) {
		case orb.Polygon:
			mp = append(mp, v)
		case orb.MultiPolygon:
			mp = append(mp, v...)
		}
	}
	if len(mp) == 0 {
		return nil, fmt.Errorf("%s: no polygon geometry", path)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &Zone{Name: name, Path: path, Geometry: mp}, nil
}

// LoadDir loads every .geojson boundary in dir, sorted by file name. The
// sort order is the zone column order in every exported table.
func LoadDir(dir string) ([]*Zone, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read boundary directory %s: %w", dir, err)
	}
	var zones []*Zone
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".geojson") {
			continue
		}
		z, err := Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].Name < zones[j].Name })
	if len(zones) == 0 {
		return nil, fmt.Errorf("no .geojson boundaries in %s", dir)
	}
	return zones, nil
}

func parseGeometries(data []byte) ([]orb.Geometry, error) {
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil {
		var out []orb.Geometry
		for _, f := range fc.Features {
			if f.Geometry != nil {
				out = append(out, f.Geometry)
			}
		}
		return out, nil
	}
	if f, err := geojson.UnmarshalFeature(data); err == nil && f.Geometry != nil {
		return []orb.Geometry{f.Geometry}, nil
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, err
	}
	return []orb.Geometry{g.Geometry()}, nil
}

// Crop masks g to the zone polygon. Pixels whose cell is touched by the
// polygon keep their value; everything else becomes the nodata sentinel.
// The result is trimmed to the polygon's pixel bounding box. An empty
// intersection is an error the caller treats as "no data", not as fatal.
func (z *Zone) Crop(g *raster.Grid) (*raster.Grid, error) {
	bound := z.Geometry.Bound()

	colMin, rowMin := pixelOf(g, bound.Min[0], bound.Max[1])
	colMax, rowMax := pixelOf(g, bound.Max[0], bound.Min[1])
	colMin, colMax = clamp(colMin, 0, g.Width-1), clamp(colMax, 0, g.Width-1)
	rowMin, rowMax = clamp(rowMin, 0, g.Height-1), clamp(rowMax, 0, g.Height-1)
	if colMin > colMax || rowMin > rowMax {
		return nil, fmt.Errorf("zone %s does not overlap the raster extent", z.Name)
	}

	out := raster.New(colMax-colMin+1, rowMax-rowMin+1)
	out.CRS = g.CRS
	out.NoData = raster.NoDataSentinel
	out.Transform = g.Transform
	out.Transform[0] = g.Transform[0] + float64(colMin)*g.Transform[1]
	out.Transform[3] = g.Transform[3] + float64(rowMin)*g.Transform[5]

	touched := 0
	for row := rowMin; row <= rowMax; row++ {
		for col := colMin; col <= colMax; col++ {
			if z.touches(g, col, row) {
				out.Set(col-colMin, row-rowMin, g.At(col, row))
				touched++
			} else {
				out.Set(col-colMin, row-rowMin, raster.NoDataSentinel)
			}
		}
	}
	if touched == 0 {
		return nil, fmt.Errorf("zone %s touches no raster cells", z.Name)
	}
	return out, nil
}

// touches reports whether the polygon intersects the cell rectangle at all,
// so boundary-touching pixels are included rather than interior-only ones.
func (z *Zone) touches(g *raster.Grid, col, row int) bool {
	minX, minY, maxX, maxY := g.CellBounds(col, row)

	cx, cy := g.CellCenter(col, row)
	probes := []orb.Point{
		{cx, cy},
		{minX, minY}, {minX, maxY}, {maxX, minY}, {maxX, maxY},
	}
	for _, p := range probes {
		if planar.MultiPolygonContains(z.Geometry, p) {
			return true
		}
	}

	// Polygon edge passing through the cell without containing a corner.
	for _, poly := range z.Geometry {
		for _, ring := range poly {
			for i := 1; i < len(ring); i++ {
				if segmentIntersectsRect(ring[i-1], ring[i], minX, minY, maxX, maxY) {
					return true
				}
			}
		}
	}
	return false
}

func pixelOf(g *raster.Grid, x, y float64) (col, row int) {
	col = int((x - g.Transform[0]) / g.Transform[1])
	row = int((y - g.Transform[3]) / g.Transform[5])
	return col, row
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// segmentIntersectsRect reports whether segment ab intersects the closed
// axis-aligned rectangle, endpoints included.
func segmentIntersectsRect(a, b orb.Point, minX, minY, maxX, maxY float64) bool {
	inside := func(p orb.Point) bool {
		return p[0] >= minX && p[0] <= maxX && p[1] >= minY && p[1] <= maxY
	}
	if inside(a) || inside(b) {
		return true
	}
	corners := [4]orb.Point{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}}
	for i := range corners {
		if segmentsIntersect(a, b, corners[i], corners[(i+1)%4]) {
			return true
		}
	}
	return false
}

func segmentsIntersect(p1, p2, p3, p4 orb.Point) bool {
	d1 := cross(p3, p4, p1)
	d2 := cross(p3, p4, p2)
	d3 := cross(p1, p2, p3)
	d4 := cross(p1, p2, p4)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(p3, p4, p1)) ||
		(d2 == 0 && onSegment(p3, p4, p2)) ||
		(d3 == 0 && onSegment(p1, p2, p3)) ||
		(d4 == 0 && onSegment(p1, p2, p4))
}

func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return p[0] >= min(a[0], b[0]) && p[0] <= max(a[0], b[0]) &&
		p[1] >= min(a[1], b[1]) && p[1] <= max(a[1], b[1])
}
