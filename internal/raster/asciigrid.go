package raster

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ReadASCIIGrid reads an ESRI ASCII grid (.asc), the format the per-zone
// curve-number rasters are distributed in.
func ReadASCIIGrid(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	header := map[string]float64{}
	var values []float64
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		// Header lines are "key value" pairs with a non-numeric key.
		if len(fields) == 2 && len(values) == 0 {
			if _, err := strconv.ParseFloat(fields[0], 64); err != nil {
				v, err := strconv.ParseFloat(fields[1], 64)
				if err != nil {
					return nil, fmt.Errorf("%s: bad header line %q", path, sc.Text())
				}
				header[strings.ToLower(fields[0])] = v
				continue
			}
		}
		for _, fv := range fields {
			v, err := strconv.ParseFloat(fv, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: bad cell value %q", path, fv)
			}
			values = append(values, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	ncols := int(header["ncols"])
	nrows := int(header["nrows"])
	if ncols <= 0 || nrows <= 0 {
		return nil, fmt.Errorf("%s: missing ncols/nrows header", path)
	}
	if len(values) != ncols*nrows {
		return nil, fmt.Errorf("%s: expected %d cells, found %d", path, ncols*nrows, len(values))
	}

	cell := header["cellsize"]
	if cell == 0 {
		cell = 1
	}
	xll, xok := header["xllcorner"]
	if !xok {
		xll = header["xllcenter"] - cell/2
	}
	yll, yok := header["yllcorner"]
	if !yok {
		yll = header["yllcenter"] - cell/2
	}

	g := New(ncols, nrows)
	copy(g.Data, values)
	g.Transform = [6]float64{xll, cell, 0, yll + float64(nrows)*cell, 0, -cell}
	if nd, ok := header["nodata_value"]; ok {
		g.NoData = nd
	}
	return g, nil
}
