// Package runoff implements the NRCS-CN equivalent antecedent rainfall
// model (Peq0): per-zone curve numbers extracted from CN rasters, 5-day
// trailing cumulative rainfall over the 24h mean table, the Peq0 formula
// itself, and the additive merge into the base statistic tables.
package runoff

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"radarcli/internal/raster"
	"radarcli/internal/results"
)

// Lambda is the fixed initial-abstraction ratio of the generalized
// NRCS-CN model.
const Lambda = 0.2

// Peq0 computes the equivalent antecedent precipitation depth in mm from
// the 5-day cumulative rainfall p5 and the zone curve number cn. It is
// zero whenever p5 is not strictly positive.
func Peq0(p5, cn float64) float64 {
	if p5 <= 0 || math.IsNaN(p5) {
		return 0
	}
	s := 25400/cn - 254
	m := math.Sqrt(s*(p5+math.Pow((1-Lambda)/2, 2)*s)) - (1+Lambda)/2*s
	if m < 0 {
		m = 0
	}
	return m * (1 + Lambda*s/(s+m))
}

// zoneNumber matches the trailing 1-2 digit zone number of a CN raster
// file's base name.
var zoneNumber = regexp.MustCompile(`(\d{1,2})$`)

// CNFromDir computes the per-zone mean curve number from the ASCII grid
// rasters in dir, keyed IM_<nn>. Files without a parseable trailing zone
// number, and rasters that fail to read, are logged and skipped.
func CNFromDir(dir string, logger *slog.Logger) (map[string]float64, error) {
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read CN raster directory %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".asc") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	cn := make(map[string]float64)
	for _, name := range names {
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		m := zoneNumber.FindStringSubmatch(stem)
		if m == nil {
			logger.Warn("CN raster without zone number, skipping", slog.String("file", name))
			continue
		}
		num, _ := strconv.Atoi(m[1])
		key := fmt.Sprintf("IM_%02d", num)

		g, err := raster.ReadASCIIGrid(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("CN raster unreadable, skipping",
				slog.String("file", name),
				slog.String("error", err.Error()))
			continue
		}
		mean, ok := g.MeanValid()
		if !ok {
			logger.Warn("CN raster has no valid pixels, skipping", slog.String("file", name))
			continue
		}
		cn[key] = mean
		logger.Info("zone curve number",
			slog.String("zone", key),
			slog.Float64("cn", mean))
	}
	return cn, nil
}

// Cum5d derives the 5-day trailing cumulative rainfall table from the 24h
// mean table: for each zone and date, the sum of the 6 rows up to and
// including the prior row, today excluded. Rows with insufficient history
// get zero rather than being omitted, and missing cells contribute zero.
func Cum5d(t results.Table) results.Table {
	out := results.Table{Zones: append([]string(nil), t.Zones...)}
	for i, date := range t.Dates {
		for _, z := range t.Zones {
			var sum float64
			lo := i - 6
			if lo < 0 {
				lo = 0
			}
			for j := lo; j < i; j++ {
				if v, ok := t.Get(t.Dates[j], z); ok {
					sum += v
				}
			}
			out.Set(date, z, sum)
		}
	}
	return out
}

// Peq0Table applies the Peq0 formula to every cell of the cumulative
// table. Zones without a curve number yield zero for all dates, with one
// logged warning per zone.
func Peq0Table(cum results.Table, cn map[string]float64, logger *slog.Logger) results.Table {
	if logger == nil {
		logger = slog.Default()
	}
	out := results.Table{Zones: append([]string(nil), cum.Zones...)}
	for _, z := range cum.Zones {
		cnValue, ok := cn[z]
		if !ok {
			logger.Warn("no curve number for zone, Peq0 forced to zero", slog.String("zone", z))
		}
		for _, date := range cum.Dates {
			var peq float64
			if ok {
				if p5, present := cum.Get(date, z); present {
					peq = Peq0(p5, cnValue)
				}
			}
			out.Set(date, z, peq)
		}
	}
	return out
}

// MergeAdditive produces the with-Peq0 variant of a base table by
// date-aligned addition, treating missing entries on either side as zero.
// The base table is left unmodified.
func MergeAdditive(base, peq results.Table) results.Table {
	out := results.Table{Zones: append([]string(nil), base.Zones...)}
	for _, date := range base.Dates {
		for _, z := range base.Zones {
			v, _ := base.Get(date, z)
			p, _ := peq.Get(date, z)
			out.Set(date, z, v+p)
		}
	}
	return out
}
