package analysis

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"radarcli/internal/archive"
	"radarcli/internal/raster"
)

// WindowSum is the pixel-wise sum of every tile falling inside one window,
// materialized to a scratch GeoTIFF for the cropping stage. The caller owns
// the scratch artifact and must Dispose it once consumed.
type WindowSum struct {
	Window Window
	Grid   *raster.Grid
	Path   string
	Tiles  []archive.TileRef
}

// Dispose removes the scratch artifact. Safe to call on a nil sum.
func (s *WindowSum) Dispose() {
	if s == nil || s.Path == "" {
		return
	}
	_ = os.Remove(s.Path)
}

// SumWindow sums band 1 of all tiles whose timestamp falls in win. The
// first readable matching tile supplies the metadata template, with the
// CRS defaulted when absent. A tile failing to open mid-sum is logged and
// skipped. A window with no matching tiles yields a nil sum and no error.
func SumWindow(tiles []archive.TileRef, win Window, scratchDir string, logger *slog.Logger) (*WindowSum, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var matched []archive.TileRef
	for _, ref := range tiles {
		if win.Contains(ref.Timestamp) {
			matched = append(matched, ref)
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}

	var sum *raster.Grid
	var included []archive.TileRef
	for _, ref := range matched {
		g, err := raster.ReadGeoTIFF(ref.Path)
		if err != nil {
			logger.Warn("tile unreadable during summation",
				slog.String("tile", filepath.Base(ref.Path)),
				slog.String("window", win.String()),
				slog.String("error", err.Error()))
			continue
		}
		if sum == nil {
			if g.CRS == "" {
				g.CRS = raster.DefaultCRS
			}
			sum = g
		} else if err := sum.AddInto(g); err != nil {
			logger.Warn("tile skipped during summation",
				slog.String("tile", filepath.Base(ref.Path)),
				slog.String("error", err.Error()))
			continue
		}
		included = append(included, ref)
	}
	if sum == nil {
		logger.Warn("no readable tiles in window", slog.String("window", win.String()))
		return nil, nil
	}

	path := filepath.Join(scratchDir,
		fmt.Sprintf("sum_%s.tif", win.Start.Format("20060102_1504")))
	if err := raster.WriteGeoTIFF(path, sum); err != nil {
		return nil, fmt.Errorf("failed to materialize window sum: %w", err)
	}

	return &WindowSum{Window: win, Grid: sum, Path: path, Tiles: included}, nil
}
