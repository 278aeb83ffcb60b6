// Package archive indexes the hourly radar tile archive. The archive is a
// fixed root/YYYY/MM/DD hierarchy of .tif tiles whose file names embed the
// acquisition timestamp; only top-of-hour tiles participate in analysis.
package archive

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// TileRef identifies one hourly tile on disk. The tile covers the
// half-open hour [Timestamp, Timestamp+1h).
type TileRef struct {
	Path      string
	Timestamp time.Time
}

var (
	// 14-digit names carry seconds, 12-digit ones stop at minutes. The
	// longer pattern is tried first so a 14-digit name is never truncated.
	ts14 = regexp.MustCompile(`(\d{4})(\d{2})(\d{2})(\d{2})(\d{2})(\d{2})`)
	ts12 = regexp.MustCompile(`(\d{4})(\d{2})(\d{2})(\d{2})(\d{2})`)
)

// ParseTimestamp extracts the embedded timestamp from a tile file name.
func ParseTimestamp(name string) (time.Time, bool) {
	base := filepath.Base(name)
	if m := ts14.FindStringSubmatch(base); m != nil {
		t, err := time.Parse("20060102150405", strings.Join(m[1:], ""))
		if err == nil {
			return t, true
		}
	}
	if m := ts12.FindStringSubmatch(base); m != nil {
		t, err := time.Parse("200601021504", strings.Join(m[1:], ""))
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// topOfHour reports whether ts is an exact hour mark.
func topOfHour(ts time.Time) bool {
	return ts.Minute() == 0 && ts.Second() == 0
}

// DayDir returns the archive directory holding one calendar day's tiles.
func DayDir(root string, day time.Time) string {
	return filepath.Join(root, day.Format("2006"), day.Format("01"), day.Format("02"))
}

// isTile matches the archive's tile extension.
func isTile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".tif")
}

// hourlyTiles scans one day directory for top-of-hour tiles, keyed by
// timestamp. It does not open the files.
func hourlyTiles(dir string) (map[time.Time]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read day directory %s: %w", dir, err)
	}
	found := make(map[time.Time]string)
	for _, e := range entries {
		if e.IsDir() || !isTile(e.Name()) {
			continue
		}
		ts, ok := ParseTimestamp(e.Name())
		if !ok || !topOfHour(ts) {
			continue
		}
		found[ts] = filepath.Join(dir, e.Name())
	}
	return found, nil
}

// DayFiles resolves the valid tile list for one day, preferring the
// integrity report so tiles are not re-validated. Without a report it
// falls back to a direct archive scan.
func DayFiles(root string, day time.Time, report *IntegrityReport, logger *slog.Logger) []TileRef {
	if logger == nil {
		logger = slog.Default()
	}
	if report != nil {
		return report.ValidForDay(day)
	}

	dir := DayDir(root, day)
	found, err := hourlyTiles(dir)
	if err != nil {
		logger.Warn("day directory not readable",
			slog.String("date", day.Format("2006-01-02")),
			slog.String("dir", dir),
			slog.String("error", err.Error()))
		return nil
	}

	var refs []TileRef
	for ts, path := range found {
		if err := probeTile(path); err != nil {
			logger.Warn("skipping unreadable tile",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		refs = append(refs, TileRef{Path: path, Timestamp: ts})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Timestamp.Before(refs[j].Timestamp) })
	return refs
}
