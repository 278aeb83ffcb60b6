package archive

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"radarcli/internal/raster"
)

// TileEntry is one classified slot of the integrity scan.
type TileEntry struct {
	Date      time.Time // calendar day at midnight
	Timestamp time.Time // expected or observed hour mark
	Path      string    // empty for missing slots
	Error     string    // set for corrupt tiles
}

// IntegrityReport classifies every expected hourly slot of the analyzed
// range as valid, corrupt or missing. It is built once by Verify before
// any aggregation starts and is read-only afterwards.
type IntegrityReport struct {
	Valid   []TileEntry
	Corrupt []TileEntry
	Missing []TileEntry

	days       map[string]struct{}
	validByDay map[string][]TileRef
}

// Summary holds the integrity scan counters.
type Summary struct {
	Valid   int
	Corrupt int
	Missing int
	Days    int
}

// Summary returns the scan counters.
func (r *IntegrityReport) Summary() Summary {
	return Summary{
		Valid:   len(r.Valid),
		Corrupt: len(r.Corrupt),
		Missing: len(r.Missing),
		Days:    len(r.days),
	}
}

// ValidForDay returns the valid tiles of one calendar day in chronological
// order. The slice is shared; callers must not mutate it.
func (r *IntegrityReport) ValidForDay(day time.Time) []TileRef {
	return r.validByDay[day.Format("2006-01-02")]
}

// probeTile opens a tile and reads band 1, mirroring what the aggregation
// stages will do later. Any failure marks the tile corrupt.
func probeTile(path string) error {
	_, err := raster.ReadGeoTIFF(path)
	return err
}

// Verify scans the archive for every calendar day in the inclusive range
// and classifies each of its 24 expected hourly slots. Per-tile failures
// are recorded, never propagated; a corrupt tile does not stop the scan.
func Verify(ctx context.Context, root string, start, end time.Time, logger *slog.Logger) *IntegrityReport {
	if logger == nil {
		logger = slog.Default()
	}
	report := &IntegrityReport{
		days:       make(map[string]struct{}),
		validByDay: make(map[string][]TileRef),
	}

	for day := midnight(start); !day.After(midnight(end)); day = day.AddDate(0, 0, 1) {
		if ctx.Err() != nil {
			logger.Warn("integrity scan interrupted", slog.String("at", day.Format("2006-01-02")))
			return report
		}
		dayKey := day.Format("2006-01-02")
		report.days[dayKey] = struct{}{}

		dir := DayDir(root, day)
		found, err := hourlyTiles(dir)
		if err != nil {
			// Absent day directory: all 24 hours are missing, no tile I/O.
			for hour := 0; hour < 24; hour++ {
				report.Missing = append(report.Missing, TileEntry{
					Date:      day,
					Timestamp: day.Add(time.Duration(hour) * time.Hour),
				})
			}
			continue
		}

		for ts, path := range found {
			if err := probeTile(path); err != nil {
				report.Corrupt = append(report.Corrupt, TileEntry{
					Date: day, Timestamp: ts, Path: path, Error: err.Error(),
				})
				continue
			}
			report.Valid = append(report.Valid, TileEntry{Date: day, Timestamp: ts, Path: path})
			report.validByDay[dayKey] = append(report.validByDay[dayKey], TileRef{Path: path, Timestamp: ts})
		}
		for hour := 0; hour < 24; hour++ {
			expected := day.Add(time.Duration(hour) * time.Hour)
			if _, ok := found[expected]; !ok {
				report.Missing = append(report.Missing, TileEntry{Date: day, Timestamp: expected})
			}
		}
	}

	for _, refs := range report.validByDay {
		sort.Slice(refs, func(i, j int) bool { return refs[i].Timestamp.Before(refs[j].Timestamp) })
	}
	sortEntries(report.Valid)
	sortEntries(report.Corrupt)
	sortEntries(report.Missing)
	return report
}

func sortEntries(entries []TileEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp.Before(entries[j].Timestamp) })
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Log writes the structured integrity summary the run log starts with:
// totals first, then corrupt tiles with their error text, then missing
// hours grouped per day.
func (r *IntegrityReport) Log(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s := r.Summary()
	logger.Info("archive integrity report",
		slog.Int("days_analyzed", s.Days),
		slog.Int("valid_tiles", s.Valid),
		slog.Int("corrupt_tiles", s.Corrupt),
		slog.Int("missing_tiles", s.Missing))

	for _, e := range r.Corrupt {
		logger.Error("corrupt tile",
			slog.String("date", e.Date.Format("2006-01-02")),
			slog.String("hour", e.Timestamp.Format("15:04")),
			slog.String("path", e.Path),
			slog.String("error", e.Error))
	}

	byDay := make(map[string][]string)
	var days []string
	for _, e := range r.Missing {
		key := e.Date.Format("2006-01-02")
		if _, seen := byDay[key]; !seen {
			days = append(days, key)
		}
		byDay[key] = append(byDay[key], e.Timestamp.Format("15:04"))
	}
	sort.Strings(days)
	for _, day := range days {
		logger.Warn("missing tiles",
			slog.String("date", day),
			slog.Any("hours", byDay[day]))
	}
}
