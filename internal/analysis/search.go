package analysis

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"radarcli/internal/archive"
	"radarcli/internal/zone"
)

// WindowRecord is one evaluated window of a search, kept for the audit log.
type WindowRecord struct {
	Window Window
	Stats  WindowStats
	Tiles  []string // base names of the tiles summed into the window
}

// SearchParams carries the fixed inputs of one sliding-window search.
type SearchParams struct {
	Zone          *zone.Zone
	Day           time.Time
	DurationHours int
	Stats         StatsConfig
	ScratchDir    string
	Logger        *slog.Logger
}

// Search finds the window with the maximum mean statistic for one zone,
// day and duration, returning it together with the ordered log of every
// window that produced statistics.
//
// Duration 24h is the calendar-day special case: exactly one window,
// bounded to that day's tiles. Any other duration slides hour-by-hour over
// [min timestamp, max timestamp + 1h) across the full available tile set,
// which may straddle into neighboring days; the result is still attributed
// to the day the search was invoked for. Ties on the maximum mean resolve
// to the earliest window because selection is a linear max-scan in
// chronological order.
func Search(ctx context.Context, tiles []archive.TileRef, p SearchParams) (*WindowRecord, []WindowRecord, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		slog.String("zone", p.Zone.Name),
		slog.String("date", p.Day.Format("2006-01-02")),
		slog.Int("duration_hours", p.DurationHours))

	if len(tiles) == 0 {
		logger.Info("no tiles available for search")
		return nil, nil, nil
	}

	if p.DurationHours == 24 {
		return searchCalendarDay(tiles, p, logger)
	}
	return searchRolling(ctx, tiles, p, logger)
}

// searchCalendarDay evaluates the single [day 00:00, day+1 00:00) window
// over the day's own tiles.
func searchCalendarDay(tiles []archive.TileRef, p SearchParams, logger *slog.Logger) (*WindowRecord, []WindowRecord, error) {
	var dayTiles []archive.TileRef
	for _, ref := range tiles {
		y, m, d := ref.Timestamp.Date()
		py, pm, pd := p.Day.Date()
		if y == py && m == pm && d == pd {
			dayTiles = append(dayTiles, ref)
		}
	}
	if len(dayTiles) == 0 {
		logger.Info("no tiles on the calendar day")
		return nil, nil, nil
	}

	st, rec := evaluateWindow(dayTiles, CalendarDay(p.Day), p, logger)
	if st == nil {
		return nil, nil, nil
	}
	return &rec, []WindowRecord{rec}, nil
}

// searchRolling slides duration-sized windows in 1-hour steps over the
// span covered by the available tiles. The span end is the last tile's
// timestamp plus one hour so that tile's full coverage stays eligible.
func searchRolling(ctx context.Context, tiles []archive.TileRef, p SearchParams, logger *slog.Logger) (*WindowRecord, []WindowRecord, error) {
	minTime, maxTime := tiles[0].Timestamp, tiles[0].Timestamp
	for _, ref := range tiles[1:] {
		if ref.Timestamp.Before(minTime) {
			minTime = ref.Timestamp
		}
		if ref.Timestamp.After(maxTime) {
			maxTime = ref.Timestamp
		}
	}
	spanEnd := maxTime.Add(time.Hour)
	duration := time.Duration(p.DurationHours) * time.Hour

	logger.Debug("rolling search span",
		slog.Time("span_start", minTime),
		slog.Time("span_end", spanEnd))

	best := -1
	var records []WindowRecord
	for start := minTime; !start.Add(duration).After(spanEnd); start = start.Add(time.Hour) {
		if err := ctx.Err(); err != nil {
			return nil, records, err
		}
		st, rec := evaluateWindow(tiles, Window{Start: start, End: start.Add(duration)}, p, logger)
		if st == nil {
			continue
		}
		records = append(records, rec)
		// Strict greater-than keeps the earliest window on ties.
		if best < 0 || st.Mean() > records[best].Stats.Mean() {
			best = len(records) - 1
		}
	}

	logger.Info("rolling search finished",
		slog.Int("windows_evaluated", len(records)))
	if best < 0 {
		return nil, records, nil
	}
	return &records[best], records, nil
}

// evaluateWindow runs sum -> crop -> statistics for one candidate window.
// Scratch artifacts are removed before returning, whatever the outcome.
func evaluateWindow(tiles []archive.TileRef, win Window, p SearchParams, logger *slog.Logger) (WindowStats, WindowRecord) {
	sum, err := SumWindow(tiles, win, p.ScratchDir, logger)
	if err != nil {
		logger.Warn("window summation failed",
			slog.String("window", win.String()),
			slog.String("error", err.Error()))
		return nil, WindowRecord{}
	}
	if sum == nil {
		return nil, WindowRecord{}
	}
	defer sum.Dispose()

	cropped, err := p.Zone.Crop(sum.Grid)
	if err != nil {
		logger.Warn("zone crop failed",
			slog.String("window", win.String()),
			slog.String("error", err.Error()))
		return nil, WindowRecord{}
	}

	st := Evaluate(cropped, p.Stats)
	if st == nil {
		logger.Debug("window has no valid pixels", slog.String("window", win.String()))
		return nil, WindowRecord{}
	}

	names := make([]string, len(sum.Tiles))
	for i, ref := range sum.Tiles {
		names[i] = filepath.Base(ref.Path)
	}
	return st, WindowRecord{Window: win, Stats: st, Tiles: names}
}

// RankByMean returns the records sorted by descending mean. The input is
// left untouched; the first entry of the result is the maximum window.
func RankByMean(records []WindowRecord) []WindowRecord {
	ranked := make([]WindowRecord, len(records))
	copy(ranked, records)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Stats.Mean() > ranked[j].Stats.Mean()
	})
	return ranked
}

// LogRanking writes the ranked window listing for one zone/day/duration,
// flagging the top entry as the maximum.
func LogRanking(logger *slog.Logger, zoneName string, day time.Time, durationHours int, records []WindowRecord) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		slog.String("zone", zoneName),
		slog.String("date", day.Format("2006-01-02")),
		slog.Int("duration_hours", durationHours))

	if len(records) == 0 {
		logger.Info("no valid windows analyzed")
		return
	}
	ranked := RankByMean(records)
	logger.Info("window ranking", slog.Int("windows", len(ranked)))
	for i, rec := range ranked {
		logger.Info("ranked window",
			slog.Int("rank", i+1),
			slog.Bool("maximum", i == 0),
			slog.String("window", rec.Window.String()),
			slog.Float64("mean", rec.Stats.Mean()),
			slog.Int("tiles", len(rec.Tiles)))
	}
}
