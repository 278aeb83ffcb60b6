// Package analysis implements the temporal-window aggregation engine:
// half-open window summation over hourly tiles, zone cropping, statistics
// over valid pixels, and the sliding-window search that selects the
// maximum-mean window per zone, day and duration.
package analysis

import (
	"fmt"
	"time"
)

// Window is a half-open time interval [Start, End). A tile belongs to the
// window iff Start <= tile.Timestamp < End, so a tile starting exactly at
// End is excluded while one starting exactly at Start is included.
type Window struct {
	Start time.Time
	End   time.Time
}

// CalendarDay returns the 24-hour window covering one calendar day.
func CalendarDay(day time.Time) Window {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// Contains reports half-open membership of a tile timestamp.
func (w Window) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && ts.Before(w.End)
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

func (w Window) String() string {
	return fmt.Sprintf("%s -> %s",
		w.Start.Format("2006-01-02 15:04"), w.End.Format("2006-01-02 15:04"))
}
