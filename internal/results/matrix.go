// Package results accumulates per-task statistic values into sparse
// matrices and finalizes them as dense date×zone tables for export.
package results

import (
	"fmt"
	"math"
	"sort"
	"time"

	"radarcli/internal/analysis"
)

// DateFormat is the row key format of every result table.
const DateFormat = "2006-01-02"

// Key addresses one result table: a statistic at a window duration.
type Key struct {
	Stat          analysis.Statistic
	DurationHours int
}

// SheetName is the workbook sheet name for this table.
func (k Key) SheetName() string {
	return fmt.Sprintf("%s_%dh", k.Stat, k.DurationHours)
}

// Matrix is the sparse (statistic, duration) → (date, zone) → value store
// built while tasks complete. Only the coordinating goroutine writes to
// it, after each task returns, so it needs no locking.
type Matrix struct {
	cells map[Key]map[string]map[string]float64
}

// NewMatrix returns an empty result matrix.
func NewMatrix() *Matrix {
	return &Matrix{cells: make(map[Key]map[string]map[string]float64)}
}

// Set stores one statistic value. NaN values are skipped: a task may
// legally produce them from degenerate pixel sets and they must not
// poison the table. Each (key, date, zone) cell is written at most once
// because tasks partition uniquely by (zone, day).
func (m *Matrix) Set(k Key, date time.Time, zoneName string, v float64) {
	if math.IsNaN(v) {
		return
	}
	byDate, ok := m.cells[k]
	if !ok {
		byDate = make(map[string]map[string]float64)
		m.cells[k] = byDate
	}
	dateKey := date.Format(DateFormat)
	byZone, ok := byDate[dateKey]
	if !ok {
		byZone = make(map[string]float64)
		byDate[dateKey] = byZone
	}
	byZone[zoneName] = v
}

// Keys returns the populated table keys sorted by sheet name.
func (m *Matrix) Keys() []Key {
	keys := make([]Key, 0, len(m.cells))
	for k := range m.cells {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].DurationHours != keys[j].DurationHours {
			return keys[i].DurationHours < keys[j].DurationHours
		}
		return keys[i].Stat < keys[j].Stat
	})
	return keys
}

// Table finalizes one key into a dense table with the given zone column
// order. Rows are the dates that received at least one value, ascending.
func (m *Matrix) Table(k Key, zones []string) Table {
	byDate := m.cells[k]
	t := Table{Zones: append([]string(nil), zones...), Values: make(map[string]map[string]float64)}
	for dateKey, byZone := range byDate {
		t.Dates = append(t.Dates, dateKey)
		row := make(map[string]float64, len(byZone))
		for _, z := range zones {
			if v, ok := byZone[z]; ok {
				row[z] = v
			}
		}
		t.Values[dateKey] = row
	}
	sort.Strings(t.Dates)
	return t
}

// Table is a dense date×zone view of one statistic at one duration.
// Missing cells are absent from Values, never zero-filled.
type Table struct {
	Dates  []string
	Zones  []string
	Values map[string]map[string]float64
}

// Get returns the cell value and whether it is present.
func (t Table) Get(date, zoneName string) (float64, bool) {
	row, ok := t.Values[date]
	if !ok {
		return 0, false
	}
	v, ok := row[zoneName]
	return v, ok
}

// Set writes one cell, growing the date list when needed. Dates stay
// sorted so iteration order is chronological.
func (t *Table) Set(date, zoneName string, v float64) {
	if t.Values == nil {
		t.Values = make(map[string]map[string]float64)
	}
	row, ok := t.Values[date]
	if !ok {
		row = make(map[string]float64)
		t.Values[date] = row
		i := sort.SearchStrings(t.Dates, date)
		t.Dates = append(t.Dates, "")
		copy(t.Dates[i+1:], t.Dates[i:])
		t.Dates[i] = date
	}
	row[zoneName] = v
}

// Clone returns a deep copy of the table.
func (t Table) Clone() Table {
	out := Table{
		Dates:  append([]string(nil), t.Dates...),
		Zones:  append([]string(nil), t.Zones...),
		Values: make(map[string]map[string]float64, len(t.Values)),
	}
	for d, row := range t.Values {
		cp := make(map[string]float64, len(row))
		for z, v := range row {
			cp[z] = v
		}
		out.Values[d] = cp
	}
	return out
}
