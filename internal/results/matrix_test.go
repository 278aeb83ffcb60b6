package results

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radarcli/internal/analysis"
)

var (
	day1 = time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2023, 1, 6, 0, 0, 0, 0, time.UTC)
)

func TestMatrixSetAndTable(t *testing.T) {
	m := NewMatrix()
	k := Key{Stat: analysis.StatMean, DurationHours: 6}

	m.Set(k, day2, "IM_01", 4.5)
	m.Set(k, day1, "IM_01", 1.5)
	m.Set(k, day1, "IM_02", 2.5)
	m.Set(k, day1, "IM_03", math.NaN()) // skipped

	tbl := m.Table(k, []string{"IM_01", "IM_02", "IM_03"})
	require.Equal(t, []string{"2023-01-05", "2023-01-06"}, tbl.Dates)

	v, ok := tbl.Get("2023-01-05", "IM_01")
	require.True(t, ok)
	assert.InDelta(t, 1.5, v, 1e-9)

	_, ok = tbl.Get("2023-01-05", "IM_03")
	assert.False(t, ok, "NaN never lands in the table")
	_, ok = tbl.Get("2023-01-06", "IM_02")
	assert.False(t, ok, "missing cells stay absent, not zero")
}

func TestMatrixKeysSorted(t *testing.T) {
	m := NewMatrix()
	m.Set(Key{analysis.StatMean, 24}, day1, "z", 1)
	m.Set(Key{analysis.StatMax, 6}, day1, "z", 1)
	m.Set(Key{analysis.StatMean, 6}, day1, "z", 1)

	keys := m.Keys()
	require.Len(t, keys, 3)
	assert.Equal(t, Key{analysis.StatMax, 6}, keys[0])
	assert.Equal(t, Key{analysis.StatMean, 6}, keys[1])
	assert.Equal(t, Key{analysis.StatMean, 24}, keys[2])
}

func TestKeySheetName(t *testing.T) {
	assert.Equal(t, "mean_24h", Key{analysis.StatMean, 24}.SheetName())
	assert.Equal(t, "p95_6h", Key{analysis.StatP95, 6}.SheetName())
}

func TestTableSetKeepsDatesSorted(t *testing.T) {
	var tbl Table
	tbl.Set("2023-01-07", "z", 1)
	tbl.Set("2023-01-05", "z", 2)
	tbl.Set("2023-01-06", "z", 3)
	tbl.Set("2023-01-05", "w", 4) // existing date, no duplicate row

	assert.Equal(t, []string{"2023-01-05", "2023-01-06", "2023-01-07"}, tbl.Dates)
}

func TestTableClone(t *testing.T) {
	var tbl Table
	tbl.Set("2023-01-05", "z", 1)

	cp := tbl.Clone()
	cp.Set("2023-01-05", "z", 9)

	v, _ := tbl.Get("2023-01-05", "z")
	assert.InDelta(t, 1.0, v, 1e-9)
}
