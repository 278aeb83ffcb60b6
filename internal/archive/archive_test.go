package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radarcli/internal/raster"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name string
		file string
		want string
		ok   bool
	}{
		{"with seconds", "radar_20230105090000.tif", "2023-01-05T09:00:00", true},
		{"without seconds", "radar_202301050900.tif", "2023-01-05T09:00:00", true},
		{"seconds pattern wins", "x20230105093015.tif", "2023-01-05T09:30:15", true},
		{"no timestamp", "readme.tif", "", false},
		{"path prefix ignored", "/a/2020/01/02/t_20200102110000.tif", "2020-01-02T11:00:00", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, ok := ParseTimestamp(tt.file)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, ts.Format("2006-01-02T15:04:05"))
			}
		})
	}
}

func writeTile(t *testing.T, dir, name string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	g := raster.New(2, 2)
	g.CRS = raster.DefaultCRS
	g.Data = []float64{1, 2, 3, 4}
	path := filepath.Join(dir, name)
	require.NoError(t, raster.WriteGeoTIFF(path, g))
	return path
}

func TestVerifyClassifiesSlots(t *testing.T) {
	root := t.TempDir()
	day := time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)
	dir := DayDir(root, day)

	writeTile(t, dir, "radar_20230105090000.tif")
	writeTile(t, dir, "radar_20230105100000.tif")
	writeTile(t, dir, "radar_20230105113000.tif") // not top of hour, ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "radar_20230105110000.tif"), []byte("garbage"), 0o644))

	report := Verify(context.Background(), root, day, day, nil)
	s := report.Summary()
	assert.Equal(t, 2, s.Valid)
	assert.Equal(t, 1, s.Corrupt)
	assert.Equal(t, 21, s.Missing)
	assert.Equal(t, 1, s.Days)

	require.Len(t, report.Corrupt, 1)
	assert.NotEmpty(t, report.Corrupt[0].Error)
	assert.Equal(t, "11:00", report.Corrupt[0].Timestamp.Format("15:04"))

	refs := report.ValidForDay(day)
	require.Len(t, refs, 2)
	assert.True(t, refs[0].Timestamp.Before(refs[1].Timestamp))
}

func TestVerifyMissingDayDirectory(t *testing.T) {
	root := t.TempDir()
	day := time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)

	report := Verify(context.Background(), root, day, day, nil)
	s := report.Summary()
	assert.Equal(t, 0, s.Valid)
	assert.Equal(t, 0, s.Corrupt)
	assert.Equal(t, 24, s.Missing)

	hours := make(map[string]bool)
	for _, e := range report.Missing {
		assert.Equal(t, "2023-01-05", e.Date.Format("2006-01-02"))
		hours[e.Timestamp.Format("15:04")] = true
	}
	assert.Len(t, hours, 24)
}

func TestVerifyMultiDayRange(t *testing.T) {
	root := t.TempDir()
	start := time.Date(2023, 1, 4, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 1, 6, 0, 0, 0, 0, time.UTC)
	writeTile(t, DayDir(root, start), "radar_20230104000000.tif")

	report := Verify(context.Background(), root, start, end, nil)
	s := report.Summary()
	assert.Equal(t, 3, s.Days)
	assert.Equal(t, 1, s.Valid)
	assert.Equal(t, 71, s.Missing)
}

func TestDayFilesPrefersReport(t *testing.T) {
	root := t.TempDir()
	day := time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)
	writeTile(t, DayDir(root, day), "radar_20230105090000.tif")

	report := Verify(context.Background(), root, day, day, nil)
	refs := DayFiles(root, day, report, nil)
	require.Len(t, refs, 1)
	assert.Equal(t, 9, refs[0].Timestamp.Hour())
}

func TestDayFilesFallbackScan(t *testing.T) {
	root := t.TempDir()
	day := time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)
	dir := DayDir(root, day)
	writeTile(t, dir, "radar_20230105080000.tif")
	writeTile(t, dir, "radar_20230105070000.tif")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "radar_20230105090000.tif"), []byte("junk"), 0o644))

	refs := DayFiles(root, day, nil, nil)
	require.Len(t, refs, 2)
	assert.Equal(t, 7, refs[0].Timestamp.Hour())
	assert.Equal(t, 8, refs[1].Timestamp.Hour())
}

func TestDayFilesAbsentDirectory(t *testing.T) {
	day := time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)
	assert.Empty(t, DayFiles(t.TempDir(), day, nil, nil))
}
