package runoff

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radarcli/internal/results"
)

func TestPeq0ZeroAntecedentRainfall(t *testing.T) {
	for _, cn := range []float64{40, 75.5, 98} {
		assert.Zero(t, Peq0(0, cn), "P5=0 must give Peq0=0 for CN %v", cn)
		assert.Zero(t, Peq0(-3, cn))
		assert.Zero(t, Peq0(math.NaN(), cn))
	}
}

func TestPeq0Formula(t *testing.T) {
	// Hand-computed reference: CN=80 -> S=63.5; P5=50.
	s := 25400/80.0 - 254
	m := math.Sqrt(s*(50+math.Pow(0.4, 2)*s)) - 0.6*s
	want := m * (1 + 0.2*s/(s+m))

	assert.InDelta(t, want, Peq0(50, 80), 1e-9)
	assert.Greater(t, Peq0(50, 80), 0.0)
	// Higher CN (less retention) gives more equivalent rainfall.
	assert.Greater(t, Peq0(50, 95), Peq0(50, 60))
}

func TestPeq0NeverNegative(t *testing.T) {
	// Small rainfall over a low CN drives the sqrt term under the
	// subtraction; M clamps at zero.
	assert.Zero(t, Peq0(0.1, 35))
}

func TestCNFromDir(t *testing.T) {
	dir := t.TempDir()
	grid := "ncols 2\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\nNODATA_value -1\n70 90\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CN_zona_3.asc"), []byte(grid), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CN_zona_12.ASC"), []byte(grid), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "senza_numero.asc"), []byte(grid), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CN_zona_5.asc"), []byte("broken"), 0o644))

	cn, err := CNFromDir(dir, nil)
	require.NoError(t, err)
	require.Len(t, cn, 2)
	assert.InDelta(t, 80.0, cn["IM_03"], 1e-9)
	assert.InDelta(t, 80.0, cn["IM_12"], 1e-9)
	_, ok := cn["IM_05"]
	assert.False(t, ok, "unreadable raster skipped")
}

func TestCNFromDirMissing(t *testing.T) {
	_, err := CNFromDir(filepath.Join(t.TempDir(), "absent"), nil)
	assert.Error(t, err)
}

func tableFromRows(zones []string, rows map[string]map[string]float64) results.Table {
	t := results.Table{Zones: zones}
	for date, byZone := range rows {
		for z, v := range byZone {
			t.Set(date, z, v)
		}
	}
	return t
}

func TestCum5dTrailingWindowExcludesToday(t *testing.T) {
	zones := []string{"IM_01"}
	base := tableFromRows(zones, map[string]map[string]float64{
		"2023-01-01": {"IM_01": 1},
		"2023-01-02": {"IM_01": 2},
		"2023-01-03": {"IM_01": 3},
		"2023-01-04": {"IM_01": 4},
		"2023-01-05": {"IM_01": 5},
		"2023-01-06": {"IM_01": 6},
		"2023-01-07": {"IM_01": 7},
		"2023-01-08": {"IM_01": 8},
	})

	cum := Cum5d(base)

	get := func(d string) float64 {
		v, ok := cum.Get(d, "IM_01")
		require.True(t, ok, "date %s must be present", d)
		return v
	}
	assert.Zero(t, get("2023-01-01"), "first date has no history")
	assert.InDelta(t, 1.0, get("2023-01-02"), 1e-9)
	assert.InDelta(t, 1+2+3, get("2023-01-04"), 1e-9)
	// Full trailing window: the six days before the 8th.
	assert.InDelta(t, 2+3+4+5+6+7, get("2023-01-08"), 1e-9)
}

func TestCum5dMissingCellsContributeZero(t *testing.T) {
	zones := []string{"IM_01"}
	base := tableFromRows(zones, map[string]map[string]float64{
		"2023-01-01": {"IM_01": 10},
		"2023-01-02": {},
		"2023-01-03": {"IM_01": 5},
	})
	base.Set("2023-01-02", "IM_02", 99) // keeps the date present without IM_01

	cum := Cum5d(base)
	v, ok := cum.Get("2023-01-03", "IM_01")
	require.True(t, ok)
	assert.InDelta(t, 10.0, v, 1e-9)
}

func TestPeq0TableZonesWithoutCN(t *testing.T) {
	zones := []string{"IM_01", "IM_02"}
	cum := tableFromRows(zones, map[string]map[string]float64{
		"2023-01-01": {"IM_01": 50, "IM_02": 50},
	})

	peq := Peq0Table(cum, map[string]float64{"IM_01": 80}, nil)

	v1, _ := peq.Get("2023-01-01", "IM_01")
	assert.InDelta(t, Peq0(50, 80), v1, 1e-9)
	v2, ok := peq.Get("2023-01-01", "IM_02")
	require.True(t, ok)
	assert.Zero(t, v2, "zone without CN yields zero")
}

func TestMergeAdditive(t *testing.T) {
	zones := []string{"IM_01", "IM_02"}
	base := tableFromRows(zones, map[string]map[string]float64{
		"2023-01-01": {"IM_01": 10, "IM_02": 20},
		"2023-01-02": {"IM_01": 30},
	})
	peq := tableFromRows(zones, map[string]map[string]float64{
		"2023-01-01": {"IM_01": 1},
		"2023-01-03": {"IM_01": 99}, // date absent from base, ignored
	})

	merged := MergeAdditive(base, peq)

	v, _ := merged.Get("2023-01-01", "IM_01")
	assert.InDelta(t, 11.0, v, 1e-9)
	v, _ = merged.Get("2023-01-01", "IM_02")
	assert.InDelta(t, 20.0, v, 1e-9, "zone without Peq0 keeps the base value")
	v, _ = merged.Get("2023-01-02", "IM_01")
	assert.InDelta(t, 30.0, v, 1e-9)
	v, ok := merged.Get("2023-01-02", "IM_02")
	require.True(t, ok)
	assert.Zero(t, v, "missing base cell treated as zero")
	_, ok = merged.Values["2023-01-03"]
	assert.False(t, ok, "merge is left-aligned on the base dates")

	// base untouched
	v, _ = base.Get("2023-01-01", "IM_01")
	assert.InDelta(t, 10.0, v, 1e-9)
}
