package analysis

import (
	"github.com/montanaflynn/stats"

	"radarcli/internal/raster"
)

// Statistic names one of the descriptive statistics the evaluator can
// compute. The set is closed; each member is toggled independently.
type Statistic string

const (
	StatMean   Statistic = "mean"
	StatMedian Statistic = "median"
	StatP75    Statistic = "p75"
	StatP95    Statistic = "p95"
	StatP99    Statistic = "p99"
	StatMax    Statistic = "max"
	StatMin    Statistic = "min"
	StatStdDev Statistic = "std"
)

// AllStatistics returns every statistic in its canonical order, which is
// also the sheet order of the exported workbook.
func AllStatistics() []Statistic {
	return []Statistic{StatMean, StatMedian, StatP75, StatP95, StatP99, StatMax, StatMin, StatStdDev}
}

// StatsConfig enables individual statistics. Peq0 is carried here because
// the configuration treats it as one more toggle, but it is consumed by
// the post-pass, not by Evaluate.
type StatsConfig struct {
	Mean   bool `yaml:"mean" envconfig:"MEAN"`
	Median bool `yaml:"median" envconfig:"MEDIAN"`
	P75    bool `yaml:"p75" envconfig:"P75"`
	P95    bool `yaml:"p95" envconfig:"P95"`
	P99    bool `yaml:"p99" envconfig:"P99"`
	Max    bool `yaml:"max" envconfig:"MAX"`
	Min    bool `yaml:"min" envconfig:"MIN"`
	StdDev bool `yaml:"std" envconfig:"STD"`
	Peq0   bool `yaml:"peq0" envconfig:"PEQ0"`
}

// Enabled lists the enabled statistics in canonical order.
func (c StatsConfig) Enabled() []Statistic {
	var out []Statistic
	for _, s := range AllStatistics() {
		if c.IsEnabled(s) {
			out = append(out, s)
		}
	}
	return out
}

// IsEnabled reports whether one statistic is switched on.
func (c StatsConfig) IsEnabled(s Statistic) bool {
	switch s {
	case StatMean:
		return c.Mean
	case StatMedian:
		return c.Median
	case StatP75:
		return c.P75
	case StatP95:
		return c.P95
	case StatP99:
		return c.P99
	case StatMax:
		return c.Max
	case StatMin:
		return c.Min
	case StatStdDev:
		return c.StdDev
	default:
		return false
	}
}

// WindowStats maps enabled statistics to their values for one window.
// Disabled statistics are simply absent. A nil map means the window had no
// valid pixels, which is distinct from a legitimate zero.
type WindowStats map[Statistic]float64

// Mean returns the mean statistic, or 0 when absent. Window ranking uses
// this accessor so windows without a mean sort last.
func (ws WindowStats) Mean() float64 {
	if ws == nil {
		return 0
	}
	return ws[StatMean]
}

// Evaluate computes the enabled statistics over pixels with value >= 0.
// Negative pixels are no-data and are excluded, never zeroed. When no
// pixel qualifies the result is nil.
func Evaluate(g *raster.Grid, cfg StatsConfig) WindowStats {
	if g == nil {
		return nil
	}
	valid := make(stats.Float64Data, 0, len(g.Data))
	for _, v := range g.Data {
		if v >= 0 {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	out := make(WindowStats)
	put := func(s Statistic, v float64, err error) {
		if err == nil {
			out[s] = v
		}
	}
	if cfg.Mean {
		v, err := stats.Mean(valid)
		put(StatMean, v, err)
	}
	if cfg.Median {
		v, err := stats.Median(valid)
		put(StatMedian, v, err)
	}
	if cfg.P75 {
		v, err := stats.Percentile(valid, 75)
		put(StatP75, v, err)
	}
	if cfg.P95 {
		v, err := stats.Percentile(valid, 95)
		put(StatP95, v, err)
	}
	if cfg.P99 {
		v, err := stats.Percentile(valid, 99)
		put(StatP99, v, err)
	}
	if cfg.Max {
		v, err := stats.Max(valid)
		put(StatMax, v, err)
	}
	if cfg.Min {
		v, err := stats.Min(valid)
		put(StatMin, v, err)
	}
	if cfg.StdDev {
		v, err := stats.StandardDeviation(valid)
		put(StatStdDev, v, err)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
