// Package config loads the analyzer configuration from an optional YAML
// file overlaid with RADAR_-prefixed environment variables, and validates
// it before any archive work starts.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"radarcli/internal/analysis"
)

// DateLayout is the calendar-date format of the configured range bounds.
const DateLayout = "2006-01-02"

// Config is the complete analyzer configuration.
type Config struct {
	Archive  ArchiveConfig        `yaml:"archive" envconfig:"ARCHIVE"`
	Analysis AnalysisConfig       `yaml:"analysis" envconfig:"ANALYSIS"`
	Stats    analysis.StatsConfig `yaml:"statistics" envconfig:"STATS"`
	Zones    ZonesConfig          `yaml:"zones" envconfig:"ZONES"`
	Output   OutputConfig         `yaml:"output" envconfig:"OUTPUT"`
	Logging  LoggingConfig        `yaml:"logging" envconfig:"LOGGING"`
	Status   StatusConfig         `yaml:"status" envconfig:"STATUS"`
}

// ArchiveConfig locates the radar tile archive and the date range to scan.
type ArchiveConfig struct {
	Root  string `yaml:"root" envconfig:"ROOT" validate:"required"`
	Start string `yaml:"start" envconfig:"START" validate:"required,datetime=2006-01-02"`
	End   string `yaml:"end" envconfig:"END" validate:"required,datetime=2006-01-02"`
}

// AnalysisConfig selects the window durations and the pool size.
type AnalysisConfig struct {
	// DurationHours lists the window durations; 24 triggers the
	// calendar-day search, anything else the hourly sliding search.
	DurationHours []int `yaml:"durations" envconfig:"DURATIONS" validate:"required,min=1,dive,gt=0,lte=168"`
	// Workers is the task pool size; 0 derives it from the CPU count.
	Workers int `yaml:"workers" envconfig:"WORKERS" validate:"gte=0"`
}

// ZonesConfig locates the zone boundary polygons and the optional CN
// rasters driving the Peq0 post-pass.
type ZonesConfig struct {
	BoundaryDir string `yaml:"boundary_dir" envconfig:"BOUNDARY_DIR" validate:"required"`
	CNDir       string `yaml:"cn_dir" envconfig:"CN_DIR"`
}

// OutputConfig names the workbook destination.
type OutputConfig struct {
	Dir      string `yaml:"dir" envconfig:"DIR" validate:"required"`
	Workbook string `yaml:"workbook" envconfig:"WORKBOOK" validate:"required"`
}

// LoggingConfig mirrors the logger setup: JSON to stdout plus a file
// under Dir.
type LoggingConfig struct {
	Level string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir" envconfig:"DIR" validate:"required"`
}

// StatusConfig enables the embedded status/metrics HTTP server.
type StatusConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	Listen  string  `yaml:"listen" envconfig:"LISTEN"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"gte=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"gte=0"`
}

// Default returns the configuration with every optional field filled.
// Defaults live here rather than in struct tags so a YAML file can
// override them without the env layer putting them back.
func Default() Config {
	return Config{
		Analysis: AnalysisConfig{DurationHours: []int{24}},
		Stats:    analysis.StatsConfig{Mean: true},
		Output:   OutputConfig{Dir: "output", Workbook: "statistiche_zone.xlsx"},
		Logging:  LoggingConfig{Level: "info", Dir: "logs"},
		Status:   StatusConfig{Listen: ":8090", RPS: 20, Burst: 40},
	}
}

// Load builds the configuration: defaults, then the YAML file when path
// is non-empty, then RADAR_* environment variables on top, then
// validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process("RADAR", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the struct tags plus the cross-field constraints the
// tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	start, end, err := c.DateRange()
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("end date %s precedes start date %s",
			end.Format(DateLayout), start.Format(DateLayout))
	}

	if len(c.Stats.Enabled()) == 0 {
		return fmt.Errorf("no statistics enabled")
	}
	return nil
}

// DateRange parses the configured inclusive date range as midnight UTC.
func (c *Config) DateRange() (start, end time.Time, err error) {
	start, err = time.ParseInLocation(DateLayout, c.Archive.Start, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q: %w", c.Archive.Start, err)
	}
	end, err = time.ParseInLocation(DateLayout, c.Archive.End, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q: %w", c.Archive.End, err)
	}
	return start, end, nil
}

// HasDuration reports whether hours is among the configured durations.
func (c *Config) HasDuration(hours int) bool {
	for _, d := range c.Analysis.DurationHours {
		if d == hours {
			return true
		}
	}
	return false
}

// Peq0Ready reports whether the Peq0 post-pass can run: the toggle is on,
// a CN raster directory is configured, and the 24h duration feeding the
// 5-day cumulative table is present.
func (c *Config) Peq0Ready() bool {
	return c.Stats.Peq0 && c.Zones.CNDir != "" && c.HasDuration(24)
}
