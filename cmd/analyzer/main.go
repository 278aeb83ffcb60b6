// Command analyzer scans an hourly radar rainfall archive, finds the
// worst rainfall window per zone, day and duration, and writes the
// per-statistic tables to an Excel workbook.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"radarcli/internal/analysis"
	"radarcli/internal/archive"
	"radarcli/internal/config"
	"radarcli/internal/exporter"
	"radarcli/internal/infrastructure"
	"radarcli/internal/orchestrate"
	"radarcli/internal/results"
	"radarcli/internal/runoff"
	"radarcli/internal/status"
	"radarcli/internal/zone"
)

func main() {
	if err := run(); err != nil {
		slog.Error("analyzer failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	rootFlag := flag.String("root", "", "archive root, overrides the configured value")
	startFlag := flag.String("start", "", "first date (YYYY-MM-DD), overrides the configured value")
	endFlag := flag.String("end", "", "last date (YYYY-MM-DD), overrides the configured value")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil && *configPath == "" && *rootFlag != "" {
		// No file: build the config from flags alone.
		base := config.Default()
		cfg = &base
		err = nil
	}
	if err != nil {
		return err
	}
	if *rootFlag != "" {
		cfg.Archive.Root = *rootFlag
	}
	if *startFlag != "" {
		cfg.Archive.Start = *startFlag
	}
	if *endFlag != "" {
		cfg.Archive.End = *endFlag
	}
	if *rootFlag != "" || *startFlag != "" || *endFlag != "" {
		if cfg.Zones.BoundaryDir == "" {
			cfg.Zones.BoundaryDir = filepath.Join(cfg.Archive.Root, "zone")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer infrastructure.CloseLogFile()

	runID := uuid.NewString()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = infrastructure.WithRunID(ctx, runID)
	logger = logger.With(slog.String("run_id", runID))

	start, end, err := cfg.DateRange()
	if err != nil {
		return err
	}
	workers := cfg.Analysis.Workers
	if workers <= 0 {
		workers = orchestrate.DefaultWorkers()
	}
	logger.InfoContext(ctx, "analyzer starting",
		slog.String("archive_root", cfg.Archive.Root),
		slog.String("start", cfg.Archive.Start),
		slog.String("end", cfg.Archive.End),
		slog.Any("durations", cfg.Analysis.DurationHours),
		slog.Any("statistics", cfg.Stats.Enabled()),
		slog.Int("workers", workers),
		slog.Bool("peq0", cfg.Peq0Ready()))

	providers, err := infrastructure.InitializeOTel(nil, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer providers.Shutdown(context.Background())

	hub := status.NewHub(logger)
	tracker := status.NewTracker(runID, hub)
	if cfg.Status.Enabled {
		srv := status.NewServer(cfg.Status, tracker, hub, providers.PrometheusHTTP, logger)
		if err := srv.Start(); err != nil {
			logger.Warn("status server unavailable", slog.String("error", err.Error()))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
		}
	}

	zones, err := zone.LoadDir(cfg.Zones.BoundaryDir)
	if err != nil {
		return fmt.Errorf("failed to load zone boundaries: %w", err)
	}
	if len(zones) == 0 {
		return fmt.Errorf("no zone boundaries in %s", cfg.Zones.BoundaryDir)
	}
	zoneNames := make([]string, len(zones))
	for i, z := range zones {
		zoneNames[i] = z.Name
	}
	logger.InfoContext(ctx, "zones loaded", slog.Any("zones", zoneNames))

	tracker.SetPhase("integrity check")
	report := archive.Verify(ctx, cfg.Archive.Root, start, end, logger)
	report.Log(logger)
	if err := ctx.Err(); err != nil {
		return err
	}

	tracker.SetPhase("processing")
	matrix, err := orchestrate.Run(ctx, zones, orchestrate.Days(start, end), orchestrate.Params{
		ArchiveRoot:   cfg.Archive.Root,
		Report:        report,
		DurationHours: cfg.Analysis.DurationHours,
		Stats:         cfg.Stats,
		Workers:       workers,
		Logger:        logger,
		OnProgress:    tracker.OnProgress,
		Meter:         providers.Meter,
	})
	if err != nil {
		return err
	}

	sheets := exporter.BuildSheets(matrix, zoneNames)

	if cfg.Peq0Ready() {
		tracker.SetPhase("peq0")
		extra, err := peq0Sheets(cfg, matrix, zoneNames, logger)
		if err != nil {
			logger.Warn("skipping Peq0 post-pass", slog.String("error", err.Error()))
		} else {
			sheets = append(sheets, extra...)
		}
	} else if cfg.Stats.Peq0 {
		logger.Warn("Peq0 enabled but prerequisites missing: needs the 24h duration and a CN raster directory")
	}

	tracker.SetPhase("export")
	out := filepath.Join(cfg.Output.Dir, cfg.Output.Workbook)
	if err := exporter.WriteWorkbook(out, sheets, logger); err != nil {
		return err
	}

	tracker.SetPhase("done")
	logger.InfoContext(ctx, "analyzer finished", slog.String("workbook", out))
	return nil
}

// peq0Sheets derives the antecedent-rainfall sheets from the daily mean
// table: the 5-day cumulative, the Peq0 values, and every statistic and
// duration table merged with Peq0.
func peq0Sheets(cfg *config.Config, matrix *results.Matrix, zoneNames []string, logger *slog.Logger) ([]exporter.Sheet, error) {
	meanKey := results.Key{Stat: analysis.StatMean, DurationHours: 24}
	base := matrix.Table(meanKey, zoneNames)
	if len(base.Dates) == 0 {
		return nil, fmt.Errorf("no daily mean results to derive Cum_5d from")
	}

	cn, err := runoff.CNFromDir(cfg.Zones.CNDir, logger)
	if err != nil {
		return nil, err
	}
	cum := runoff.Cum5d(base)
	peq := runoff.Peq0Table(cum, cn, logger)

	sheets := []exporter.Sheet{
		{Name: "Cum_5d", Table: cum},
		{Name: "Peq0", Table: peq},
	}
	for _, k := range matrix.Keys() {
		merged := runoff.MergeAdditive(matrix.Table(k, zoneNames), peq)
		sheets = append(sheets, exporter.Sheet{Name: k.SheetName() + "_Peq0", Table: merged})
	}
	return sheets, nil
}
