// Package orchestrate fans the per-(zone, day) analysis tasks out over a
// bounded worker pool and folds the completed results into the shared
// result matrix on a single coordinating goroutine.
package orchestrate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"radarcli/internal/analysis"
	"radarcli/internal/archive"
	"radarcli/internal/results"
	"radarcli/internal/zone"
)

// DefaultWorkers returns the pool size used when the configuration does
// not pin one: a third of the logical cores minus one, at least 1. The
// tasks are I/O and memory heavy, so saturating every core degrades the
// whole machine.
func DefaultWorkers() int {
	n := runtime.NumCPU()/3 - 1
	if n < 1 {
		n = 1
	}
	return n
}

// Task is one unit of work: a single zone on a single calendar day.
type Task struct {
	Zone *zone.Zone
	Day  time.Time
}

// DurationResult is the search outcome for one window duration of a task.
type DurationResult struct {
	DurationHours int
	Best          *analysis.WindowRecord
	Records       []analysis.WindowRecord
}

// TaskResult is what a worker hands back to the coordinator. A failed
// task carries Err and no duration results; its siblings are unaffected.
type TaskResult struct {
	Zone      string
	Day       time.Time
	Durations []DurationResult
	Err       error
}

// Progress is one coordinator-side progress event.
type Progress struct {
	Completed int
	Total     int
	Zone      string
	Day       time.Time
	Failed    bool
}

// Params carries the fixed inputs of a Run.
type Params struct {
	ArchiveRoot   string
	Report        *archive.IntegrityReport
	DurationHours []int
	Stats         analysis.StatsConfig
	Workers       int
	Logger        *slog.Logger

	// OnProgress, when set, is invoked from the coordinating goroutine
	// after every completed task.
	OnProgress func(Progress)
	// Meter, when set, feeds task and window counters.
	Meter metric.Meter
}

type counters struct {
	tasks   metric.Int64Counter
	windows metric.Int64Counter
}

func newCounters(m metric.Meter) counters {
	if m == nil {
		return counters{}
	}
	tasks, err := m.Int64Counter("radar_tasks_completed_total",
		metric.WithDescription("Completed (zone, day) analysis tasks"))
	if err != nil {
		tasks = nil
	}
	windows, err := m.Int64Counter("radar_windows_evaluated_total",
		metric.WithDescription("Evaluated rainfall windows"))
	if err != nil {
		windows = nil
	}
	return counters{tasks: tasks, windows: windows}
}

// Run executes one task per (zone, day) pair over the worker pool and
// returns the accumulated result matrix. Workers never touch the matrix;
// the coordinator alone writes it as results arrive, so no locking is
// needed. A task error or panic voids that task only. Context
// cancellation stops submission and drains the pool, returning ctx.Err.
func Run(ctx context.Context, zones []*zone.Zone, days []time.Time, p Params) (*results.Matrix, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := p.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	total := len(zones) * len(days)
	logger.Info("starting parallel processing",
		slog.Int("zones", len(zones)),
		slog.Int("days", len(days)),
		slog.Int("tasks", total),
		slog.Int("workers", workers))

	ctr := newCounters(p.Meter)

	tasks := make(chan Task, workers*2)
	done := make(chan TaskResult, workers)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(tasks)
		for _, z := range zones {
			for _, day := range days {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				select {
				case tasks <- Task{Zone: z, Day: day}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		}
		return nil
	})
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for t := range tasks {
				select {
				case done <- runTask(gctx, t, p, logger):
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		// Pool errors surface through the coordinator loop ending early.
		_ = g.Wait()
		close(done)
	}()

	matrix := results.NewMatrix()
	completed := 0
	for res := range done {
		completed++
		if res.Err != nil {
			logger.Error("task failed",
				slog.String("zone", res.Zone),
				slog.String("date", res.Day.Format("2006-01-02")),
				slog.String("error", res.Err.Error()))
		}
		fold(matrix, res, p.Stats)
		if ctr.tasks != nil {
			ctr.tasks.Add(ctx, 1, metric.WithAttributes(
				attribute.String("zone", res.Zone),
				attribute.Bool("failed", res.Err != nil)))
		}
		if ctr.windows != nil {
			var n int64
			for _, d := range res.Durations {
				n += int64(len(d.Records))
			}
			ctr.windows.Add(ctx, n)
		}
		logger.Info("task completed",
			slog.String("zone", res.Zone),
			slog.String("date", res.Day.Format("2006-01-02")),
			slog.Int("completed", completed),
			slog.Int("total", total))
		if p.OnProgress != nil {
			p.OnProgress(Progress{
				Completed: completed,
				Total:     total,
				Zone:      res.Zone,
				Day:       res.Day,
				Failed:    res.Err != nil,
			})
		}
	}
	if err := g.Wait(); err != nil {
		return matrix, err
	}
	return matrix, nil
}

// fold writes one task's winning statistics into the matrix. Only the
// coordinator calls it.
func fold(m *results.Matrix, res TaskResult, cfg analysis.StatsConfig) {
	for _, d := range res.Durations {
		if d.Best == nil {
			continue
		}
		for _, stat := range cfg.Enabled() {
			if v, ok := d.Best.Stats[stat]; ok {
				m.Set(results.Key{Stat: stat, DurationHours: d.DurationHours}, res.Day, res.Zone, v)
			}
		}
	}
}

// runTask executes every configured duration search for one (zone, day)
// inside a private scratch directory. Panics are contained here so one
// corrupt input cannot take down the pool.
func runTask(ctx context.Context, t Task, p Params, logger *slog.Logger) (res TaskResult) {
	res = TaskResult{Day: t.Day}
	defer func() {
		if r := recover(); r != nil {
			res.Durations = nil
			res.Err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	res.Zone = t.Zone.Name

	scratch, err := os.MkdirTemp("", fmt.Sprintf("radar_%s_%s_", t.Zone.Name, t.Day.Format("20060102")))
	if err != nil {
		res.Err = fmt.Errorf("failed to create scratch directory: %w", err)
		return res
	}
	defer os.RemoveAll(scratch)

	tiles := archive.DayFiles(p.ArchiveRoot, t.Day, p.Report, logger)
	for _, hours := range p.DurationHours {
		best, records, err := analysis.Search(ctx, tiles, analysis.SearchParams{
			Zone:          t.Zone,
			Day:           t.Day,
			DurationHours: hours,
			Stats:         p.Stats,
			ScratchDir:    scratch,
			Logger:        logger,
		})
		if err != nil {
			res.Err = err
			res.Durations = nil
			return res
		}
		analysis.LogRanking(logger, t.Zone.Name, t.Day, hours, records)
		res.Durations = append(res.Durations, DurationResult{
			DurationHours: hours,
			Best:          best,
			Records:       records,
		})
	}
	return res
}

// Days expands the inclusive [start, end] date range into its calendar
// days at midnight UTC.
func Days(start, end time.Time) []time.Time {
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}
