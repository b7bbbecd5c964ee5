// Package export turns a year range into per-year GeoJSON snapshots. A year
// counts as exported exactly when its artifact file exists, which makes
// re-running after an interruption pick up only the missing years.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/ohmexport/internal/extract"
	"github.com/ppiankov/ohmexport/internal/metrics"
	"github.com/ppiankov/ohmexport/internal/model"
	"github.com/ppiankov/ohmexport/internal/store"
	"github.com/ppiankov/ohmexport/internal/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrNoOutput is returned when the extraction tool exits cleanly without
// creating its output file.
var ErrNoOutput = errors.New("extraction tool wrote no output")

// Options is everything a run needs to know; nothing is read from the
// environment.
type Options struct {
	StoreTarget string            // Connection string, used to pace launches per database
	Columns     model.StoreConfig // Key, tags and geometry column names
	Table       string
	Filter      string
	OutputDir   string
	Prefix      string
	LaunchRate  float64
}

// OptionsFromConfig extracts run options from the loaded configuration
func OptionsFromConfig(cfg *model.Config) Options {
	return Options{
		StoreTarget: cfg.Store.DSN,
		Columns:     cfg.Store,
		Table:       cfg.Export.Table,
		Filter:      cfg.Export.Filter,
		OutputDir:   cfg.Export.OutputDir,
		Prefix:      cfg.Export.Prefix,
		LaunchRate:  cfg.Export.LaunchRate,
	}
}

// Plan is the partition of a requested range
type Plan struct {
	Start   int
	End     int
	Workers int
	Years   []int
	Pending []int // No artifact yet
	Skipped []int // Artifact already on disk
}

// Summary is the outcome of a run
type Summary struct {
	Total     int
	ToExport  int
	Skipped   int
	Workers   int
	Completed int
	Failed    int
	Artifacts int // Artifacts on disk for the range after the run
	Elapsed   time.Duration
	Failures  map[int]error
}

// Orchestrator runs per-year export jobs
type Orchestrator struct {
	opts      Options
	extractor extract.Extractor
	reporter  Reporter
	limiter   *worker.Limiter
	logger    *slog.Logger
}

// New creates an orchestrator
func New(opts Options, extractor extract.Extractor, reporter Reporter, logger *slog.Logger) *Orchestrator {
	if reporter == nil {
		reporter = NopReporter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		opts:      opts,
		extractor: extractor,
		reporter:  reporter,
		limiter:   worker.NewLimiter(opts.LaunchRate, 1),
		logger:    logger.With(slog.String("component", "export")),
	}
}

// Plan partitions [start, end] into pending and skipped years
func (o *Orchestrator) Plan(start, end, workers int) (*Plan, error) {
	if err := Validate(start, end, workers); err != nil {
		return nil, err
	}

	p := &Plan{Start: start, End: end, Workers: workers, Years: Years(start, end)}
	for _, year := range p.Years {
		exists, err := artifactExists(ArtifactPath(o.opts.OutputDir, o.opts.Prefix, year))
		if err != nil {
			return nil, fmt.Errorf("check artifact for %d: %w", year, err)
		}
		if exists {
			p.Skipped = append(p.Skipped, year)
		} else {
			p.Pending = append(p.Pending, year)
		}
	}
	return p, nil
}

// Run exports every year in [start, end] that has no artifact yet, using at
// most workers concurrent extractions. Per-year failures are reported and
// counted but do not stop the run or produce an error.
func (o *Orchestrator) Run(ctx context.Context, start, end, workers int) (*Summary, error) {
	if err := Validate(start, end, workers); err != nil {
		return nil, err
	}

	began := time.Now()

	plan, err := o.Plan(start, end, workers)
	if err != nil {
		return nil, err
	}
	o.reporter.Planned(plan)
	metrics.ExportYearsSkippedTotal.Add(float64(len(plan.Skipped)))

	summary := &Summary{
		Total:    len(plan.Years),
		ToExport: len(plan.Pending),
		Skipped:  len(plan.Skipped),
		Workers:  workers,
		Failures: map[int]error{},
	}

	if len(plan.Pending) > 0 {
		if err := os.MkdirAll(o.opts.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}

		jobs := make([]worker.Job, 0, len(plan.Pending))
		for _, year := range plan.Pending {
			jobs = append(jobs, &yearJob{o: o, year: year})
		}

		for _, r := range worker.Run(ctx, workers, jobs) {
			res := r.(*JobResult)
			if res.Err != nil {
				summary.Failed++
				summary.Failures[res.Year] = res.Err
				continue
			}
			summary.Completed++
		}
	}

	artifacts, err := CountArtifacts(o.opts.OutputDir, o.opts.Prefix, plan.Years)
	if err != nil {
		return nil, err
	}
	summary.Artifacts = artifacts
	summary.Elapsed = time.Since(began)
	metrics.ArtifactsOnDisk.Set(float64(artifacts))

	o.reporter.Finished(summary)

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("export interrupted: %w", err)
	}
	return summary, nil
}

// YearResult is the outcome of a single-year export
type YearResult struct {
	Year     int
	Features int64
	Path     string // Empty when nothing was exported
}

// Counter counts features active at a year
type Counter interface {
	CountActive(ctx context.Context, table, filter string, year int) (int64, error)
}

// ExportYear exports one year, overwriting an existing artifact. The feature
// count is checked first; a year with no active features produces no file.
func (o *Orchestrator) ExportYear(ctx context.Context, counter Counter, year int) (*YearResult, error) {
	n, err := counter.CountActive(ctx, o.opts.Table, o.opts.Filter, year)
	if err != nil {
		return nil, err
	}

	res := &YearResult{Year: year, Features: n}
	if n == 0 {
		return res, nil
	}

	if err := os.MkdirAll(o.opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	if err := o.exportYear(ctx, year); err != nil {
		return nil, err
	}

	res.Path = ArtifactPath(o.opts.OutputDir, o.opts.Prefix, year)
	return res, nil
}

// exportYear extracts into a temporary file next to the artifact and renames
// it into place, so the final name only ever refers to a complete file.
func (o *Orchestrator) exportYear(ctx context.Context, year int) error {
	name := ArtifactName(o.opts.Prefix, year)
	final := filepath.Join(o.opts.OutputDir, name)
	tmp := filepath.Join(o.opts.OutputDir, "."+name+"."+uuid.NewString()+".tmp")

	req := extract.Request{
		Year:   year,
		Layer:  strings.TrimSuffix(name, filepath.Ext(name)),
		Query:  store.ExportQuery(o.opts.Table, o.opts.Filter, o.opts.Columns, year),
		Output: tmp,
	}

	o.logger.Debug("extracting", slog.Int("year", year), slog.String("output", tmp))

	if err := o.extractor.Extract(ctx, req); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("extract %d: %w", year, err)
	}

	ok, err := artifactExists(tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("check output for %d: %w", year, err)
	}
	if !ok {
		return fmt.Errorf("extract %d: %w", year, ErrNoOutput)
	}

	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("publish artifact for %d: %w", year, err)
	}
	return nil
}

// yearJob exports one year inside the worker pool
type yearJob struct {
	o    *Orchestrator
	year int
}

// JobResult is the outcome of one pooled export job
type JobResult struct {
	Year    int
	Elapsed time.Duration
	Err     error
}

// GetError returns the job error
func (r *JobResult) GetError() error {
	return r.Err
}

// Execute runs the job
func (j *yearJob) Execute(ctx context.Context) worker.Result {
	ctx, span := otel.Tracer("ohmexport/export").Start(ctx, "export.year")
	span.SetAttributes(attribute.Int("year", j.year))
	defer span.End()

	res := &JobResult{Year: j.year}

	if err := j.o.limiter.Wait(ctx, j.o.opts.StoreTarget); err != nil {
		res.Err = fmt.Errorf("wait for launch slot: %w", err)
	} else {
		began := time.Now()
		res.Err = j.o.exportYear(ctx, j.year)
		res.Elapsed = time.Since(began)
		metrics.ExportJobDurationSeconds.Observe(res.Elapsed.Seconds())
	}

	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
		metrics.ExportJobsTotal.WithLabelValues("failed").Inc()
		j.o.reporter.JobFailed(j.year, res.Err)
		return res
	}

	metrics.ExportJobsTotal.WithLabelValues("completed").Inc()
	j.o.reporter.JobCompleted(j.year, res.Elapsed)
	return res
}
